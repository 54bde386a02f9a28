// Package main запускает Telegram-бота маркетплейса и административный API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/gmailmart-bot/internal/bot"
	"github.com/mmeshcher/gmailmart-bot/internal/config"
	"github.com/mmeshcher/gmailmart-bot/internal/handler"
	"github.com/mmeshcher/gmailmart-bot/internal/middleware"
	"github.com/mmeshcher/gmailmart-bot/internal/notify"
	"github.com/mmeshcher/gmailmart-bot/internal/repository"
	"github.com/mmeshcher/gmailmart-bot/internal/service"
	"github.com/mmeshcher/gmailmart-bot/internal/worker"
)

const (
	shutdownTimeout = 5 * time.Second
	connectTimeout  = 5 * time.Second
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if lvl, err := cfg.Level(); err == nil && lvl != zap.InfoLevel {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
		if l, err := zcfg.Build(); err == nil {
			logger = l
			sugar = logger.Sugar()
		}
	}

	if cfg.TokenFor != 0 {
		issueToken(cfg, sugar)
		return
	}

	repo, err := openStore(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, closeQueue, err := openQueue(ctx, cfg)
	if err != nil {
		sugar.Fatalw("notification queue initialization error", "error", err.Error())
	}
	defer closeQueue()

	tgBot, err := bot.New(cfg.BotToken, logger)
	if err != nil {
		sugar.Fatalw("telegram initialization error", "error", err.Error())
	}

	dispatcher := notify.NewDispatcher(tgBot, queue, logger, notify.DefaultMaxAttempts)

	svc := service.NewService(repo, dispatcher, logger, cfg.AdminIDs)
	defer svc.Close()

	scheduler := worker.New(worker.Schedules{
		Digest: cfg.DigestSchedule,
		Retry:  cfg.RetrySchedule,
	}, svc, dispatcher, logger)

	g, ctx := errgroup.WithContext(ctx)

	// Telegram-бот
	g.Go(func() error {
		return tgBot.Run(ctx, svc)
	})

	// Периодические задачи
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if cfg.AdminAPISecret != "" {
		authMiddleware := middleware.NewAuthMiddleware(cfg.AdminAPISecret, svc.IsAdmin)
		h := handler.NewHandler(svc, logger, authMiddleware)

		server := &http.Server{
			Addr:              cfg.RunAddress,
			Handler:           h.SetupRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			sugar.Infow("starting admin api", "addr", cfg.RunAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})

		// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
		g.Go(func() error {
			<-ctx.Done()
			sugar.Info("shutting down admin api...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown error: %w", err)
			}
			sugar.Info("admin api stopped gracefully")
			return nil
		})
	} else {
		sugar.Info("ADMIN_API_SECRET is empty, admin api disabled")
	}

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openStore выбирает Postgres, если задан DATABASE_URI, иначе файл SQLite.
func openStore(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI != "" {
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	}
	return repository.NewSQLiteRepository(cfg.DBName)
}

// openQueue подключает Redis для очереди повторной отправки или использует очередь в памяти.
func openQueue(ctx context.Context, cfg *config.Config) (notify.Queue, func(), error) {
	if cfg.RedisAddr == "" {
		return notify.NewMemoryQueue(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	q, err := notify.NewRedisQueue(ctx, notify.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return q, func() { _ = q.Close() }, nil
}

func issueToken(cfg *config.Config, sugar *zap.SugaredLogger) {
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	if _, ok := admins[cfg.TokenFor]; !ok {
		sugar.Fatalw("token requested for a non-admin id", "id", cfg.TokenFor)
	}

	auth := middleware.NewAuthMiddleware(cfg.AdminAPISecret, nil)
	token, err := auth.IssueToken(cfg.TokenFor, middleware.DefaultTokenTTL)
	if err != nil {
		sugar.Fatalw("token issue error", "error", err.Error())
	}
	fmt.Println(token)
}
