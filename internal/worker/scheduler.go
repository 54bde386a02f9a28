// Package worker запускает периодические задачи бота по расписанию cron.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

// Digester отправляет администраторам сводку по ожидающим проверки заявкам.
type Digester interface {
	SendPendingDigest(ctx context.Context) error
}

// Flusher повторяет отправку уведомлений из очереди.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Schedules задаёт расписания задач. Пустая строка отключает задачу.
type Schedules struct {
	Digest string
	Retry  string
}

// Scheduler выполняет задачи по расписанию до отмены контекста.
type Scheduler struct {
	schedules Schedules
	digester  Digester
	flusher   Flusher
	logger    *zap.Logger
}

// New создаёт планировщик.
func New(schedules Schedules, digester Digester, flusher Flusher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		schedules: schedules,
		digester:  digester,
		flusher:   flusher,
		logger:    logger,
	}
}

// Run регистрирует задачи и блокируется до отмены ctx, после чего дожидается выполняющихся задач.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger.Sugar()}),
		cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()}),
	))

	if s.schedules.Digest != "" && s.digester != nil {
		if _, err := c.AddFunc(s.schedules.Digest, func() { s.runDigest(ctx) }); err != nil {
			return fmt.Errorf("schedule digest %q: %w", s.schedules.Digest, err)
		}
	}
	if s.schedules.Retry != "" && s.flusher != nil {
		if _, err := c.AddFunc(s.schedules.Retry, func() { s.runFlush(ctx) }); err != nil {
			return fmt.Errorf("schedule retry %q: %w", s.schedules.Retry, err)
		}
	}

	c.Start()
	s.logger.Info("scheduler started",
		zap.String("digest", s.schedules.Digest),
		zap.String("retry", s.schedules.Retry),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runDigest(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := s.digester.SendPendingDigest(ctx); err != nil {
		s.logger.Error("pending digest failed", zap.Error(err))
	}
}

func (s *Scheduler) runFlush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	delivered, err := s.flusher.Flush(ctx)
	if err != nil {
		s.logger.Error("notification retry failed", zap.Error(err))
	}
	if delivered > 0 {
		s.logger.Info("queued notifications delivered", zap.Int("count", delivered))
	}
}

// cronLogger передаёт сообщения cron в zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
