// Package config содержит логику чтения конфигурации бота.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config содержит параметры конфигурации бота.
type Config struct {
	BotToken       string  `env:"BOT_TOKEN"`
	AdminIDs       []int64 `env:"ADMIN_IDS" envSeparator:","`
	DBName         string  `env:"DB_NAME"`
	DatabaseURI    string  `env:"DATABASE_URI"`
	RunAddress     string  `env:"RUN_ADDRESS"`
	AdminAPISecret string  `env:"ADMIN_API_SECRET"`
	RedisAddr      string  `env:"REDIS_ADDR"`
	RedisPassword  string  `env:"REDIS_PASSWORD"`
	RedisDB        int     `env:"REDIS_DB"`
	DigestSchedule string  `env:"DIGEST_SCHEDULE"`
	RetrySchedule  string  `env:"RETRY_SCHEDULE"`
	LogLevel       string  `env:"LOG_LEVEL"`

	// TokenFor задаётся только флагом: выдать токен API для администратора и выйти.
	TokenFor int64
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.BotToken, "t", "", "telegram bot token")
	flag.Func("admins", "comma-separated telegram ids of administrators", func(s string) error {
		ids, err := ParseAdminIDs(s)
		if err != nil {
			return err
		}
		cfg.AdminIDs = ids
		return nil
	})
	flag.StringVar(&cfg.DBName, "f", "gmail_bot.db", "sqlite database file")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "postgres database URI, overrides sqlite")
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for admin HTTP API")
	flag.StringVar(&cfg.AdminAPISecret, "s", "", "admin API signing secret, empty disables the API")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "redis address for the notification retry queue")
	flag.StringVar(&cfg.DigestSchedule, "digest", "@hourly", "cron schedule of the pending digest")
	flag.StringVar(&cfg.RetrySchedule, "retry", "@every 1m", "cron schedule of notification retries")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.Int64Var(&cfg.TokenFor, "token-for", 0, "print an admin API token for the given admin id and exit")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DBName == "" {
		cfg.DBName = "gmail_bot.db"
	}
	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

// ParseAdminIDs разбирает список идентификаторов через запятую.
func ParseAdminIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	if c.TokenFor != 0 {
		if c.AdminAPISecret == "" {
			return errors.New("ADMIN_API_SECRET is required to issue a token")
		}
		return nil
	}
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level возвращает уровень журналирования.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
