package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/retrorumble/tournament-lobby/storage"
)

// R2Config описывает бакет Cloudflare R2 для хранения матчей.
type R2Config struct {
	AccountID       string `env:"R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	BucketName      string `env:"R2_BUCKET_NAME"`
	Endpoint        string `env:"R2_ENDPOINT"`
	Prefix          string `env:"R2_PREFIX"`
}

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort int `env:"SERVER_PORT" envDefault:"8080"`
	// Пустой DATABASE_URL включает in-memory репозиторий (режим разработки).
	DatabaseURL string `env:"DATABASE_URL"`

	RedisURL          string `env:"REDIS_URL"`
	MatchStoreBackend string `env:"MATCH_STORE_BACKEND"`
	MatchStoreDir     string `env:"MATCH_STORE_DIR" envDefault:"data/matches"`
	R2                R2Config

	NotifyTimeout             time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	StoreTimeout              time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ScheduleBroadcastInterval time.Duration `env:"SCHEDULE_BROADCAST_INTERVAL" envDefault:"1m"`

	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"info"`
	SitNGoAutoClone bool     `env:"SITNGO_AUTO_CLONE" envDefault:"true"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Ошибку не считаем фатальной: .env есть только локально.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	switch c.MatchStoreBackend {
	case "", storage.BackendRedis, storage.BackendR2, storage.BackendDisk:
	default:
		return fmt.Errorf("MATCH_STORE_BACKEND must be one of redis, r2, disk; got %q", c.MatchStoreBackend)
	}
	if c.MatchStoreBackend == storage.BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("MATCH_STORE_BACKEND=redis requires REDIS_URL")
	}
	if c.MatchStoreBackend == storage.BackendR2 || c.R2.BucketName != "" {
		if c.R2.BucketName == "" || c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" {
			return fmt.Errorf("R2 store requires R2_BUCKET_NAME, R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY")
		}
		if c.R2.AccountID == "" && c.R2.Endpoint == "" {
			return fmt.Errorf("R2 store requires R2_ACCOUNT_ID or R2_ENDPOINT")
		}
	}
	if c.NotifyTimeout <= 0 || c.StoreTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT and STORE_TIMEOUT must be positive")
	}
	if c.ScheduleBroadcastInterval <= 0 {
		return fmt.Errorf("SCHEDULE_BROADCAST_INTERVAL must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel переводит LOG_LEVEL в уровень slog.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// StoreConfig собирает настройки хранилища матчей.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Backend:  c.MatchStoreBackend,
		RedisURL: c.RedisURL,
		Dir:      c.MatchStoreDir,
		R2: storage.R2Config{
			AccountID:       c.R2.AccountID,
			AccessKeyID:     c.R2.AccessKeyID,
			SecretAccessKey: c.R2.SecretAccessKey,
			BucketName:      c.R2.BucketName,
			Endpoint:        c.R2.Endpoint,
			Prefix:          c.R2.Prefix,
		},
	}
}
