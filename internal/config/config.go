package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

type Config struct {
	ServerPort  string        `env:"SERVER_PORT" envDefault:"8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisURL    string        `env:"REDIS_URL"`
	JWTSecret   string        `env:"JWT_SECRET"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`

	// MessageStore selects where message records are persisted.
	MessageStore string `env:"MESSAGE_STORE" envDefault:"postgres"`
	BadgerPath   string `env:"BADGER_PATH" envDefault:"data/messages"`

	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads/files"`
	PhotoDir       string `env:"PHOTO_DIR" envDefault:"uploads/profile_photos"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`
	SendBufferSize int           `env:"SEND_BUFFER_SIZE" envDefault:"64"`
	MaxFrameBytes  int64         `env:"MAX_FRAME_BYTES" envDefault:"65536"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MessageStore != StorePostgres && c.MessageStore != StoreBadger {
		return fmt.Errorf("MESSAGE_STORE must be %q or %q, got %q", StorePostgres, StoreBadger, c.MessageStore)
	}
	if c.PersistTimeout <= 0 {
		return errors.New("PERSIST_TIMEOUT must be positive")
	}
	if c.SendBufferSize <= 0 {
		return errors.New("SEND_BUFFER_SIZE must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
