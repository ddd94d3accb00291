package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

type Config struct {
	DiscordToken      string `env:"DISCORD_TOKEN,required"`
	DeveloperID       string `env:"DEVELOPER_ID"`
	InitSlashCommands bool   `env:"INIT_SLASH_COMMANDS" envDefault:"true"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"json"`
	StoragePath   string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	// Playback
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	EmptyChannelGrace time.Duration `env:"EMPTY_CHANNEL_GRACE" envDefault:"10s"`
	StuckThreshold    time.Duration `env:"STUCK_THRESHOLD" envDefault:"10s"`
	ResolveTimeout    time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"15s"`
	DefaultVolume     int           `env:"DEFAULT_VOLUME" envDefault:"100"`
	YouTubeProxy      string        `env:"YOUTUBE_PROXY"`

	// Optional surfaces
	RedisURL      string `env:"REDIS_URL"`
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"listenparty.events"`
	StatusAddr    string `env:"STATUS_ADDR"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, falling back to system environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageJSON, StorageSQLite:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.DefaultVolume < 1 || c.DefaultVolume > 100 {
		return fmt.Errorf("DEFAULT_VOLUME must be within 1-100, got %d", c.DefaultVolume)
	}
	if c.IdleTimeout <= 0 {
		return errors.New("IDLE_TIMEOUT must be positive")
	}
	if c.EmptyChannelGrace < 0 {
		return errors.New("EMPTY_CHANNEL_GRACE must not be negative")
	}
	if c.StuckThreshold <= 0 {
		return errors.New("STUCK_THRESHOLD must be positive")
	}
	if c.ResolveTimeout <= 0 {
		return errors.New("RESOLVE_TIMEOUT must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
