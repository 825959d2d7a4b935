package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	EngineURL        string        `env:"ENGINE_URL" envDefault:"http://localhost:8009"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	RedisURL         string        `env:"REDIS_URL"`
	ArchiveDir       string        `env:"ARCHIVE_DIR"`
	DecideTimeout    time.Duration `env:"DECIDE_TIMEOUT" envDefault:"45s"`
	NegotiateTimeout time.Duration `env:"NEGOTIATE_TIMEOUT" envDefault:"30s"`
	UpdateTimeout    time.Duration `env:"UPDATE_TIMEOUT" envDefault:"15s"`
	MaxPhases        int           `env:"MAX_PHASES" envDefault:"0"`
	MaxYear          int           `env:"MAX_YEAR" envDefault:"0"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
