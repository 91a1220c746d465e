// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the badge service.
type Config struct {
	// Server settings
	Port        string `env:"PORT"        envDefault:"3000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DEBUG"       envDefault:"false"`

	// Asset fetching and caching
	CacheDir     string        `env:"CACHE_DIR"`
	CDNBaseURL   string        `env:"CDN_BASE_URL"`
	ImageTimeout time.Duration `env:"IMAGE_TIMEOUT" envDefault:"10s"`
	TemplateTTL  time.Duration `env:"TEMPLATE_TTL"  envDefault:"10m"`

	// Generation limits
	MaxRegistrants int     `env:"MAX_REGISTRANTS" envDefault:"2000"`
	QRWorkers      int     `env:"QR_WORKERS"      envDefault:"8"`
	QROversample   float64 `env:"QR_OVERSAMPLE"   envDefault:"3"`
	FontDir        string  `env:"FONT_DIR"        envDefault:"fonts"`
	Locale         string  `env:"LOCALE"          envDefault:"en-US"`

	// Counter notification; each transport is enabled by its URL
	RedisURL     string        `env:"REDIS_URL"`
	AMQPURL      string        `env:"AMQP_URL"`
	CounterURL   string        `env:"COUNTER_URL"`
	TrackTimeout time.Duration `env:"TRACK_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file from the working directory, then parses
// the environment. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env: %w", err)
	}
	return Parse()
}

// Parse maps the current environment into a Config.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "badge-cache")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the generator cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxRegistrants < 0:
		return fmt.Errorf("config: MAX_REGISTRANTS must not be negative")
	case c.QRWorkers < 1:
		return fmt.Errorf("config: QR_WORKERS must be at least 1")
	case c.QROversample < 1:
		return fmt.Errorf("config: QR_OVERSAMPLE must be at least 1")
	case c.ImageTimeout <= 0:
		return fmt.Errorf("config: IMAGE_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment selects the console log handler.
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }
