// Package config loads server and CLI configuration from an optional TOML
// file, then applies environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the service configuration.
type Config struct {
	Addr            string     `toml:"addr" env:"LISTS_ADDR"`
	ShutdownTimeout int        `toml:"shutdown_timeout" env:"LISTS_SHUTDOWN_TIMEOUT"` // seconds
	Log             LogConfig  `toml:"log" envPrefix:"LISTS_LOG_"`
	DB              DBConfig   `toml:"db" envPrefix:"LISTS_DB_"`
	OTEL            OTELConfig `toml:"otel" envPrefix:"LISTS_OTEL_"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  slog.Level `toml:"level" env:"LEVEL"`
	Format string     `toml:"format" env:"FORMAT"` // text, json
}

// DBConfig names the store driver and its connection settings.
type DBConfig struct {
	Driver      string `toml:"driver" env:"DRIVER"`
	URL         string `toml:"url" env:"URL"`   // postgres connection string
	Path        string `toml:"path" env:"PATH"` // sqlite database file
	PoolSize    int    `toml:"pool_size" env:"POOL_SIZE"`
	MaxLifetime int    `toml:"max_lifetime" env:"MAX_LIFETIME"` // seconds
}

// OTELConfig enables tracing when Endpoint is set, unless Disabled.
type OTELConfig struct {
	Endpoint string `toml:"endpoint" env:"ENDPOINT"`
	Disabled bool   `toml:"disabled" env:"DISABLED"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:            ":8080",
		ShutdownTimeout: 10,
		Log:             LogConfig{Level: slog.LevelInfo, Format: "text"},
		DB:              DBConfig{Driver: DriverSQLite, Path: "lists.db"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies LISTS_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the store selection.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("db.url is required for the %s driver", DriverPostgres)
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
