// Package config loads chessdb settings from the environment.
//
// Every field has a default, so an empty environment yields a usable
// configuration. Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration.
type Config struct {
	// Database is the SQLite file holding the log and snapshots.
	Database string `env:"CHESSDB_DB" envDefault:"chessdb.db"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `env:"CHESSDB_LOG_LEVEL" envDefault:"info"`

	// Format selects CLI output: text or json.
	Format string `env:"CHESSDB_FORMAT" envDefault:"text"`

	// PageSize bounds how many entries one log read returns during catch-up.
	PageSize int `env:"CHESSDB_PAGE_SIZE" envDefault:"500"`

	// TraceStdout exports catch-up spans to stderr.
	TraceStdout bool `env:"CHESSDB_TRACE_STDOUT" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database path is empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("config: invalid format %q: must be text or json", c.Format)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page size must be positive, got %d", c.PageSize)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Matching is case-insensitive.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
