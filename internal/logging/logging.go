// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"

	"durable-lists/internal/config"
)

// New returns a logger writing to w in the configured format and level.
func New(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs New(w, cfg) as the default logger.
func Setup(w io.Writer, cfg config.LogConfig) *slog.Logger {
	l := New(w, cfg)
	slog.SetDefault(l)
	return l
}
