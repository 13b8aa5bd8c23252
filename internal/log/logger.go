// Package log provides the structured logger shared by all components.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to io.Discard)
	Service string    // optional service name attached to every log entry
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global zerolog logger exactly once.
// The terminal belongs to the player UI, so without an explicit writer
// log output is dropped rather than written to stdout.
func Configure(cfg Config) {
	once.Do(func() {
		base = New(cfg)
	})
}

// New builds a logger from cfg without touching the global instance.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("RAINBOW_LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	writer := cfg.Output
	if writer == nil {
		writer = io.Discard
	}

	service := cfg.Service
	if service == "" {
		service = "rainbow"
	}

	return zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// OpenFile opens (or creates) an append-only log file for Configure.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
