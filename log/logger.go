package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/godamri/helix-audit/pkg/telemetry"
	"github.com/lmittmann/tint"
)

type Config struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `envconfig:"LOG_FORMAT" default:"json" yaml:"format" toml:"format" validate:"oneof=json console"`

	// Service is stamped on every record when set.
	Service string `ignored:"true" yaml:"-" toml:"-"`
}

// New builds the diagnostic logger. Records are tagged with trace context
// before reaching the output handler.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg Config, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "console" {
		// Pretty print for local development
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	logger := slog.New(telemetry.NewOTelHandler(handler))
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
