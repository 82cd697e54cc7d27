package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
)

// Logger is a slog.Logger that always carries the service and version of the
// binary that created it.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging section of the config.
// Output "stderr" writes to standard error; anything else to standard output.
//
// service is the binary name ("smartobject", "controller", "observer").
func New(cfg config.LoggingConfig, service, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return NewWithWriter(output, cfg, service, version)
}

// NewWithWriter is New with an explicit destination. cfg.Output is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, service, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler.WithAttrs([]slog.Attr{
			slog.String("service", service),
			slog.String("version", version),
		})),
	}
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels.
// Unknown values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child Logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child Logger tagged component=name, the key every
// package logger in this module is keyed on.
//
//	log.Component("mqtt").Warn("connection lost", "error", err)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the JSON, info-level, stdout logger used until the config has
// been loaded.
func Default(service string) *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, service, "dev")
}
