// Package logging provides the shared structured logger for the agent.
//
// A single *slog.Logger is configured once at startup and retrieved with
// GetLogger everywhere else, so command code and internal packages agree on
// level, format and destination.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

var (
	defaultLogger *slog.Logger
	loggerMu      sync.Mutex
)

// NewLogger builds a slog.Logger from the given options.
func NewLogger(opts Options) *slog.Logger {
	writer := opts.Output
	if writer == nil {
		writer = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return slog.New(handler).With(slog.String("service", "pgconvo"))
}

// Initialize sets the process-wide logger returned by GetLogger.
func Initialize(opts Options) *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	defaultLogger = NewLogger(opts)

	return defaultLogger
}

// GetLogger returns the process-wide logger, initializing a default one if
// Initialize was never called (tests, mostly).
func GetLogger() *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if defaultLogger == nil {
		defaultLogger = NewLogger(Options{Level: "info", Format: "text"})
	}

	return defaultLogger
}

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
