// Package logger provides structured logging setup for the advisory engine.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/synod-labs/synod/internal/config"
)

// New creates a *slog.Logger from the given Logging config, plus a Closer
// that flushes buffered records on shutdown. Output goes to stdout with a
// "service" attribute on every record; a terminal gets human-readable text,
// anything else gets JSON.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stdout.Fd())) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, 1024, 1)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
