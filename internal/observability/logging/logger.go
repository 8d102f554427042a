// Package logging builds the process logger. Both binaries install it as
// the slog default so every package logs with the same shape; the service
// attr keeps api and worker lines apart when they ship to one sink.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns the logger for one process. Format "text" is for local runs;
// anything else emits JSON for log shipping.
func New(service, level, format string) *slog.Logger {
	return slog.New(newHandler(os.Stdout, level, format)).With("service", service)
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
