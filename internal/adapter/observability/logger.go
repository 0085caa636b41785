// Package observability provides the structured logger shared by the
// pipeline, queue, and adapters. One concrete type satisfies the small
// logging ports each package declares.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with the field-map calling convention used across
// the service.
type Logger struct {
	log *slog.Logger
}

// NewLogger creates a logger writing to w. Format "json" selects the
// JSON handler, anything else the text handler. Level is one of debug,
// info, warn, error.
func NewLogger(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{log: slog.New(handler)}
}

// NewDefaultLogger creates an info-level text logger on stderr.
func NewDefaultLogger() *Logger {
	return NewLogger(os.Stderr, "info", "text")
}

func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]any) {
	l.log.LogAttrs(ctx, slog.LevelDebug, msg, attrs(fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.log.LogAttrs(ctx, slog.LevelInfo, msg, attrs(fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.log.LogAttrs(ctx, slog.LevelWarn, msg, attrs(fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields map[string]any) {
	l.log.LogAttrs(ctx, slog.LevelError, msg, attrs(fields)...)
}

func attrs(fields map[string]any) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		out = append(out, slog.Any(k, v))
	}
	return out
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
