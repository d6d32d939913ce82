// Package logger is a small structured-logging facade over slog.
// Handlers and stores log through package functions so call sites
// stay free of logger plumbing.
package logger

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	// Default logger so callers that skip Init don't panic.
	current.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Init installs the process-wide JSON logger. The level is read from
// LOG_LEVEL (debug, info, warn, error); anything else means info.
func Init() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	current.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}

// Set replaces the logger. Intended for tests that capture output.
func Set(l *slog.Logger) {
	current.Store(l)
}

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func Debug(msg string, fields map[string]any) {
	current.Load().Debug(msg, attrs(fields)...)
}

func Info(msg string, fields map[string]any) {
	current.Load().Info(msg, attrs(fields)...)
}

func Warn(msg string, fields map[string]any) {
	current.Load().Warn(msg, attrs(fields)...)
}

func Error(msg string, fields map[string]any) {
	current.Load().Error(msg, attrs(fields)...)
}

// Fatal logs at error level and exits the process.
func Fatal(msg string, fields map[string]any) {
	current.Load().Error(msg, attrs(fields)...)
	os.Exit(1)
}
