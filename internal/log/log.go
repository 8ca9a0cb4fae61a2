// Package log is the process-wide slog logger. Components take a child
// logger from Component and never build their own handlers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	level  slog.LevelVar
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
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

// jsonOutput reports whether records should be JSON. MOODGUARD_LOG_FORMAT
// wins over GO_ENV=production.
func jsonOutput() bool {
	switch strings.ToLower(os.Getenv("MOODGUARD_LOG_FORMAT")) {
	case "json":
		return true
	case "text":
		return false
	}
	return os.Getenv("GO_ENV") == "production"
}

// New builds a logger writing to w at the shared level.
func New(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: &level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init installs the process logger on stdout. Later calls only change the
// level.
func Init(lvl string) {
	level.Set(ParseLevel(lvl))
	once.Do(func() {
		logger = New(os.Stdout, jsonOutput())
		slog.SetDefault(logger)
	})
}

// SetLevel changes the level of every logger handed out so far.
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

// L returns the process logger, initializing it from MOODGUARD_LOG_LEVEL
// on first use.
func L() *slog.Logger {
	once.Do(func() {
		level.Set(ParseLevel(os.Getenv("MOODGUARD_LOG_LEVEL")))
		logger = New(os.Stdout, jsonOutput())
		slog.SetDefault(logger)
	})
	return logger
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns a child logger carrying args.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component tags a child logger with the component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
