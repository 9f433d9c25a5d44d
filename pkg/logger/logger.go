package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

// Init initializes the global slog logger with a text handler at Info level.
// Sink and level can be overridden via env vars for tests and production:
// BRANCHDB_LOG_SINK (e.g. "file:/path/to/log") and BRANCHDB_LOG_LEVEL.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided
// `level` string ("debug", "info", "warn", "error"). If level is empty,
// InitWithLevel falls back to the BRANCHDB_LOG_LEVEL environment variable.
func InitWithLevel(level string) {
	sink := os.Getenv("BRANCHDB_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("BRANCHDB_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	case "info":
		lv = slog.LevelInfo
	default:
		lv = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		// fallback to stdout
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

func ensure() {
	if Log == nil {
		Init()
	}
}

func Debug(msg string, args ...any) {
	ensure()
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	ensure()
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	ensure()
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	ensure()
	Log.Error(msg, args...)
}
