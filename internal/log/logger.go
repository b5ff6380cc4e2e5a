package log

import (
	"log/slog"
	"os"
	"strings"
)

// New constructs a slog.Logger with the requested level and format
// ("text" or "json").
func New(level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: levelFromString(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	return slog.New(handler)
}

func levelFromString(level string) slog.Level {
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
