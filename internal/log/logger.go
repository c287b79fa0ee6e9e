// Package log configures the process-wide slog logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on stdout as the default slog logger and
// returns a logger tagged with the process name. The level comes from the
// LOG_LEVEL environment variable (debug, info, warn, error) and defaults
// to info.
func Setup(process string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: LevelFromEnv(),
	})
	logger := slog.New(handler).With("process", process)
	slog.SetDefault(logger)
	return logger
}

// LevelFromEnv parses LOG_LEVEL, defaulting to info.
func LevelFromEnv() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
