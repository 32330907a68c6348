// ABOUTME: Default slog logger setup
// ABOUTME: Selects level and destination (stderr text or JSON file) for the process logger
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

func parseLevel(logLevel string) (slog.Level, error) {
	switch logLevel {
	case "none", "info":
		return slog.LevelInfo, nil
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unexpected log level %q", logLevel)
	}
}

// ConfigureDefaultLogger installs the process-wide slog logger.
//
// Valid levels are "none", "error", "warn", "info" and "debug". With a logFile
// the handler writes JSON to that file; otherwise text goes to stderr.
// The returned file, if any, must be closed by the caller.
func ConfigureDefaultLogger(logLevel string, logFile string, loggerOptions slog.HandlerOptions) (*os.File, error) {
	if logLevel == "none" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	}

	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	loggerOptions.Level = level

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &loggerOptions)))
		return nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &loggerOptions)))
	return f, nil
}
