// Package logging builds the process-wide slog.Logger.
//
// Logs always go to stdout. When a file is configured they are also written
// there through a rotating writer, so a long-running server can't fill the
// disk.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes where logs go.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string
	// File, when set, receives a copy of every log line.
	File string

	// Rotation settings for File. Zero values use lumberjack's defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Output replaces stdout. Used by tests.
	Output io.Writer
}

// New returns the logger and a closer for the log file (a no-op when logging
// to stdout only).
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: creating log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
			LocalTime:  true,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
