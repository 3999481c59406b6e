// Package logging configures structured logging with tint.
//
// Usage:
//
//	logging.Setup(logging.Options{Level: "debug"})              // colored, stderr
//	logging.Setup(logging.Options{Format: logging.FormatJSON})  // JSON lines
//	closer, err := logging.SetupFile(path, "info")              // plain text file
//
// Level is one of debug, info, warn, error (default: info).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options select the handler built by Setup.
type Options struct {
	Level  string
	Format string

	// Writer defaults to os.Stderr.
	Writer io.Writer

	NoColor bool
}

// Setup installs the default slog logger.
func Setup(opts Options) {
	slog.SetDefault(slog.New(NewHandler(opts)))
}

// NewHandler builds the handler described by opts.
func NewHandler(opts Options) slog.Handler {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(opts.Level)

	if strings.EqualFold(opts.Format, FormatJSON) {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  true,
		NoColor:    opts.NoColor,
	})
}

// SetupFile sends logs to the file at path, appending. Used by the terminal
// UI, which owns stderr.
func SetupFile(path, level string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	Setup(Options{Level: level, Writer: f, NoColor: true})
	return f, nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
