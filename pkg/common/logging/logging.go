// Package logging builds the structured logger that receives per-row
// diagnostics. The logger is constructed explicitly and handed to the
// pipeline; nothing is configured at import time.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
)

// DefaultPath is the log file used when Config.Path is empty.
const DefaultPath = "parcsv.log"

// Config holds logger options.
type Config struct {
	// Path is the log file. It is appended to, never truncated.
	// "-" logs to stderr.
	Path string

	// Level is one of debug, info, warn, error.
	Level string

	// Format is text or json.
	Format string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Path:   DefaultPath,
		Level:  "info",
		Format: "text",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("logging", "path", c.Path); err != nil {
		return err
	}
	if err := validation.ValidateOneOf("logging", "format", c.Format, "text", "json"); err != nil {
		return err
	}
	_, err := ParseLevel(c.Level)
	return err
}

// New opens the configured sink and returns a logger plus the closer for the
// sink. Closing is the caller's job once the job finishes.
func New(config Config) (*slog.Logger, io.Closer, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	level, _ := ParseLevel(config.Level)

	var sink io.WriteCloser
	if config.Path == "-" {
		sink = nopCloser{os.Stderr}
	} else {
		f, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, gferrors.NewOperationError("logging", "Open", err).WithContext(config.Path)
		}
		sink = f
	}

	return NewWithWriter(sink, level, config.Format), sink, nil
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, gferrors.NewValidationError("logging", "level", name, "unknown level").
		WithHint("use debug, info, warn or error")
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
