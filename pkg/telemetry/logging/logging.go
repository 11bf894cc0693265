// Package logging builds the process-wide log/slog logger.
//
// New constructs a *slog.Logger from configuration: level, output format,
// and optional secret redaction. The returned logger is plain slog, so
// components attach themselves with logger.With("component", ...) and the
// runtime installs it via slog.SetDefault.
//
// When redaction is enabled every record passes through a handler that
// scrubs credential-shaped values (API keys, bearer tokens, password
// assignments) and blanks values logged under sensitive keys such as
// api_key or authorization.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"nimbus-hq/helios/pkg/faultlog"
)

// Format is the log output format.
type Format string

const (
	// FormatJSON outputs one JSON object per record.
	FormatJSON Format = "json"
	// FormatText outputs logfmt-style key=value records.
	FormatText Format = "text"
)

// Config contains configuration for the logger.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string

	// Format is the output format ("json", "text").
	Format string

	// RedactSecrets scrubs credentials from log output.
	RedactSecrets bool

	// AddSource includes file and line number in records.
	AddSource bool

	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer
}

// New creates a logger with the given configuration.
func New(cfg Config) (*slog.Logger, error) {
	level, err := faultlog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	if cfg.RedactSecrets {
		handler = &redactingHandler{inner: handler, redactor: NewRedactor()}
	}

	return slog.New(handler), nil
}

// parseFormat parses a log format string.
func parseFormat(formatStr string) (Format, error) {
	switch formatStr {
	case "json", "JSON", "":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", formatStr)
	}
}
