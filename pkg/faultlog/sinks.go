package faultlog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ConsoleSink writes entries through a slog logger. It is the one sink that
// performs real work.
type ConsoleSink struct {
	logger *slog.Logger
}

// NewConsoleSink creates a console sink. A nil logger uses slog.Default().
func NewConsoleSink(logger *slog.Logger) *ConsoleSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSink{logger: logger}
}

// Name implements Sink.
func (s *ConsoleSink) Name() string { return "console" }

// Write logs the entry at its own level with the structured fields spread
// out as attributes.
func (s *ConsoleSink) Write(entry Entry) error {
	args := []any{
		slog.String("code", entry.Code),
		slog.String("category", string(entry.Category)),
		slog.String("component", entry.Component),
	}
	if entry.RequestID != "" {
		args = append(args, slog.String("request_id", entry.RequestID))
	}
	if entry.UserID != "" {
		args = append(args, slog.String("user_id", entry.UserID))
	}
	if entry.SessionID != "" {
		args = append(args, slog.String("session_id", entry.SessionID))
	}
	if entry.CorrelationID != "" {
		args = append(args, slog.String("correlation_id", entry.CorrelationID))
	}
	if len(entry.Tags) > 0 {
		args = append(args, slog.Any("tags", entry.Tags))
	}
	for k, v := range entry.Metadata {
		args = append(args, slog.Any(k, v))
	}
	if entry.Stack != "" {
		args = append(args, slog.String("stack", entry.Stack))
	}
	s.logger.Log(context.Background(), entry.Level, entry.Message, args...)
	return nil
}

// IntentSink records the intent to deliver an entry to a destination helios
// does not actually persist to. The file, database and external sinks share
// this behavior: Write counts the entry and drops it.
type IntentSink struct {
	name    string
	target  string
	intents atomic.Int64
}

// NewFileSink creates a placeholder sink for a log file destination.
func NewFileSink(path string) *IntentSink {
	return &IntentSink{name: "file", target: path}
}

// NewDatabaseSink creates a placeholder sink for a database destination.
func NewDatabaseSink(dsn string) *IntentSink {
	return &IntentSink{name: "database", target: dsn}
}

// NewExternalSink creates a placeholder sink for an external log service.
func NewExternalSink(endpoint string) *IntentSink {
	return &IntentSink{name: "external", target: endpoint}
}

// Write implements Sink. It never fails.
func (s *IntentSink) Write(Entry) error {
	s.intents.Add(1)
	return nil
}

// Name implements Sink.
func (s *IntentSink) Name() string { return s.name }

// Target returns the configured destination (file path, DSN or endpoint).
func (s *IntentSink) Target() string { return s.target }

// Intents returns how many entries would have been delivered.
func (s *IntentSink) Intents() int64 { return s.intents.Load() }
