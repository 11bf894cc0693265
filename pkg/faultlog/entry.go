package faultlog

import (
	"fmt"
	"log/slog"
	"time"

	"nimbus-hq/helios/pkg/faults"
)

// Entry is one structured fault record.
type Entry struct {
	Timestamp     time.Time       `json:"timestamp"`
	Level         slog.Level      `json:"level"`
	Category      faults.Category `json:"category"`
	Code          string          `json:"code"`
	Message       string          `json:"message"`
	Component     string          `json:"component"`
	RequestID     string          `json:"request_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Stack         string          `json:"stack,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
}

// Field returns the string value of the named entry field for filter
// matching. Names that are not dedicated entry fields fall through to
// metadata keys. The second return is false when the field is absent.
func (e Entry) Field(name string) (string, bool) {
	switch name {
	case "level":
		return e.Level.String(), true
	case "category":
		return string(e.Category), true
	case "code":
		return e.Code, true
	case "message":
		return e.Message, true
	case "component":
		return e.Component, true
	case "request_id":
		return e.RequestID, true
	case "user_id":
		return e.UserID, true
	case "session_id":
		return e.SessionID, true
	case "correlation_id":
		return e.CorrelationID, true
	}
	if v, ok := e.Metadata[name]; ok {
		return fmt.Sprint(v), true
	}
	return "", false
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch levelStr {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO", "":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
