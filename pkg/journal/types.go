package journal

import (
	"context"
	"time"
)

// Outcome values for an Entry.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Operation values for an Entry.
const (
	OperationGenerate = "generate"
	OperationStream   = "stream"
	OperationProbe    = "probe"
)

// Entry is the journal record for a single provider attempt.
type Entry struct {
	// ID is a UUID assigned by the recorder when empty.
	ID string `json:"id"`

	// Time is when the attempt finished. The recorder fills it when zero.
	Time time.Time `json:"time"`

	// RequestID ties the attempt to the request that caused it. Several
	// entries share a request id when fallback retried the request.
	RequestID string `json:"request_id"`

	// Provider is the name of the provider that was tried.
	Provider string `json:"provider"`

	// Model is the model the attempt ran against.
	Model string `json:"model,omitempty"`

	// Operation is what was attempted, one of the Operation constants.
	Operation string `json:"operation"`

	// Attempt is the 1-based position of this attempt within the request.
	Attempt int `json:"attempt"`

	// Fallback is true when this attempt followed an earlier failure.
	Fallback bool `json:"fallback"`

	// Outcome is OutcomeSuccess or OutcomeFailure.
	Outcome string `json:"outcome"`

	// ErrorCode is the fault code of a failed attempt, empty on success.
	ErrorCode string `json:"error_code,omitempty"`

	// Latency is the provider round-trip time.
	Latency time.Duration `json:"latency"`

	// Token usage reported by the provider, zero when the attempt failed.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Cost is the estimated cost of the attempt in dollars.
	Cost float64 `json:"cost"`
}

// Query defines filter parameters for querying journal entries.
type Query struct {
	// Time range, inclusive on both ends.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Filters
	RequestID string `json:"request_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Operation string `json:"operation,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Thresholds
	MinTokens *int `json:"min_tokens,omitempty"`
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting. SortBy is one of "time", "latency", "tokens", "cost";
	// SortOrder is "asc" or "desc". Unset sorts by time descending.
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage is the interface journal backends implement.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a journal entry.
	Store(ctx context.Context, entry *Entry) error

	// Query retrieves entries matching the query filters.
	// Returns an empty slice if no entries match.
	Query(ctx context.Context, q *Query) ([]*Entry, error)

	// Count returns the number of entries matching the query filters.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes entries matching the query filters and returns how
	// many were removed. Used by retention enforcement.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}
