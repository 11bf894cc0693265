package providers

import (
	"fmt"
	"time"

	"nimbus-hq/helios/pkg/faults"
)

// ProviderError is the generic failure from a provider call. More specific
// conditions use the dedicated types below so they carry sharper codes and
// categories.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Kind() faults.Kind { return faults.ProviderFailureKind }

// AuthError means the provider rejected the configured credentials. Not
// retryable.
type AuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %s: authentication failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *AuthError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *AuthError) Category() faults.Category { return faults.CategoryAuthentication }

func (e *AuthError) Code() string { return "AUTH_FAILED" }

// RateLimitError means the provider throttled the call. RetryAfter is the
// provider-suggested wait, zero when the provider sent none.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limited: %s", e.Provider, e.Message)
}

func (e *RateLimitError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *RateLimitError) Category() faults.Category { return faults.CategoryExternalService }

func (e *RateLimitError) Code() string { return "RATE_LIMIT" }

// TimeoutError means the provider call exceeded its deadline.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s: request timed out after %s", e.Provider, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *TimeoutError) Category() faults.Category { return faults.CategoryNetwork }

func (e *TimeoutError) Code() string { return "TIMEOUT" }

// TransportError means the call never reached the provider (dial failure,
// connection reset, DNS).
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *TransportError) Category() faults.Category { return faults.CategoryNetwork }

func (e *TransportError) Code() string { return "NETWORK_ERROR" }

// ModelNotFoundError means the provider does not serve the requested model.
type ModelNotFoundError struct {
	Provider string
	Model    string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("provider %s: model %q not found", e.Provider, e.Model)
}

func (e *ModelNotFoundError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *ModelNotFoundError) Category() faults.Category { return faults.CategoryUserInput }

func (e *ModelNotFoundError) Code() string { return "MODEL_NOT_FOUND" }

// ParseError means the provider answered with a body helios could not
// decode.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %s: failed to parse response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *ParseError) Code() string { return "PARSE_ERROR" }

// StreamError means a streaming generation broke mid-sequence.
type StreamError struct {
	Provider string
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("provider %s: stream failed: %v", e.Provider, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Kind() faults.Kind { return faults.ProviderFailureKind }

func (e *StreamError) Code() string { return "STREAM_ERROR" }

// ConfigError means an adapter was built from invalid configuration.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s: config field %q: %s", e.Provider, e.Field, e.Message)
}

func (e *ConfigError) Kind() faults.Kind { return faults.ValidationKind }

func (e *ConfigError) Category() faults.Category { return faults.CategoryConfiguration }

func (e *ConfigError) Code() string { return "CONFIG_ERROR" }
