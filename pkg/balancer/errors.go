package balancer

import (
	"errors"
	"fmt"
	"strings"

	"nimbus-hq/helios/pkg/faults"
)

// CodeNoProviders is the stable error code carried by ErrNoProviders
// returns. The other balancer errors derive their codes from their kind.
const CodeNoProviders = "NO_PROVIDERS_AVAILABLE"

// Common balancer errors that can be checked with errors.Is().
var (
	// ErrNoProviders is returned when the registry has no enabled providers.
	ErrNoProviders = errors.New("no providers available")

	// ErrNoCapableProvider is returned when no enabled provider satisfies
	// the request's capability requirements.
	ErrNoCapableProvider = errors.New("no capable provider available")

	// ErrNoHealthyProvider is returned when every capable provider is
	// unhealthy and fallback degradation is disabled.
	ErrNoHealthyProvider = errors.New("no healthy provider available")

	// ErrAllProvidersFailed is returned when every fallback attempt is
	// exhausted without a success.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// NoCapableProviderError is returned when the capability filter leaves no
// candidates for a request.
type NoCapableProviderError struct {
	// Model is the requested model.
	Model string

	// Providers contains the names of the enabled providers that were
	// considered.
	Providers []string
}

// Error implements the error interface.
func (e *NoCapableProviderError) Error() string {
	return fmt.Sprintf("no capable provider available for model %q (considered: %s)",
		e.Model, strings.Join(e.Providers, ", "))
}

// Is implements error matching for errors.Is().
func (e *NoCapableProviderError) Is(target error) bool {
	return target == ErrNoCapableProvider
}

// Kind reports the classification for this error.
func (e *NoCapableProviderError) Kind() faults.Kind {
	return faults.NotFoundKind
}

// Code reports the stable error code for this error.
func (e *NoCapableProviderError) Code() string {
	return "NO_CAPABLE_PROVIDER"
}

// NoHealthyProviderError is returned when health filtering leaves no
// candidates and degraded selection is not permitted.
type NoHealthyProviderError struct {
	// Model is the requested model.
	Model string

	// Providers contains the names of the capable providers that were all
	// unhealthy.
	Providers []string
}

// Error implements the error interface.
func (e *NoHealthyProviderError) Error() string {
	return fmt.Sprintf("no healthy provider available for model %q (unhealthy: %s)",
		e.Model, strings.Join(e.Providers, ", "))
}

// Is implements error matching for errors.Is().
func (e *NoHealthyProviderError) Is(target error) bool {
	return target == ErrNoHealthyProvider
}

// Kind reports the classification for this error.
func (e *NoHealthyProviderError) Kind() faults.Kind {
	return faults.ProviderFailureKind
}

// Code reports the stable error code for this error.
func (e *NoHealthyProviderError) Code() string {
	return "NO_HEALTHY_PROVIDER"
}

// AggregateError is returned when ExecuteWithFallback exhausts every attempt
// without a success. It carries the attempt count and the last provider
// error for the error chain.
type AggregateError struct {
	// Attempts is the total number of provider attempts made.
	Attempts int

	// Attempted contains the provider names in the order they were tried.
	Attempted []string

	// LastErr is the error from the final attempt.
	LastErr error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	return fmt.Sprintf("all providers failed after %d attempts (attempted: %s, last error: %v)",
		e.Attempts, strings.Join(e.Attempted, ", "), e.LastErr)
}

// Is implements error matching for errors.Is().
func (e *AggregateError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *AggregateError) Unwrap() error {
	return e.LastErr
}

// Kind reports the classification for this error.
func (e *AggregateError) Kind() faults.Kind {
	return faults.AggregateFailureKind
}
