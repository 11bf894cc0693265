package registry

import (
	"errors"
	"fmt"

	"nimbus-hq/helios/pkg/faults"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrProviderExists is returned when registering a name that is already
	// taken.
	ErrProviderExists = errors.New("provider already registered")

	// ErrProviderNotFound is returned when looking up, removing, or
	// updating a provider that is not registered (or not enabled, for
	// lookups).
	ErrProviderNotFound = errors.New("provider not found")
)

// ConflictError reports a duplicate registration.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("provider %q already registered", e.Name)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrProviderExists
}

func (e *ConflictError) Kind() faults.Kind { return faults.ConflictKind }

// NotFoundError reports a lookup of an absent (or disabled) provider.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}

func (e *NotFoundError) Kind() faults.Kind { return faults.NotFoundKind }

// ValidationError reports a malformed descriptor or adapter handle.
type ValidationError struct {
	Name    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid descriptor: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid descriptor %q: %s: %s", e.Name, e.Field, e.Message)
}

func (e *ValidationError) Kind() faults.Kind { return faults.ValidationKind }
