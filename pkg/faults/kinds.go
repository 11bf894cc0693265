package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the failure taxonomy tag attached to errors at their construction
// site. Classification by kind is always preferred over text matching.
type Kind int

const (
	// UnknownKind marks errors that carry no tag and match no heuristic.
	UnknownKind Kind = iota

	// ValidationKind marks malformed input or configuration.
	ValidationKind

	// NotFoundKind marks lookups of entities that do not exist or are
	// disabled.
	NotFoundKind

	// ConflictKind marks duplicate registrations.
	ConflictKind

	// ProviderFailureKind marks a failed call to a registered provider.
	ProviderFailureKind

	// AggregateFailureKind marks exhaustion of every fallback attempt.
	AggregateFailureKind
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case ValidationKind:
		return "validation"
	case NotFoundKind:
		return "not_found"
	case ConflictKind:
		return "conflict"
	case ProviderFailureKind:
		return "provider_failure"
	case AggregateFailureKind:
		return "aggregate_failure"
	default:
		return "unknown"
	}
}

// DefaultCode returns the stable error code used when an error carries a
// kind but no explicit code of its own.
func (k Kind) DefaultCode() string {
	switch k {
	case ValidationKind:
		return "VALIDATION_ERROR"
	case NotFoundKind:
		return "NOT_FOUND"
	case ConflictKind:
		return "CONFLICT"
	case ProviderFailureKind:
		return "PROVIDER_FAILURE"
	case AggregateFailureKind:
		return "ALL_PROVIDERS_FAILED"
	default:
		return CodeUnknown
	}
}

// CodeUnknown is the fallback error code for anything uncategorized.
const CodeUnknown = "UNKNOWN_ERROR"

// Category buckets errors for logging and alert filtering.
type Category string

const (
	CategoryNetwork         Category = "network"
	CategoryAuthentication  Category = "authentication"
	CategoryValidation      Category = "validation"
	CategoryBusinessLogic   Category = "business_logic"
	CategoryExternalService Category = "external_service"
	CategoryUserInput       Category = "user_input"
	CategoryConfiguration   Category = "configuration"
	CategorySystem          Category = "system"
)

// Kinder is implemented by errors that carry an explicit kind tag.
type Kinder interface {
	Kind() Kind
}

// Coder is implemented by errors that carry a stable error code.
type Coder interface {
	Code() string
}

// Categorizer is implemented by errors that declare their own category,
// overriding both the kind mapping and the text heuristics.
type Categorizer interface {
	Category() Category
}

// KindOf returns the kind tag carried anywhere in err's chain, or
// UnknownKind if none is present.
func KindOf(err error) Kind {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return UnknownKind
}

// CodeOf resolves the stable error code for err: an explicit code in the
// chain wins, then the kind's default code, then CodeUnknown.
func CodeOf(err error) string {
	if err == nil {
		return CodeUnknown
	}
	var c Coder
	if errors.As(err, &c) {
		if code := c.Code(); code != "" {
			return code
		}
	}
	return KindOf(err).DefaultCode()
}

// CategoryOf buckets err for logging. An explicit Categorizer in the chain
// wins, then the kind mapping, then text heuristics over the message. The
// default is CategorySystem.
func CategoryOf(err error) Category {
	if err == nil {
		return CategorySystem
	}

	var c Categorizer
	if errors.As(err, &c) {
		return c.Category()
	}

	switch KindOf(err) {
	case ValidationKind:
		return CategoryValidation
	case NotFoundKind, ConflictKind:
		return CategoryBusinessLogic
	case ProviderFailureKind, AggregateFailureKind:
		return CategoryExternalService
	}

	return categorizeText(err.Error())
}

// categorizeText is the heuristic fallback for errors from uncontrolled
// sources. First matching bucket wins; authentication is checked before
// network so "invalid api key" does not land in validation.
func categorizeText(msg string) Category {
	lower := strings.ToLower(msg)

	contains := func(substrs ...string) bool {
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("unauthorized", "authentication", "api key", "forbidden", "credential", "permission denied"):
		return CategoryAuthentication
	case contains("timeout", "timed out", "connection", "network", "dial", "unreachable", "reset by peer", "no such host", "dns"):
		return CategoryNetwork
	case contains("rate limit", "too many requests", "service unavailable", "bad gateway", "upstream", "overloaded", "quota"):
		return CategoryExternalService
	case contains("validation", "invalid", "malformed", "required", "must be"):
		return CategoryValidation
	case contains("config", "environment variable", "yaml"):
		return CategoryConfiguration
	case contains("bad request", "unsupported"):
		return CategoryUserInput
	case contains("not found", "already exists", "duplicate", "conflict"):
		return CategoryBusinessLogic
	default:
		return CategorySystem
	}
}

// IsTransient reports whether err looks like a transient network or timeout
// failure worth a single automatic retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return CategoryOf(err) == CategoryNetwork
}

// taggedError attaches a kind, and optionally a code, to an existing error
// without disturbing its chain.
type taggedError struct {
	kind Kind
	code string
	err  error
}

func (e *taggedError) Error() string {
	return e.err.Error()
}

func (e *taggedError) Unwrap() error {
	return e.err
}

func (e *taggedError) Kind() Kind {
	return e.kind
}

func (e *taggedError) Code() string {
	if e.code != "" {
		return e.code
	}
	return e.kind.DefaultCode()
}

// Tag wraps err with a kind tag. Returns nil when err is nil.
func Tag(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// TagWithCode wraps err with a kind tag and an explicit stable code.
func TagWithCode(err error, kind Kind, code string) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, code: code, err: err}
}

// Newf builds a kind-tagged error from a format string.
func Newf(kind Kind, format string, args ...any) error {
	return &taggedError{kind: kind, err: fmt.Errorf(format, args...)}
}
