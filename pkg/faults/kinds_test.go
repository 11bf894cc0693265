package faults

import (
	"errors"
	"fmt"
	"testing"
)

type categorizedError struct {
	msg      string
	kind     Kind
	category Category
}

func (e *categorizedError) Error() string      { return e.msg }
func (e *categorizedError) Kind() Kind         { return e.kind }
func (e *categorizedError) Category() Category { return e.category }

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{UnknownKind, "unknown"},
		{ValidationKind, "validation"},
		{NotFoundKind, "not_found"},
		{ConflictKind, "conflict"},
		{ProviderFailureKind, "provider_failure"},
		{AggregateFailureKind, "aggregate_failure"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "tagged error",
			err:  Tag(errors.New("boom"), ConflictKind),
			want: ConflictKind,
		},
		{
			name: "wrapped tagged error",
			err:  fmt.Errorf("outer: %w", Tag(errors.New("boom"), ValidationKind)),
			want: ValidationKind,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: UnknownKind,
		},
		{
			name: "newf error",
			err:  Newf(NotFoundKind, "provider %q not found", "alpha"),
			want: NotFoundKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: CodeUnknown,
		},
		{
			name: "explicit code",
			err:  TagWithCode(errors.New("slow down"), ProviderFailureKind, "RATE_LIMIT"),
			want: "RATE_LIMIT",
		},
		{
			name: "kind default code",
			err:  Tag(errors.New("bad"), ValidationKind),
			want: "VALIDATION_ERROR",
		},
		{
			name: "aggregate default code",
			err:  Newf(AggregateFailureKind, "all providers failed"),
			want: "ALL_PROVIDERS_FAILED",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{
			name: "explicit categorizer wins over kind",
			err:  &categorizedError{msg: "request timed out", kind: ProviderFailureKind, category: CategoryNetwork},
			want: CategoryNetwork,
		},
		{
			name: "validation kind",
			err:  Newf(ValidationKind, "priority must be non-negative"),
			want: CategoryValidation,
		},
		{
			name: "conflict kind",
			err:  Newf(ConflictKind, "provider already registered"),
			want: CategoryBusinessLogic,
		},
		{
			name: "provider failure kind",
			err:  Newf(ProviderFailureKind, "call failed"),
			want: CategoryExternalService,
		},
		{
			name: "heuristic network",
			err:  errors.New("dial tcp: connection refused"),
			want: CategoryNetwork,
		},
		{
			name: "heuristic auth beats validation",
			err:  errors.New("invalid api key"),
			want: CategoryAuthentication,
		},
		{
			name: "heuristic rate limit",
			err:  errors.New("rate limit exceeded, slow down"),
			want: CategoryExternalService,
		},
		{
			name: "heuristic validation",
			err:  errors.New("field model is required"),
			want: CategoryValidation,
		},
		{
			name: "heuristic configuration",
			err:  errors.New("yaml: line 3: could not find expected ':'"),
			want: CategoryConfiguration,
		},
		{
			name: "heuristic business logic",
			err:  errors.New("entry already exists"),
			want: CategoryBusinessLogic,
		},
		{
			name: "default system",
			err:  errors.New("segfault adjacent weirdness"),
			want: CategorySystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "timeout text",
			err:  errors.New("request timed out after 30s"),
			want: true,
		},
		{
			name: "provider failure tagged as network",
			err:  &categorizedError{msg: "upstream gone", kind: ProviderFailureKind, category: CategoryNetwork},
			want: true,
		},
		{
			name: "validation error",
			err:  Newf(ValidationKind, "bad strategy"),
			want: false,
		},
		{
			name: "auth error",
			err:  errors.New("unauthorized"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTagNil(t *testing.T) {
	if Tag(nil, ValidationKind) != nil {
		t.Error("Tag(nil) should return nil")
	}
	if TagWithCode(nil, ValidationKind, "X") != nil {
		t.Error("TagWithCode(nil) should return nil")
	}
}

func TestTagPreservesChain(t *testing.T) {
	sentinel := errors.New("root cause")
	tagged := Tag(fmt.Errorf("context: %w", sentinel), ProviderFailureKind)

	if !errors.Is(tagged, sentinel) {
		t.Error("tagged error should unwrap to the original sentinel")
	}
}
