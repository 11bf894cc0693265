package strategies

import (
	"errors"
	"fmt"
	"strings"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
)

// Strategy names accepted by New and by the balancer configuration.
const (
	NameRoundRobin    = "round_robin"
	NameLeastLoaded   = "least_loaded"
	NameCostOptimized = "cost_optimized"
)

// ErrNoCandidates is returned when a strategy is asked to select from an
// empty candidate list.
var ErrNoCandidates = errors.New("no candidates available for selection")

// ErrUnknownStrategy is returned when an unrecognized strategy name is
// configured.
var ErrUnknownStrategy = errors.New("unknown balancing strategy")

// Candidate is one provider eligible for selection. The balancer builds the
// candidate list from registry descriptors and stats after capability and
// health filtering, so strategies only rank what they are given.
type Candidate struct {
	// Name is the provider's registered name.
	Name string

	// Priority is the descriptor priority (higher is preferred).
	Priority int

	// RequestCount is the provider's lifetime request count at selection time.
	RequestCount int64

	// Adapter is the provider's transport adapter.
	Adapter providers.Adapter
}

// Strategy selects one candidate from a filtered list.
//
// Implementations must be safe for concurrent use; the balancer calls Select
// from every request goroutine.
type Strategy interface {
	// Select picks a candidate for the request. The candidate list is already
	// filtered for capability and health; strategies only decide the order.
	//
	// Returns ErrNoCandidates when the list is empty.
	Select(req *providers.GenerationRequest, candidates []Candidate) (Candidate, error)

	// Name returns the strategy name for logging and statistics.
	Name() string

	// Reset clears internal state such as rotation counters.
	Reset()
}

// Names returns the valid strategy names in a stable order.
func Names() []string {
	return []string{NameRoundRobin, NameLeastLoaded, NameCostOptimized}
}

// New constructs the strategy registered under name.
// Unknown names fail with an UnknownStrategyError.
func New(name string) (Strategy, error) {
	switch name {
	case NameRoundRobin:
		return NewRoundRobin(), nil
	case NameLeastLoaded:
		return NewLeastLoaded(), nil
	case NameCostOptimized:
		return NewCostOptimized(), nil
	default:
		return nil, &UnknownStrategyError{Strategy: name, Available: Names()}
	}
}

// UnknownStrategyError is returned when the configured strategy name is not
// recognized.
type UnknownStrategyError struct {
	// Strategy is the invalid strategy name.
	Strategy string

	// Available contains the valid strategy names.
	Available []string
}

// Error implements the error interface.
func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown balancing strategy %q (available strategies: %s)",
		e.Strategy, strings.Join(e.Available, ", "))
}

// Is implements error matching for errors.Is().
func (e *UnknownStrategyError) Is(target error) bool {
	return target == ErrUnknownStrategy
}

// Kind reports the classification for this error.
func (e *UnknownStrategyError) Kind() faults.Kind {
	return faults.ValidationKind
}
