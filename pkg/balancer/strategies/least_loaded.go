package strategies

import (
	"nimbus-hq/helios/pkg/providers"
)

// LeastLoaded routes each request to the candidate that has served the
// fewest requests so far, using the lifetime request counts the balancer
// reads from the registry.
//
// The strategy is stateless; all state lives in the candidate snapshots.
type LeastLoaded struct{}

// NewLeastLoaded creates a least-loaded strategy.
func NewLeastLoaded() *LeastLoaded {
	return &LeastLoaded{}
}

// Select returns the candidate with the smallest request count.
// Ties keep the earliest candidate in list order, which preserves the
// priority ordering the balancer passes in.
func (s *LeastLoaded) Select(req *providers.GenerationRequest, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.RequestCount < best.RequestCount {
			best = c
		}
	}
	return best, nil
}

// Name returns the strategy name.
func (s *LeastLoaded) Name() string {
	return NameLeastLoaded
}

// Reset is a no-op; the strategy keeps no internal state.
func (s *LeastLoaded) Reset() {}
