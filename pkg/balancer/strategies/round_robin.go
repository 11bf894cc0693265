package strategies

import (
	"sync/atomic"

	"nimbus-hq/helios/pkg/providers"
)

// counterResetThreshold bounds the rotation counter. Once the counter passes
// it, the next selection resets it to zero so it never approaches overflow.
const counterResetThreshold = 1_000_000_000

// RoundRobin distributes requests evenly across candidates by rotating
// through the list in order.
//
// Each balancer owns its own RoundRobin instance, so rotation position is
// per-balancer rather than global. The counter is atomic and reset on
// overflow to prevent unbounded growth.
type RoundRobin struct {
	counter atomic.Int64
}

// NewRoundRobin creates a round-robin strategy starting at the first candidate.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select returns the next candidate in rotation.
//
// The counter advances on every call, so with a stable candidate list of
// length n the selections cycle through positions 0..n-1 in order.
func (s *RoundRobin) Select(req *providers.GenerationRequest, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	// Single candidate - nothing to rotate over.
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	count := s.counter.Add(1) - 1

	// Reset the counter once it gets large. CompareAndSwap keeps concurrent
	// callers from clobbering each other's resets.
	if count >= counterResetThreshold {
		s.counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	index := int(count % int64(len(candidates)))
	return candidates[index], nil
}

// Name returns the strategy name.
func (s *RoundRobin) Name() string {
	return NameRoundRobin
}

// Reset rewinds the rotation counter to the first candidate.
func (s *RoundRobin) Reset() {
	s.counter.Store(0)
}
