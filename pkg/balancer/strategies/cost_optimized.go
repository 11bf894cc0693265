package strategies

import (
	"nimbus-hq/helios/pkg/providers"
)

// CostOptimized routes each request to the candidate with the highest
// descriptor priority. Operators encode cost preference in priorities, so
// the cheapest acceptable provider carries the largest value.
//
// The strategy is stateless; all state lives in the candidate snapshots.
type CostOptimized struct{}

// NewCostOptimized creates a cost-optimized strategy.
func NewCostOptimized() *CostOptimized {
	return &CostOptimized{}
}

// Select returns the candidate with the highest priority.
// Ties keep the earliest candidate in list order.
func (s *CostOptimized) Select(req *providers.GenerationRequest, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority > best.Priority {
			best = c
		}
	}
	return best, nil
}

// Name returns the strategy name.
func (s *CostOptimized) Name() string {
	return NameCostOptimized
}

// Reset is a no-op; the strategy keeps no internal state.
func (s *CostOptimized) Reset() {}
