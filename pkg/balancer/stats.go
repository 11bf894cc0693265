package balancer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of balancer counters, safe to read
// without locks.
type Stats struct {
	// TotalSelections is the number of SelectProvider calls.
	TotalSelections int64 `json:"total_selections"`

	// TotalExecutions is the number of ExecuteWithFallback calls.
	TotalExecutions int64 `json:"total_executions"`

	// SelectionsPerProvider counts selections and successful executions per
	// provider.
	SelectionsPerProvider map[string]int64 `json:"selections_per_provider"`

	// StrategyUseCount counts selections per strategy name.
	StrategyUseCount map[string]int64 `json:"strategy_use_count"`

	// HealthFilteredCount counts selections where unhealthy providers were
	// excluded.
	HealthFilteredCount int64 `json:"health_filtered_count"`

	// DegradedCount counts selections that fell back to an unhealthy
	// provider because no healthy candidate remained.
	DegradedCount int64 `json:"degraded_count"`

	// FallbackCount counts attempts that continued past a provider failure.
	FallbackCount int64 `json:"fallback_count"`

	// ExhaustedCount counts ExecuteWithFallback calls that failed every
	// attempt.
	ExhaustedCount int64 `json:"exhausted_count"`

	// Errors counts terminal balancer errors.
	Errors int64 `json:"errors"`

	// LastResetTime is when the counters were last reset.
	LastResetTime time.Time `json:"last_reset_time"`
}

// atomicStats tracks balancer counters with atomic operations so the request
// path never blocks on a stats lock.
type atomicStats struct {
	totalSelections atomic.Int64
	totalExecutions atomic.Int64

	// perProvider and perStrategy hold *atomic.Int64 values keyed by name.
	perProvider sync.Map
	perStrategy sync.Map

	healthFiltered atomic.Int64
	degraded       atomic.Int64
	fallbacks      atomic.Int64
	exhausted      atomic.Int64
	errors         atomic.Int64

	// mu protects lastReset.
	mu        sync.RWMutex
	lastReset time.Time
}

func newAtomicStats() *atomicStats {
	return &atomicStats{
		lastReset: time.Now(),
	}
}

func (s *atomicStats) incrementSelections() {
	s.totalSelections.Add(1)
}

func (s *atomicStats) incrementExecutions() {
	s.totalExecutions.Add(1)
}

func (s *atomicStats) incrementProvider(name string) {
	val, _ := s.perProvider.LoadOrStore(name, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func (s *atomicStats) incrementStrategy(name string) {
	val, _ := s.perStrategy.LoadOrStore(name, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func (s *atomicStats) incrementHealthFiltered() {
	s.healthFiltered.Add(1)
}

func (s *atomicStats) incrementDegraded() {
	s.degraded.Add(1)
}

func (s *atomicStats) incrementFallbacks() {
	s.fallbacks.Add(1)
}

func (s *atomicStats) incrementExhausted() {
	s.exhausted.Add(1)
}

func (s *atomicStats) incrementErrors() {
	s.errors.Add(1)
}

// snapshot copies the counters into a Stats value.
func (s *atomicStats) snapshot() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perProvider := make(map[string]int64)
	s.perProvider.Range(func(key, value any) bool {
		perProvider[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	perStrategy := make(map[string]int64)
	s.perStrategy.Range(func(key, value any) bool {
		perStrategy[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &Stats{
		TotalSelections:       s.totalSelections.Load(),
		TotalExecutions:       s.totalExecutions.Load(),
		SelectionsPerProvider: perProvider,
		StrategyUseCount:      perStrategy,
		HealthFilteredCount:   s.healthFiltered.Load(),
		DegradedCount:         s.degraded.Load(),
		FallbackCount:         s.fallbacks.Load(),
		ExhaustedCount:        s.exhausted.Load(),
		Errors:                s.errors.Load(),
		LastResetTime:         s.lastReset,
	}
}

// reset zeroes every counter.
func (s *atomicStats) reset() {
	s.totalSelections.Store(0)
	s.totalExecutions.Store(0)
	s.healthFiltered.Store(0)
	s.degraded.Store(0)
	s.fallbacks.Store(0)
	s.exhausted.Store(0)
	s.errors.Store(0)

	s.perProvider.Range(func(key, value any) bool {
		s.perProvider.Delete(key)
		return true
	})
	s.perStrategy.Range(func(key, value any) bool {
		s.perStrategy.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastReset = time.Now()
	s.mu.Unlock()
}
