package registry

import (
	"sync"
	"time"
)

// StatsSnapshot is a point-in-time copy of one provider's live statistics.
type StatsSnapshot struct {
	RequestCount        int64         `json:"request_count"`
	ErrorCount          int64         `json:"error_count"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	Healthy             bool          `json:"healthy"`
	LastUsed            time.Time     `json:"last_used"`
	LastCheckLatency    time.Duration `json:"last_check_latency"`
	LastChecked         time.Time     `json:"last_checked"`
}

// statsRow holds one provider's mutable statistics. Every mutation takes the
// row lock, so the increment and the rolling-average fold of a sample are a
// single atomic step and the divide uses the already-incremented count.
type statsRow struct {
	mu sync.Mutex

	requestCount     int64
	errorCount       int64
	avgResponse      time.Duration
	healthy          bool
	lastUsed         time.Time
	lastCheckLatency time.Duration
	lastChecked      time.Time
}

// recordSuccess folds one successful request sample into the row: the
// request count is incremented and the running mean recomputed as
// ((prevAvg*(n-1))+sample)/n with n the new count. Success also marks the
// provider healthy.
func (s *statsRow) recordSuccess(sample time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestCount++
	n := s.requestCount
	s.avgResponse = time.Duration((int64(s.avgResponse)*(n-1) + int64(sample)) / n)
	s.healthy = true
	s.lastUsed = now
}

// recordFailure counts one failed request and marks the provider unhealthy.
func (s *statsRow) recordFailure(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorCount++
	s.healthy = false
	s.lastUsed = now
}

// setHealth is the health monitor's write-back. Probe latency is kept apart
// from the request rolling mean.
func (s *statsRow) setHealth(healthy bool, latency time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.healthy = healthy
	s.lastCheckLatency = latency
	s.lastChecked = now
}

func (s *statsRow) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsSnapshot{
		RequestCount:        s.requestCount,
		ErrorCount:          s.errorCount,
		AverageResponseTime: s.avgResponse,
		Healthy:             s.healthy,
		LastUsed:            s.lastUsed,
		LastCheckLatency:    s.lastCheckLatency,
		LastChecked:         s.lastChecked,
	}
}

// statsTable maps provider name to its stats row. Row creation and removal
// happen only inside the registry's own lock, keeping descriptor and stats
// lifecycles atomic for observers.
type statsTable struct {
	mu   sync.RWMutex
	rows map[string]*statsRow
}

func newStatsTable() *statsTable {
	return &statsTable{rows: make(map[string]*statsRow)}
}

// create initializes a fresh row. New providers start healthy so they are
// selectable before the first probe.
func (t *statsTable) create(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[name] = &statsRow{healthy: true}
}

func (t *statsTable) remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, name)
}

func (t *statsTable) row(name string) (*statsRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[name]
	return row, ok
}

func (t *statsTable) snapshotAll() map[string]StatsSnapshot {
	t.mu.RLock()
	rows := make(map[string]*statsRow, len(t.rows))
	for name, row := range t.rows {
		rows[name] = row
	}
	t.mu.RUnlock()

	out := make(map[string]StatsSnapshot, len(rows))
	for name, row := range rows {
		out[name] = row.snapshot()
	}
	return out
}
