package faults

import (
	"sync"
	"time"
)

// DefaultMaxRecentErrors bounds the recent-error ring when no explicit
// capacity is configured.
const DefaultMaxRecentErrors = 100

// rateWindow is the trailing window the derived error rate is computed over.
const rateWindow = time.Minute

// Record is one classified failure observation. Records are immutable once
// appended.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Category  Category  `json:"category"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Snapshot is a point-in-time copy of the aggregate error metrics.
type Snapshot struct {
	TotalErrors       int64            `json:"total_errors"`
	ErrorsByCode      map[string]int64 `json:"errors_by_code"`
	ErrorsByComponent map[string]int64 `json:"errors_by_component"`
	RecentErrors      []Record         `json:"recent_errors"`

	// ErrorRate is the number of errors observed in the trailing minute.
	ErrorRate float64 `json:"error_rate"`
}

// Metrics is the process-wide error aggregate: monotonic totals, per-code and
// per-component counters, and a bounded ring of recent records (most recent
// last). All mutations are serialized by a single lock; memory stays O(1) in
// request volume because the ring evicts its oldest entry once full.
type Metrics struct {
	mu          sync.Mutex
	maxRecent   int
	total       int64
	byCode      map[string]int64
	byComponent map[string]int64
	recent      []Record

	now func() time.Time
}

// NewMetrics creates an empty metrics aggregate. maxRecent bounds the recent
// ring; values <= 0 fall back to DefaultMaxRecentErrors.
func NewMetrics(maxRecent int) *Metrics {
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecentErrors
	}
	return &Metrics{
		maxRecent:   maxRecent,
		byCode:      make(map[string]int64),
		byComponent: make(map[string]int64),
		now:         time.Now,
	}
}

// Observe records one classified failure.
func (m *Metrics) Observe(code string, category Category, component, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.byCode[code]++
	m.byComponent[component]++

	m.recent = append(m.recent, Record{
		Timestamp: m.now(),
		Code:      code,
		Category:  category,
		Component: component,
		Message:   message,
	})
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[1:]
	}
}

// Total returns the monotonic error count.
func (m *Metrics) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Rate returns the derived error rate: errors observed in the trailing
// minute.
func (m *Metrics) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateLocked()
}

func (m *Metrics) rateLocked() float64 {
	cutoff := m.now().Add(-rateWindow)
	n := 0
	for i := len(m.recent) - 1; i >= 0; i-- {
		if m.recent[i].Timestamp.Before(cutoff) {
			break
		}
		n++
	}
	return float64(n)
}

// Snapshot returns a deep copy of the current aggregate plus the derived
// rate.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCode := make(map[string]int64, len(m.byCode))
	for k, v := range m.byCode {
		byCode[k] = v
	}
	byComponent := make(map[string]int64, len(m.byComponent))
	for k, v := range m.byComponent {
		byComponent[k] = v
	}
	recent := make([]Record, len(m.recent))
	copy(recent, m.recent)

	return Snapshot{
		TotalErrors:       m.total,
		ErrorsByCode:      byCode,
		ErrorsByComponent: byComponent,
		RecentErrors:      recent,
		ErrorRate:         m.rateLocked(),
	}
}

// Clear resets every counter and empties the recent ring.
func (m *Metrics) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = 0
	m.byCode = make(map[string]int64)
	m.byComponent = make(map[string]int64)
	m.recent = nil
}
