package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/schedule"
)

// DefaultFlushInterval is how often totals are persisted when the
// configuration does not say otherwise.
const DefaultFlushInterval = 30 * time.Second

// flushTimeout bounds a single background flush.
const flushTimeout = 5 * time.Second

// Config contains configuration for the usage tracker.
type Config struct {
	// FlushInterval is how often dirty totals are written to the backend.
	// Zero or negative uses DefaultFlushInterval.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// Tracker is the usage ledger. Record is cheap and safe for concurrent use;
// a background task flushes totals to the backend.
type Tracker struct {
	backend       Backend
	flushInterval time.Duration
	clock         schedule.Clock
	logger        *slog.Logger

	mu        sync.Mutex
	providers map[string]*providerLedger
	task      *schedule.Task
}

// providerLedger is the in-memory ledger for one provider.
type providerLedger struct {
	allTime   WindowUsage
	hourly    *rollingWindow
	daily     *rollingWindow
	dirty     bool
	createdAt time.Time
}

// New creates a usage tracker over the given backend and restores persisted
// totals. A nil clock uses the real clock.
func New(backend Backend, cfg Config, clock schedule.Clock) (*Tracker, error) {
	if backend == nil {
		return nil, faults.Newf(faults.ValidationKind, "usage backend cannot be nil")
	}
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	t := &Tracker{
		backend:       backend,
		flushInterval: interval,
		clock:         clock,
		logger:        slog.Default().With("component", "usage"),
		providers:     make(map[string]*providerLedger),
	}

	states, err := backend.List(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to restore usage ledger: %w", err)
	}
	for _, state := range states {
		ledger := t.newLedgerLocked()
		ledger.allTime = WindowUsage{
			Requests: state.Requests,
			Tokens:   state.Tokens,
			Cost:     state.Cost,
		}
		ledger.createdAt = state.CreatedAt
		t.providers[state.Provider] = ledger
	}
	if len(states) > 0 {
		t.logger.Info("usage ledger restored", "providers", len(states))
	}

	return t, nil
}

// Record accounts one request against a provider.
func (t *Tracker) Record(provider string, tokens int, cost float64) {
	if provider == "" {
		return
	}
	u := WindowUsage{Requests: 1, Tokens: int64(tokens), Cost: cost}

	t.mu.Lock()
	ledger := t.ensureLocked(provider)
	ledger.allTime = ledger.allTime.add(u)
	ledger.dirty = true
	hourly, daily := ledger.hourly, ledger.daily
	t.mu.Unlock()

	hourly.add(u)
	daily.add(u)
}

// Snapshot returns a point-in-time view of the ledger.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	type entry struct {
		name    string
		allTime WindowUsage
		hourly  *rollingWindow
		daily   *rollingWindow
	}
	entries := make([]entry, 0, len(t.providers))
	for name, ledger := range t.providers {
		entries = append(entries, entry{name, ledger.allTime, ledger.hourly, ledger.daily})
	}
	t.mu.Unlock()

	snap := Snapshot{
		At:        t.clock.Now(),
		Providers: make(map[string]ProviderUsage, len(entries)),
	}
	for _, e := range entries {
		snap.Providers[e.name] = ProviderUsage{
			Provider: e.name,
			AllTime:  e.allTime,
			LastHour: e.hourly.sum(),
			LastDay:  e.daily.sum(),
		}
		snap.Totals = snap.Totals.add(e.allTime)
	}
	return snap
}

// Flush writes all dirty provider totals to the backend. Providers whose
// write fails stay dirty and are retried on the next flush.
func (t *Tracker) Flush(ctx context.Context) error {
	now := t.clock.Now()

	t.mu.Lock()
	type pending struct {
		ledger *providerLedger
		state  *ProviderState
	}
	var dirty []pending
	for name, ledger := range t.providers {
		if !ledger.dirty {
			continue
		}
		dirty = append(dirty, pending{ledger, &ProviderState{
			Provider:    name,
			Requests:    ledger.allTime.Requests,
			Tokens:      ledger.allTime.Tokens,
			Cost:        ledger.allTime.Cost,
			LastUpdated: now,
			CreatedAt:   ledger.createdAt,
		}})
	}
	t.mu.Unlock()

	var lastErr error
	for _, p := range dirty {
		if err := t.backend.Save(ctx, p.state); err != nil {
			t.logger.Error("failed to flush usage state",
				"provider", p.state.Provider,
				"error", err,
			)
			lastErr = err
			continue
		}
		t.mu.Lock()
		p.ledger.dirty = false
		t.mu.Unlock()
	}
	return lastErr
}

// Start begins the periodic flush task. Starting a running tracker is a
// warned no-op.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.task != nil {
		t.logger.Warn("usage flush already running")
		return nil
	}
	task, err := schedule.Repeat("usage-flush", t.flushInterval, t.clock, t.flushQuietly)
	if err != nil {
		return err
	}
	t.task = task

	t.logger.Info("usage tracker started", "flush_interval", t.flushInterval)
	return nil
}

// Stop halts the periodic flush and writes out any dirty totals.
func (t *Tracker) Stop() {
	t.mu.Lock()
	task := t.task
	t.task = nil
	t.mu.Unlock()

	if task != nil {
		task.Stop()
		t.logger.Info("usage tracker stopped")
	}
	t.flushQuietly()
}

// Running reports whether the periodic flush task is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.task != nil
}

// Close stops the tracker and closes the backend.
func (t *Tracker) Close() error {
	t.Stop()
	return t.backend.Close()
}

func (t *Tracker) flushQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := t.Flush(ctx); err != nil {
		t.logger.Error("usage flush failed", "error", err)
	}
}

// ensureLocked returns the ledger for a provider, creating it on first use.
// Caller holds mu.
func (t *Tracker) ensureLocked(name string) *providerLedger {
	ledger, ok := t.providers[name]
	if !ok {
		ledger = t.newLedgerLocked()
		ledger.createdAt = t.clock.Now()
		t.providers[name] = ledger
	}
	return ledger
}

// newLedgerLocked builds an empty ledger whose windows follow the tracker
// clock. Caller holds mu.
func (t *Tracker) newLedgerLocked() *providerLedger {
	hourly := newRollingWindow(time.Hour, time.Minute)
	hourly.now = t.clock.Now
	daily := newRollingWindow(24*time.Hour, time.Hour)
	daily.now = t.clock.Now

	return &providerLedger{hourly: hourly, daily: daily}
}
