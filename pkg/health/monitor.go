// Package health probes registered providers on a recurring schedule and
// writes the results back into the registry stats. The balancer reads those
// results when filtering candidates, so an unhealthy provider drops out of
// rotation within one probe interval.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/registry"
	"nimbus-hq/helios/pkg/schedule"
)

// Config controls probe scheduling and per-probe bounds.
type Config struct {
	// Interval is how often every provider is probed.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// Timeout bounds each individual probe attempt.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Retries is how many additional attempts follow a failed probe within
	// one sweep. Zero means a single attempt per provider per sweep.
	Retries int `yaml:"retries" json:"retries"`
}

// DefaultConfig returns the probing defaults: a 30 second sweep with 5
// second probes and two retries.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  2,
	}
}

// Validate checks the configuration for use.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return faults.Newf(faults.ValidationKind, "interval must be positive, got %v", c.Interval)
	}
	if c.Timeout <= 0 {
		return faults.Newf(faults.ValidationKind, "timeout must be positive, got %v", c.Timeout)
	}
	if c.Retries < 0 {
		return faults.Newf(faults.ValidationKind, "retries must be non-negative, got %d", c.Retries)
	}
	return nil
}

// ProviderHealth is the last-known probe outcome for one provider.
type ProviderHealth struct {
	// Healthy is the provider's current health flag.
	Healthy bool `json:"healthy"`

	// Enabled mirrors the descriptor's enabled flag.
	Enabled bool `json:"enabled"`

	// Latency is the duration of the deciding probe attempt.
	Latency time.Duration `json:"latency"`

	// LastChecked is when the provider was last probed. Zero when no sweep
	// has reached it yet.
	LastChecked time.Time `json:"last_checked"`
}

// Status is an on-demand snapshot of monitor state.
type Status struct {
	// Overall is true when every enabled provider is healthy.
	Overall bool `json:"overall"`

	// Running reports whether the probe loop is active.
	Running bool `json:"running"`

	// Providers holds the last-known outcome per provider name.
	Providers map[string]ProviderHealth `json:"providers"`
}

// Monitor drives recurring health sweeps over the registry.
type Monitor struct {
	registry *registry.Registry
	cfg      Config
	clock    schedule.Clock
	logger   *slog.Logger

	// mu guards task and cancel, which exist only while running, and the
	// probe-result callback.
	mu       sync.Mutex
	task     *schedule.Task
	cancel   context.CancelFunc
	onResult func(name string, healthy bool, latency time.Duration)
}

// New creates a monitor over reg. A nil clock uses the real clock.
func New(reg *registry.Registry, cfg Config, clock schedule.Clock) (*Monitor, error) {
	if reg == nil {
		return nil, faults.Newf(faults.ValidationKind, "registry cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	return &Monitor{
		registry: reg,
		cfg:      cfg,
		clock:    clock,
		logger:   slog.Default().With("component", "health"),
	}, nil
}

// Start launches the probe loop. Starting an already running monitor logs a
// warning and changes nothing.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.task != nil {
		m.logger.Warn("health monitor already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	task, err := schedule.Repeat("health-sweep", m.cfg.Interval, m.clock, func() {
		m.sweep(ctx)
	})
	if err != nil {
		cancel()
		return err
	}

	m.task = task
	m.cancel = cancel
	m.logger.Info("health monitor started",
		"interval", m.cfg.Interval,
		"timeout", m.cfg.Timeout,
		"retries", m.cfg.Retries,
	)
	return nil
}

// Stop halts the probe loop and waits for any in-flight sweep to finish.
// After Stop returns no probe runs. Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	task := m.task
	cancel := m.cancel
	m.task = nil
	m.cancel = nil
	m.mu.Unlock()

	if task == nil {
		return
	}

	// Cancel first so in-flight probes abort instead of running out their
	// timeouts, then wait for the loop to exit.
	cancel()
	task.Stop()
	m.logger.Info("health monitor stopped")
}

// Running reports whether the probe loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task != nil
}

// CheckNow runs one synchronous sweep outside the schedule.
func (m *Monitor) CheckNow(ctx context.Context) {
	m.sweep(ctx)
}

// OnResult registers fn to receive every probe outcome after it has been
// written to the registry. A nil fn clears the callback.
func (m *Monitor) OnResult(fn func(name string, healthy bool, latency time.Duration)) {
	m.mu.Lock()
	m.onResult = fn
	m.mu.Unlock()
}

// Status reports the last-known health per provider and the derived overall
// flag. Disabled providers appear in the map but do not affect Overall.
func (m *Monitor) Status() *Status {
	regs := m.registry.ListAll()
	stats := m.registry.AllStats()

	perProvider := make(map[string]ProviderHealth, len(regs))
	overall := true
	for _, reg := range regs {
		name := reg.Descriptor.Name
		snap, ok := stats[name]
		if !ok {
			continue
		}
		perProvider[name] = ProviderHealth{
			Healthy:     snap.Healthy,
			Enabled:     reg.Descriptor.Enabled,
			Latency:     snap.LastCheckLatency,
			LastChecked: snap.LastChecked,
		}
		if reg.Descriptor.Enabled && !snap.Healthy {
			overall = false
		}
	}

	return &Status{
		Overall:   overall,
		Running:   m.Running(),
		Providers: perProvider,
	}
}

// sweep probes every registered provider concurrently and writes the
// outcomes into the registry.
func (m *Monitor) sweep(ctx context.Context) {
	regs := m.registry.ListAll()
	if len(regs) == 0 {
		return
	}

	m.mu.Lock()
	notify := m.onResult
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(name string, adapter providers.Adapter) {
			defer wg.Done()

			healthy, latency := m.probe(ctx, adapter)
			if err := m.registry.SetHealth(name, healthy, latency); err != nil {
				// Removed mid-sweep.
				return
			}
			if !healthy {
				m.logger.Warn("provider unhealthy", "provider", name, "latency", latency)
			}
			if notify != nil {
				notify(name, healthy, latency)
			}
		}(reg.Descriptor.Name, reg.Adapter)
	}
	wg.Wait()
}

// probe runs up to Retries+1 health checks, each bounded by Timeout. The
// provider is healthy if any attempt succeeds; the reported latency is the
// duration of the deciding attempt.
func (m *Monitor) probe(ctx context.Context, adapter providers.Adapter) (bool, time.Duration) {
	attempts := m.cfg.Retries + 1
	var latency time.Duration

	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false, latency
		}

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		start := m.clock.Now()
		err := adapter.HealthCheck(attemptCtx)
		latency = m.clock.Now().Sub(start)
		cancel()

		if err == nil {
			return true, latency
		}
	}
	return false, latency
}
