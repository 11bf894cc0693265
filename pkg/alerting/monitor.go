package alerting

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/schedule"
)

// DefaultMaxHistory bounds the per-alert firing history when no explicit
// bound is configured.
const DefaultMaxHistory = 50

// Config configures the alert monitor.
type Config struct {
	// Enabled switches alert evaluation on. A disabled monitor accepts
	// alert definitions but Start does nothing.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Interval is the time between evaluation sweeps.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// MaxHistory bounds the firing history kept per alert. Values <= 0
	// fall back to DefaultMaxHistory.
	MaxHistory int `yaml:"max_history" json:"max_history"`
}

// DefaultConfig returns the monitor defaults: enabled, evaluating once a
// minute.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Interval:   time.Minute,
		MaxHistory: DefaultMaxHistory,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return faults.Newf(faults.ValidationKind, "alert interval must be positive, got %s", c.Interval)
	}
	return nil
}

// Status is a point-in-time summary of the monitor.
type Status struct {
	Enabled           bool `json:"enabled"`
	Running           bool `json:"running"`
	AlertCount        int  `json:"alert_count"`
	EnabledAlertCount int  `json:"enabled_alert_count"`
}

// AlertStatus is one alert definition plus its firing state.
type AlertStatus struct {
	Alert         Alert     `json:"alert"`
	LastTriggered time.Time `json:"last_triggered"`
	FireCount     int64     `json:"fire_count"`
}

// entry is an alert with the monitor-owned firing state.
type entry struct {
	alert         Alert
	lastTriggered time.Time
	fireCount     int64
	history       []Event
}

// firing is one tripped alert collected under the table lock, executed
// outside it.
type firing struct {
	alert Alert
	event Event
}

// Monitor evaluates the alert table against the fault metrics on its own
// repeating task.
type Monitor struct {
	metrics    *faults.Metrics
	cfg        Config
	clock      schedule.Clock
	logger     *slog.Logger
	maxHistory int

	// mu guards the alert table, the executor table, the cooldown
	// check-and-set, and the task handle.
	mu        sync.Mutex
	alerts    map[string]*entry
	executors map[string]Executor
	task      *schedule.Task
}

// New creates a monitor over metrics. A nil clock uses the real clock. The
// log, email, webhook and chat executors are pre-registered; RegisterExecutor
// replaces or extends them.
func New(metrics *faults.Metrics, cfg Config, clock schedule.Clock) (*Monitor, error) {
	if metrics == nil {
		return nil, faults.Newf(faults.ValidationKind, "metrics cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	m := &Monitor{
		metrics:    metrics,
		cfg:        cfg,
		clock:      clock,
		logger:     slog.Default().With("component", "alerting"),
		maxHistory: maxHistory,
		alerts:     make(map[string]*entry),
		executors:  make(map[string]Executor),
	}
	for _, ex := range []Executor{
		NewLogExecutor(nil),
		NewEmailExecutor(),
		NewWebhookExecutor(),
		NewChatExecutor(),
	} {
		m.executors[ex.Name()] = ex
	}
	return m, nil
}

// RegisterExecutor installs ex for its action type. The last registration
// for a type wins.
func (m *Monitor) RegisterExecutor(ex Executor) error {
	if ex == nil {
		return faults.Newf(faults.ValidationKind, "executor cannot be nil")
	}
	if ex.Name() == "" {
		return faults.Newf(faults.ValidationKind, "executor name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.executors[ex.Name()]; exists {
		m.logger.Debug("replacing registered executor", "type", ex.Name())
	}
	m.executors[ex.Name()] = ex
	return nil
}

// AddAlert upserts an alert by id. Updating an existing id replaces the
// definition but keeps its firing state, so an update cannot reset a
// cooldown. Returns a ValidationKind error for a malformed alert or an
// action type with no registered executor.
func (m *Monitor) AddAlert(a Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Severity == "" {
		a.Severity = SeverityWarning
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, action := range a.Actions {
		if _, ok := m.executors[action.Type]; !ok {
			return faults.Newf(faults.ValidationKind, "alert %q: no executor for action type %q", a.ID, action.Type)
		}
	}

	if e, exists := m.alerts[a.ID]; exists {
		e.alert = a
		return nil
	}
	m.alerts[a.ID] = &entry{alert: a}
	return nil
}

// RemoveAlert deletes an alert and its history. Returns a NotFoundKind
// error if the id is unknown.
func (m *Monitor) RemoveAlert(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.alerts[id]; !exists {
		return faults.Newf(faults.NotFoundKind, "alert %q is not registered", id)
	}
	delete(m.alerts, id)
	return nil
}

// Alerts returns every alert with its firing state, sorted by id.
func (m *Monitor) Alerts() []AlertStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AlertStatus, 0, len(m.alerts))
	for _, e := range m.alerts {
		out = append(out, AlertStatus{
			Alert:         e.alert,
			LastTriggered: e.lastTriggered,
			FireCount:     e.fireCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alert.ID < out[j].Alert.ID })
	return out
}

// History returns the firing events recorded for an alert, oldest first.
// Returns a NotFoundKind error if the id is unknown.
func (m *Monitor) History(id string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.alerts[id]
	if !exists {
		return nil, faults.Newf(faults.NotFoundKind, "alert %q is not registered", id)
	}
	history := make([]Event, len(e.history))
	copy(history, e.history)
	return history, nil
}

// Status summarizes the monitor for status endpoints.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	enabled := 0
	for _, e := range m.alerts {
		if e.alert.Enabled {
			enabled++
		}
	}
	return Status{
		Enabled:           m.cfg.Enabled,
		Running:           m.task != nil,
		AlertCount:        len(m.alerts),
		EnabledAlertCount: enabled,
	}
}

// Start launches the evaluation loop. Starting an already running monitor
// logs a warning and changes nothing; starting a disabled monitor does
// nothing.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled {
		m.logger.Info("alert monitor disabled")
		return nil
	}
	if m.task != nil {
		m.logger.Warn("alert monitor already running")
		return nil
	}

	task, err := schedule.Repeat("alert-sweep", m.cfg.Interval, m.clock, m.sweep)
	if err != nil {
		return err
	}
	m.task = task
	m.logger.Info("alert monitor started", "interval", m.cfg.Interval)
	return nil
}

// Stop halts the evaluation loop and waits for any in-flight sweep to
// finish. After Stop returns no evaluation runs. Stopping a stopped monitor
// is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	task := m.task
	m.task = nil
	m.mu.Unlock()

	if task == nil {
		return
	}
	task.Stop()
	m.logger.Info("alert monitor stopped")
}

// Running reports whether the evaluation loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task != nil
}

// Evaluate runs one synchronous sweep outside the schedule.
func (m *Monitor) Evaluate() {
	m.sweep()
}

// sweep snapshots the metrics, collects every alert that fires under the
// table lock, then runs the actions outside it.
func (m *Monitor) sweep() {
	snap := m.metrics.Snapshot()
	now := m.clock.Now()

	for _, f := range m.collectFiring(snap, now) {
		m.logger.Info("alert condition met",
			"alert_id", f.alert.ID,
			"value", f.event.Value,
			"threshold", f.event.Threshold,
		)
		m.runActions(f, snap)
	}
}

// collectFiring evaluates every enabled, out-of-cooldown alert. Setting
// lastTriggered happens under the same lock acquisition as the cooldown
// check, so a concurrent sweep cannot fire the alert again.
func (m *Monitor) collectFiring(snap faults.Snapshot, now time.Time) []firing {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.alerts))
	for id := range m.alerts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var fired []firing
	for _, id := range ids {
		e := m.alerts[id]
		if !e.alert.Enabled {
			continue
		}
		if !e.lastTriggered.IsZero() && !now.After(e.lastTriggered.Add(e.alert.Cooldown)) {
			continue
		}

		value, met := evaluateCondition(e.alert.Condition, snap, now)
		if !met {
			continue
		}

		e.lastTriggered = now
		e.fireCount++
		event := Event{
			ID:        uuid.New().String(),
			AlertID:   e.alert.ID,
			AlertName: e.alert.Name,
			Time:      now,
			Value:     value,
			Threshold: e.alert.Condition.Threshold,
			Severity:  e.alert.Severity,
			Message:   describeFiring(e.alert.Condition, value),
		}
		e.history = append(e.history, event)
		if len(e.history) > m.maxHistory {
			e.history = e.history[len(e.history)-m.maxHistory:]
		}
		fired = append(fired, firing{alert: e.alert, event: event})
	}
	return fired
}

// runActions executes the fired alert's actions in order. Each action is
// isolated: a failing or panicking executor is logged and the remaining
// actions still run.
func (m *Monitor) runActions(f firing, snap faults.Snapshot) {
	for _, action := range f.alert.Actions {
		ex := m.executorFor(action.Type)
		if ex == nil {
			m.logger.Error("no executor for alert action",
				"alert_id", f.alert.ID,
				"type", action.Type,
			)
			continue
		}
		if err := m.execute(ex, action, f.event, snap); err != nil {
			m.logger.Error("alert action failed",
				"alert_id", f.alert.ID,
				"type", action.Type,
				"error", err,
			)
		}
	}
}

func (m *Monitor) executorFor(name string) Executor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executors[name]
}

// execute runs one executor, containing panics so a broken action degrades
// to a logged failure.
func (m *Monitor) execute(ex Executor, action Action, event Event, snap faults.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Newf(faults.UnknownKind, "action executor panicked: %v", r)
		}
	}()
	return ex.Execute(action, event, snap)
}

// evaluateCondition measures the condition against the snapshot and reports
// whether it trips.
func evaluateCondition(cond Condition, snap faults.Snapshot, now time.Time) (float64, bool) {
	switch cond.Kind {
	case ConditionErrorRate:
		return snap.ErrorRate, snap.ErrorRate > cond.Threshold
	case ConditionErrorCount:
		n := countRecent(snap.RecentErrors, now, cond.Window, "", "")
		return float64(n), float64(n) > cond.Threshold
	case ConditionSpecificError:
		n := countRecent(snap.RecentErrors, now, cond.Window, cond.Code, "")
		return float64(n), float64(n) > cond.Threshold
	case ConditionComponentFailure:
		n := countRecent(snap.RecentErrors, now, cond.Window, "", cond.Component)
		return float64(n), float64(n) > cond.Threshold
	}
	return 0, false
}

// countRecent counts records inside the window matching the optional code
// and component filters. Records are ordered most-recent last, so the scan
// walks backwards and stops at the first record older than the cutoff.
func countRecent(records []faults.Record, now time.Time, window time.Duration, code, component string) int {
	cutoff := time.Time{}
	if window > 0 {
		cutoff = now.Add(-window)
	}

	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if !cutoff.IsZero() && r.Timestamp.Before(cutoff) {
			break
		}
		if code != "" && r.Code != code {
			continue
		}
		if component != "" && r.Component != component {
			continue
		}
		n++
	}
	return n
}

func describeFiring(cond Condition, value float64) string {
	switch cond.Kind {
	case ConditionErrorRate:
		return fmt.Sprintf("error rate %g exceeds threshold %g", value, cond.Threshold)
	case ConditionErrorCount:
		return fmt.Sprintf("%.0f recent errors exceed threshold %g", value, cond.Threshold)
	case ConditionSpecificError:
		return fmt.Sprintf("%.0f recent %s errors exceed threshold %g", value, cond.Code, cond.Threshold)
	case ConditionComponentFailure:
		return fmt.Sprintf("%.0f recent failures in %s exceed threshold %g", value, cond.Component, cond.Threshold)
	}
	return fmt.Sprintf("value %g exceeds threshold %g", value, cond.Threshold)
}
