package runtime

import (
	"sort"
	"time"

	"nimbus-hq/helios/pkg/alerting"
	"nimbus-hq/helios/pkg/balancer"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/health"
	"nimbus-hq/helios/pkg/registry"
	"nimbus-hq/helios/pkg/usage"
)

// ProviderStatus couples a provider's descriptor with its live stats.
type ProviderStatus struct {
	registry.Descriptor
	Stats registry.StatsSnapshot `json:"stats"`
}

// BalancerStatus is the balancer slice of the aggregate status.
type BalancerStatus struct {
	Strategy string          `json:"strategy"`
	Config   balancer.Config `json:"config"`
	Stats    *balancer.Stats `json:"stats"`
}

// JournalStatus is the journal slice of the aggregate status.
type JournalStatus struct {
	Enabled     bool       `json:"enabled"`
	Backend     string     `json:"backend,omitempty"`
	Dropped     int64      `json:"dropped"`
	NextPruning *time.Time `json:"next_pruning,omitempty"`
}

// Status is the aggregate view of the whole system, served by the status
// endpoint and printed by the CLI.
type Status struct {
	Version   string           `json:"version,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Uptime    time.Duration    `json:"uptime"`
	Providers []ProviderStatus `json:"providers"`
	Balancer  BalancerStatus   `json:"balancer"`
	Health    *health.Status   `json:"health"`
	Faults    faults.Snapshot  `json:"faults"`
	Alerts    alerting.Status  `json:"alerts"`
	Usage     *usage.Snapshot  `json:"usage,omitempty"`
	Journal   JournalStatus    `json:"journal"`
}

// Status assembles a point-in-time view across every subsystem. The slices
// are snapshots; mutating them does not touch live state.
func (r *Runtime) Status() *Status {
	r.mu.Lock()
	cfg := r.cfg
	started := r.started
	startedAt := r.startedAt
	r.mu.Unlock()

	st := &Status{
		Version:   r.version,
		StartedAt: startedAt,
		Balancer: BalancerStatus{
			Strategy: r.balancer.Strategy(),
			Config:   r.balancer.Config(),
			Stats:    r.balancer.Stats(),
		},
		Health: r.health.Status(),
		Faults: r.faultMetrics.Snapshot(),
		Alerts: r.alerts.Status(),
	}
	if started {
		st.Uptime = r.clock.Now().Sub(startedAt)
	}

	stats := r.registry.AllStats()
	for _, reg := range r.registry.ListAll() {
		ps := ProviderStatus{Descriptor: reg.Descriptor}
		if snap, ok := stats[reg.Descriptor.Name]; ok {
			ps.Stats = snap
		}
		st.Providers = append(st.Providers, ps)
	}
	sort.Slice(st.Providers, func(i, j int) bool {
		return st.Providers[i].Name < st.Providers[j].Name
	})

	if r.usage != nil {
		snap := r.usage.Snapshot()
		st.Usage = &snap
	}

	st.Journal = JournalStatus{Enabled: r.journal != nil}
	if r.journal != nil {
		st.Journal.Backend = cfg.Journal.Backend
		st.Journal.Dropped = r.journal.Dropped()
	}
	if r.pruner != nil {
		st.Journal.NextPruning = r.pruner.NextPruning()
	}
	return st
}
