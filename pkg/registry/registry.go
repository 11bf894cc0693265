// Package registry owns the authoritative map of provider name to
// descriptor, adapter handle, and live statistics. All other routing
// components read and write provider state through it.
package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"nimbus-hq/helios/pkg/providers"
)

// Descriptor is a provider's registered identity. It is immutable except
// through UpdateDescriptor, which re-validates the whole merged record.
type Descriptor struct {
	// Name is the unique provider key.
	Name string `json:"name"`

	// Capabilities is the feature set used for request filtering.
	Capabilities providers.Capabilities `json:"capabilities"`

	// Priority orders providers; higher is preferred.
	Priority int `json:"priority"`

	// Enabled gates the provider in and out of selection without
	// unregistering it.
	Enabled bool `json:"enabled"`

	// Endpoint is an optional alternate endpoint, recorded for status
	// surfaces; the adapter itself was already built against it.
	Endpoint string `json:"endpoint,omitempty"`

	// CostPer1KTokens is the billing rate used by the usage ledger.
	CostPer1KTokens float64 `json:"cost_per_1k_tokens,omitempty"`
}

// Validate checks the descriptor invariants.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if d.Priority < 0 {
		return &ValidationError{Name: d.Name, Field: "priority", Message: "priority must be non-negative"}
	}
	if d.CostPer1KTokens < 0 {
		return &ValidationError{Name: d.Name, Field: "cost_per_1k_tokens", Message: "cost must be non-negative"}
	}
	return nil
}

// DescriptorUpdate is a partial descriptor change. Nil fields keep their
// current value; Name is not updatable.
type DescriptorUpdate struct {
	Capabilities    *providers.Capabilities
	Priority        *int
	Enabled         *bool
	Endpoint        *string
	CostPer1KTokens *float64
}

// Registration pairs a descriptor with its adapter handle.
type Registration struct {
	Descriptor Descriptor
	Adapter    providers.Adapter
}

type entry struct {
	descriptor Descriptor
	adapter    providers.Adapter
	seq        uint64
}

// Registry is the authoritative provider table. A single RWMutex serializes
// descriptor mutations; statistics mutations are serialized per row. A
// stats row exists exactly as long as its descriptor is registered.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64

	stats  *statsTable
	logger *slog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		stats:   newStatsTable(),
		logger:  slog.Default().With("component", "registry"),
	}
}

// Register adds a provider. It fails with a ConflictError if the name is
// taken and a ValidationError if the descriptor or adapter handle is
// malformed or their names disagree. Registering initializes a fresh stats
// row.
func (r *Registry) Register(desc Descriptor, adapter providers.Adapter) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if adapter == nil {
		return &ValidationError{Name: desc.Name, Field: "adapter", Message: "adapter is required"}
	}
	if adapter.Name() != desc.Name {
		return &ValidationError{
			Name:    desc.Name,
			Field:   "adapter",
			Message: "adapter name " + adapter.Name() + " does not match descriptor",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		return &ConflictError{Name: desc.Name}
	}

	r.entries[desc.Name] = &entry{
		descriptor: desc,
		adapter:    adapter,
		seq:        r.nextSeq,
	}
	r.nextSeq++
	r.stats.create(desc.Name)

	r.logger.Info("provider registered",
		"provider", desc.Name,
		"priority", desc.Priority,
		"enabled", desc.Enabled,
	)
	return nil
}

// Get returns the adapter for name if the provider is registered and
// enabled, else a NotFoundError.
func (r *Registry) Get(name string) (providers.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok || !e.descriptor.Enabled {
		return nil, &NotFoundError{Name: name}
	}
	return e.adapter, nil
}

// Descriptor returns the registered descriptor for name, enabled or not.
func (r *Registry) Descriptor(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, &NotFoundError{Name: name}
	}
	return e.descriptor, nil
}

// List returns all enabled providers ordered by descending priority, ties
// broken by registration order.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type seqReg struct {
		reg Registration
		seq uint64
	}
	regs := make([]seqReg, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.descriptor.Enabled {
			continue
		}
		regs = append(regs, seqReg{reg: Registration{Descriptor: e.descriptor, Adapter: e.adapter}, seq: e.seq})
	}

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].reg.Descriptor.Priority != regs[j].reg.Descriptor.Priority {
			return regs[i].reg.Descriptor.Priority > regs[j].reg.Descriptor.Priority
		}
		return regs[i].seq < regs[j].seq
	})

	out := make([]Registration, len(regs))
	for i, sr := range regs {
		out[i] = sr.reg
	}
	return out
}

// ListAll returns every registered provider, disabled ones included, in
// registration order.
func (r *Registry) ListAll() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type seqReg struct {
		reg Registration
		seq uint64
	}
	regs := make([]seqReg, 0, len(r.entries))
	for _, e := range r.entries {
		regs = append(regs, seqReg{reg: Registration{Descriptor: e.descriptor, Adapter: e.adapter}, seq: e.seq})
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].seq < regs[j].seq })

	out := make([]Registration, len(regs))
	for i, sr := range regs {
		out[i] = sr.reg
	}
	return out
}

// Len returns the number of registered providers, disabled ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove unregisters a provider, deleting descriptor and stats row in one
// step, then closes the adapter. It fails with a NotFoundError if the name
// is not registered.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return &NotFoundError{Name: name}
	}
	delete(r.entries, name)
	r.stats.remove(name)
	r.mu.Unlock()

	if err := e.adapter.Close(); err != nil {
		r.logger.Warn("failed to close adapter", "provider", name, "error", err)
	}
	r.logger.Info("provider removed", "provider", name)
	return nil
}

// UpdateDescriptor merges a partial update into the registered descriptor
// and re-validates the merged record. The stored descriptor changes only if
// the merged record is valid.
func (r *Registry) UpdateDescriptor(name string, update DescriptorUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return &NotFoundError{Name: name}
	}

	merged := e.descriptor
	if update.Capabilities != nil {
		merged.Capabilities = *update.Capabilities
	}
	if update.Priority != nil {
		merged.Priority = *update.Priority
	}
	if update.Enabled != nil {
		merged.Enabled = *update.Enabled
	}
	if update.Endpoint != nil {
		merged.Endpoint = *update.Endpoint
	}
	if update.CostPer1KTokens != nil {
		merged.CostPer1KTokens = *update.CostPer1KTokens
	}

	if err := merged.Validate(); err != nil {
		return err
	}

	e.descriptor = merged
	r.logger.Info("provider descriptor updated", "provider", name)
	return nil
}

// RecordSuccess atomically folds one successful request sample into the
// provider's stats row and marks it healthy.
func (r *Registry) RecordSuccess(name string, elapsed time.Duration) error {
	row, ok := r.stats.row(name)
	if !ok {
		return &NotFoundError{Name: name}
	}
	row.recordSuccess(elapsed, time.Now())
	return nil
}

// RecordFailure counts one failed request against the provider and marks it
// unhealthy.
func (r *Registry) RecordFailure(name string) error {
	row, ok := r.stats.row(name)
	if !ok {
		return &NotFoundError{Name: name}
	}
	row.recordFailure(time.Now())
	return nil
}

// SetHealth writes a health probe result into the provider's stats row.
func (r *Registry) SetHealth(name string, healthy bool, latency time.Duration) error {
	row, ok := r.stats.row(name)
	if !ok {
		return &NotFoundError{Name: name}
	}
	row.setHealth(healthy, latency, time.Now())
	return nil
}

// Stats returns the provider's statistics snapshot.
func (r *Registry) Stats(name string) (StatsSnapshot, error) {
	row, ok := r.stats.row(name)
	if !ok {
		return StatsSnapshot{}, &NotFoundError{Name: name}
	}
	return row.snapshot(), nil
}

// AllStats returns a snapshot of every provider's statistics.
func (r *Registry) AllStats() map[string]StatsSnapshot {
	return r.stats.snapshotAll()
}

// Close closes every registered adapter and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.stats = newStatsTable()
	r.mu.Unlock()

	var errs []error
	for name, e := range entries {
		if err := e.adapter.Close(); err != nil {
			errs = append(errs, err)
			r.logger.Warn("failed to close adapter", "provider", name, "error", err)
		}
	}
	return errors.Join(errs...)
}
