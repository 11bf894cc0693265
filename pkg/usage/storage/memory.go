package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nimbus-hq/helios/pkg/usage"
)

// MemoryBackend implements usage.Backend using in-memory storage.
// This is the default backend. All data is lost when the process exits.
//
// MemoryBackend is thread-safe and supports concurrent access.
type MemoryBackend struct {
	// states maps provider name to usage state.
	states map[string]*usage.ProviderState

	// mu protects access to states map.
	mu sync.RWMutex
}

// NewMemoryBackend creates a new in-memory usage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		states: make(map[string]*usage.ProviderState),
	}
}

// Save persists the usage state for a provider, replacing any previous state.
func (m *MemoryBackend) Save(ctx context.Context, state *usage.ProviderState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if state.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}

	stored := *state
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.LastUpdated.IsZero() {
		stored.LastUpdated = now
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[stored.Provider] = &stored
	return nil
}

// Load retrieves the usage state for a provider. Returns (nil, nil) when the
// provider has no persisted state.
func (m *MemoryBackend) Load(ctx context.Context, provider string) (*usage.ProviderState, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[provider]
	if !exists {
		return nil, nil
	}

	loaded := *state
	return &loaded, nil
}

// List returns all persisted usage states ordered by provider name.
func (m *MemoryBackend) List(ctx context.Context) ([]*usage.ProviderState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*usage.ProviderState, 0, len(m.states))
	for _, state := range m.states {
		loaded := *state
		states = append(states, &loaded)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Provider < states[j].Provider
	})

	return states, nil
}

// Delete removes the usage state for a provider.
func (m *MemoryBackend) Delete(ctx context.Context, provider string) error {
	if provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, provider)
	return nil
}

// Close releases any resources held by the backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// Size returns the current number of stored states.
// This is useful for monitoring and testing.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
