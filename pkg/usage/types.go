package usage

import (
	"context"
	"time"
)

// WindowUsage is one accounting bucket: how many requests ran, how many
// tokens they consumed and what they cost.
type WindowUsage struct {
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

func (u WindowUsage) add(other WindowUsage) WindowUsage {
	return WindowUsage{
		Requests: u.Requests + other.Requests,
		Tokens:   u.Tokens + other.Tokens,
		Cost:     u.Cost + other.Cost,
	}
}

// ProviderUsage is the ledger view for one provider.
type ProviderUsage struct {
	Provider string      `json:"provider"`
	AllTime  WindowUsage `json:"all_time"`
	LastHour WindowUsage `json:"last_hour"`
	LastDay  WindowUsage `json:"last_day"`
}

// Snapshot is a point-in-time view of the whole ledger.
type Snapshot struct {
	At        time.Time                `json:"at"`
	Providers map[string]ProviderUsage `json:"providers"`

	// Totals is the all-time usage summed across providers.
	Totals WindowUsage `json:"totals"`
}

// ProviderState is one persisted ledger row.
type ProviderState struct {
	Provider    string    `json:"provider"`
	Requests    int64     `json:"requests"`
	Tokens      int64     `json:"tokens"`
	Cost        float64   `json:"cost"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Backend persists per-provider totals between restarts.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Save upserts the state for a provider.
	Save(ctx context.Context, state *ProviderState) error

	// Load returns the state for a provider, or (nil, nil) when the
	// provider has no persisted state.
	Load(ctx context.Context, provider string) (*ProviderState, error)

	// List returns all persisted provider states.
	List(ctx context.Context) ([]*ProviderState, error)

	// Delete removes the state for a provider.
	Delete(ctx context.Context, provider string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Cost converts a token count into dollars at a per-1K-token rate.
func Cost(tokens int, per1K float64) float64 {
	if tokens <= 0 || per1K <= 0 {
		return 0
	}
	return float64(tokens) / 1000 * per1K
}
