package balancer

import (
	"fmt"
	"time"

	"nimbus-hq/helios/pkg/balancer/strategies"
	"nimbus-hq/helios/pkg/faults"
)

// Config controls balancer behavior. It can be replaced at runtime through
// UpdateConfig or patched through ApplyUpdate; both re-validate before the
// new values take effect.
type Config struct {
	// Strategy selects the balancing strategy by name. Valid names are
	// listed by strategies.Names().
	Strategy string `yaml:"strategy" json:"strategy"`

	// FallbackEnabled controls whether failed attempts may continue to the
	// next provider and whether selection may degrade to unhealthy
	// providers when no healthy candidate remains.
	FallbackEnabled bool `yaml:"fallback_enabled" json:"fallback_enabled"`

	// HealthCheckInterval is how often the health monitor probes providers.
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// MaxAttempts bounds the total attempts per ExecuteWithFallback call.
	// Zero means one attempt per enabled provider.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// ConfigUpdate is a partial config change. Nil fields keep their current
// values.
type ConfigUpdate struct {
	Strategy            *string        `yaml:"strategy" json:"strategy"`
	FallbackEnabled     *bool          `yaml:"fallback_enabled" json:"fallback_enabled"`
	HealthCheckInterval *time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	MaxAttempts         *int           `yaml:"max_attempts" json:"max_attempts"`
}

// DefaultConfig returns the balancer defaults: round-robin selection with
// fallback enabled and 30 second health probing.
func DefaultConfig() Config {
	return Config{
		Strategy:            strategies.NameRoundRobin,
		FallbackEnabled:     true,
		HealthCheckInterval: 30 * time.Second,
		MaxAttempts:         0,
	}
}

// Validate checks the configuration for use.
func (c Config) Validate() error {
	if _, err := strategies.New(c.Strategy); err != nil {
		return err
	}
	if c.HealthCheckInterval <= 0 {
		return faults.Newf(faults.ValidationKind,
			"health_check_interval must be positive, got %v", c.HealthCheckInterval)
	}
	if c.MaxAttempts < 0 {
		return faults.Newf(faults.ValidationKind,
			"max_attempts must be non-negative, got %d", c.MaxAttempts)
	}
	return nil
}

// merge applies the non-nil fields of u on top of c and returns the result.
func (c Config) merge(u ConfigUpdate) Config {
	if u.Strategy != nil {
		c.Strategy = *u.Strategy
	}
	if u.FallbackEnabled != nil {
		c.FallbackEnabled = *u.FallbackEnabled
	}
	if u.HealthCheckInterval != nil {
		c.HealthCheckInterval = *u.HealthCheckInterval
	}
	if u.MaxAttempts != nil {
		c.MaxAttempts = *u.MaxAttempts
	}
	return c
}

// String renders the config for logs.
func (c Config) String() string {
	return fmt.Sprintf("strategy=%s fallback=%t health_interval=%v max_attempts=%d",
		c.Strategy, c.FallbackEnabled, c.HealthCheckInterval, c.MaxAttempts)
}
