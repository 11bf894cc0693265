package config

import (
	"time"

	"nimbus-hq/helios/pkg/alerting"
	"nimbus-hq/helios/pkg/faultlog"
)

// Config is the root configuration structure for Helios. It contains all
// configuration sections for the HTTP server, providers, load balancer,
// health probing, fault handling, alerting, the attempt journal, the usage
// ledger, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and header limits.
	Server ServerConfig `yaml:"server"`

	// Providers contains configuration for all LLM provider integrations.
	// Keys are provider names (e.g., "openai", "anthropic").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Balancer contains configuration for provider selection and fallback.
	Balancer BalancerConfig `yaml:"balancer"`

	// Health contains configuration for the provider health monitor.
	Health HealthConfig `yaml:"health"`

	// Faults contains configuration for fault metrics and the fault log.
	Faults FaultsConfig `yaml:"faults"`

	// Alerting contains the alert monitor configuration and the alert
	// definitions it evaluates.
	Alerting AlertingConfig `yaml:"alerting"`

	// Journal contains configuration for the per-attempt journal.
	Journal JournalConfig `yaml:"journal"`

	// Usage contains configuration for the usage ledger.
	Usage UsageConfig `yaml:"usage"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Generation calls can be slow, so this leaves headroom over
	// the per-provider timeout.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If IdleTimeout is zero, ReadTimeout is
	// used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// If requests are still in-flight after this timeout, the server will
	// force shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values. It does not limit
	// the size of the request body.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// ProviderConfig contains configuration for a single LLM provider.
type ProviderConfig struct {
	// Type selects the adapter implementation.
	// Options: "openai-compatible", "mock"
	// Default: "openai-compatible"
	Type string `yaml:"type"`

	// BaseURL is the base URL for the provider's API endpoint.
	// Example: "https://api.openai.com/v1"
	// Required for openai-compatible providers.
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider. Supports ${VAR}
	// expansion from environment variables.
	APIKey string `yaml:"api_key"`

	// Model is the default model sent when a request names none.
	Model string `yaml:"model"`

	// Timeout is the maximum duration for requests to this provider.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the maximum number of transport-level retry attempts
	// inside the adapter for retriable failures.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// Priority orders providers for selection; higher is preferred.
	// Default: 0
	Priority int `yaml:"priority"`

	// Enabled gates the provider in and out of selection without removing
	// its configuration.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// CostPer1KTokens is the billing rate used by the usage ledger.
	// Default: 0 (not billed)
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens"`

	// Capabilities declares the provider feature set used for request
	// filtering.
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
}

// CapabilitiesConfig declares what a provider supports.
type CapabilitiesConfig struct {
	// ToolCalls reports tool-call support.
	// Default: false
	ToolCalls bool `yaml:"tool_calls"`

	// Streaming reports streaming support.
	// Default: false
	Streaming bool `yaml:"streaming"`

	// MaxTokens is the largest completion the provider accepts. Zero means
	// unlimited (or unknown).
	// Default: 0
	MaxTokens int `yaml:"max_tokens"`
}

// BalancerConfig contains configuration for provider selection.
type BalancerConfig struct {
	// Strategy selects the balancing strategy by name.
	// Options: "round_robin", "least_loaded", "cost_optimized"
	// Default: "round_robin"
	Strategy string `yaml:"strategy"`

	// FallbackEnabled controls whether failed attempts may continue to the
	// next provider and whether selection may degrade to unhealthy
	// providers when no healthy candidate remains.
	// Default: true
	FallbackEnabled *bool `yaml:"fallback_enabled"`

	// MaxAttempts bounds the total attempts per balanced call. Zero means
	// one attempt per enabled provider.
	// Default: 0
	MaxAttempts int `yaml:"max_attempts"`
}

// HealthConfig contains configuration for the provider health monitor.
type HealthConfig struct {
	// Interval is how often every provider is probed.
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds each individual probe attempt.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// Retries is how many additional attempts follow a failed probe within
	// one sweep.
	// Default: 2
	Retries int `yaml:"retries"`
}

// FaultsConfig contains configuration for fault metrics and the fault log.
type FaultsConfig struct {
	// MaxRecent bounds the ring of recent fault records kept by the
	// metrics.
	// Default: 100
	MaxRecent int `yaml:"max_recent"`

	// LogCapacity bounds the structured fault log ring.
	// Default: 1000
	LogCapacity int `yaml:"log_capacity"`

	// Strict disables the automatic retry of transient failures. Failures
	// still get classified and recorded; they just surface immediately.
	// Default: false
	Strict bool `yaml:"strict"`

	// Sinks lists additional fault log sinks. The console sink is always
	// registered.
	Sinks []SinkConfig `yaml:"sinks"`
}

// SinkConfig configures one fault log sink.
type SinkConfig struct {
	// Type selects the sink implementation.
	// Options: "console", "file", "database", "external"
	Type string `yaml:"type"`

	// MinLevel drops entries below this level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	MinLevel string `yaml:"min_level"`

	// Target is the sink destination: a path for file sinks, a DSN for
	// database sinks, an endpoint URL for external sinks. Ignored by the
	// console sink. Supports ${VAR} expansion from environment variables.
	Target string `yaml:"target"`

	// Filters must all match for an entry to reach the sink.
	Filters []faultlog.FieldFilter `yaml:"filters"`
}

// AlertingConfig contains the alert monitor configuration and alert
// definitions.
type AlertingConfig struct {
	// Enabled switches alert evaluation on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Interval is the time between evaluation sweeps.
	// Default: 1m
	Interval time.Duration `yaml:"interval"`

	// MaxHistory bounds the firing history kept per alert.
	// Default: 50
	MaxHistory int `yaml:"max_history"`

	// Alerts lists the alert definitions loaded at startup and replaced
	// atomically on configuration reload.
	Alerts []alerting.Alert `yaml:"alerts"`
}

// JournalConfig contains configuration for the per-attempt journal.
type JournalConfig struct {
	// Enabled controls whether attempts are journaled.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend specifies the storage backend for journal entries.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// AsyncBuffer is the size of the journal write buffer. Entries are
	// dropped, not blocked on, when the buffer is full.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds each backend write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// SQLite contains SQLite-specific configuration.
	SQLite JournalSQLiteConfig `yaml:"sqlite"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// JournalSQLiteConfig contains SQLite-specific journal configuration.
type JournalSQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/journal.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains journal retention policy configuration.
type RetentionConfig struct {
	// Days is how long entries are kept. Zero disables age-based pruning.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is the cron expression for the pruning run.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxEntries bounds the journal size. Zero means unbounded.
	// Default: 0
	MaxEntries int `yaml:"max_entries"`
}

// UsageConfig contains configuration for the usage ledger.
type UsageConfig struct {
	// Enabled controls whether usage is tracked.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend specifies the storage backend for usage totals.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// FlushInterval is how often totals are persisted.
	// Default: 30s
	FlushInterval time.Duration `yaml:"flush_interval"`

	// SQLitePath is the file path for the SQLite database when Backend is
	// "sqlite".
	// Default: "data/usage.db"
	SQLitePath string `yaml:"sqlite_path"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// RedactSecrets controls whether values of secret-looking attributes
	// (api_key, authorization, token) are masked in log output.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path where metrics are exposed.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus namespace prefix for all metrics.
	// Default: "helios"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports the provider's enabled state, treating unset as true.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// IsFallbackEnabled reports the fallback setting, treating unset as true.
func (b BalancerConfig) IsFallbackEnabled() bool {
	return b.FallbackEnabled == nil || *b.FallbackEnabled
}

// IsEnabled reports the alerting enabled state, treating unset as true.
func (a AlertingConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// IsEnabled reports the journal enabled state, treating unset as true.
func (j JournalConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// IsEnabled reports the usage ledger enabled state, treating unset as true.
func (u UsageConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// IsRedactSecrets reports the redaction setting, treating unset as true.
func (l LoggingConfig) IsRedactSecrets() bool {
	return l.RedactSecrets == nil || *l.RedactSecrets
}

// IsEnabled reports the metrics enabled state, treating unset as true.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}
