package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Provider defaults
	DefaultProviderType       = "openai-compatible"
	DefaultProviderTimeout    = 60 * time.Second
	DefaultProviderMaxRetries = 3

	// Balancer defaults
	DefaultStrategy = "round_robin"

	// Health defaults
	DefaultHealthInterval = 30 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultHealthRetries  = 2

	// Faults defaults
	DefaultFaultsMaxRecent   = 100
	DefaultFaultsLogCapacity = 1000
	DefaultSinkMinLevel      = "info"

	// Alerting defaults
	DefaultAlertingInterval   = time.Minute
	DefaultAlertingMaxHistory = 50

	// Journal defaults
	DefaultJournalBackend       = "sqlite"
	DefaultJournalAsyncBuffer   = 1000
	DefaultJournalWriteTimeout  = 5 * time.Second
	DefaultJournalSQLitePath    = "data/journal.db"
	DefaultJournalMaxOpenConns  = 10
	DefaultJournalMaxIdleConns  = 5
	DefaultJournalBusyTimeout   = 5 * time.Second
	DefaultRetentionDays        = 30
	DefaultRetentionSchedule    = "0 3 * * *"

	// Usage defaults
	DefaultUsageBackend       = "memory"
	DefaultUsageFlushInterval = 30 * time.Second
	DefaultUsageSQLitePath    = "data/usage.db"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "helios"
)

// ApplyDefaults applies default values to a Config struct. It sets defaults
// for any fields that are unset. This function is idempotent and safe to
// call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		if provider.Type == "" {
			provider.Type = DefaultProviderType
		}
		if provider.Timeout == 0 {
			provider.Timeout = DefaultProviderTimeout
		}
		if provider.MaxRetries == 0 {
			provider.MaxRetries = DefaultProviderMaxRetries
		}
		if provider.Enabled == nil {
			provider.Enabled = boolPtr(true)
		}
		cfg.Providers[name] = provider
	}

	// Balancer defaults
	if cfg.Balancer.Strategy == "" {
		cfg.Balancer.Strategy = DefaultStrategy
	}
	if cfg.Balancer.FallbackEnabled == nil {
		cfg.Balancer.FallbackEnabled = boolPtr(true)
	}

	// Health defaults
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = DefaultHealthInterval
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = DefaultHealthTimeout
	}
	if cfg.Health.Retries == 0 {
		cfg.Health.Retries = DefaultHealthRetries
	}

	// Faults defaults
	if cfg.Faults.MaxRecent == 0 {
		cfg.Faults.MaxRecent = DefaultFaultsMaxRecent
	}
	if cfg.Faults.LogCapacity == 0 {
		cfg.Faults.LogCapacity = DefaultFaultsLogCapacity
	}
	for i := range cfg.Faults.Sinks {
		if cfg.Faults.Sinks[i].MinLevel == "" {
			cfg.Faults.Sinks[i].MinLevel = DefaultSinkMinLevel
		}
	}

	// Alerting defaults
	if cfg.Alerting.Enabled == nil {
		cfg.Alerting.Enabled = boolPtr(true)
	}
	if cfg.Alerting.Interval == 0 {
		cfg.Alerting.Interval = DefaultAlertingInterval
	}
	if cfg.Alerting.MaxHistory == 0 {
		cfg.Alerting.MaxHistory = DefaultAlertingMaxHistory
	}

	// Journal defaults
	if cfg.Journal.Enabled == nil {
		cfg.Journal.Enabled = boolPtr(true)
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = DefaultJournalBackend
	}
	if cfg.Journal.AsyncBuffer == 0 {
		cfg.Journal.AsyncBuffer = DefaultJournalAsyncBuffer
	}
	if cfg.Journal.WriteTimeout == 0 {
		cfg.Journal.WriteTimeout = DefaultJournalWriteTimeout
	}
	if cfg.Journal.SQLite.Path == "" {
		cfg.Journal.SQLite.Path = DefaultJournalSQLitePath
	}
	if cfg.Journal.SQLite.MaxOpenConns == 0 {
		cfg.Journal.SQLite.MaxOpenConns = DefaultJournalMaxOpenConns
	}
	if cfg.Journal.SQLite.MaxIdleConns == 0 {
		cfg.Journal.SQLite.MaxIdleConns = DefaultJournalMaxIdleConns
	}
	if cfg.Journal.SQLite.BusyTimeout == 0 {
		cfg.Journal.SQLite.BusyTimeout = DefaultJournalBusyTimeout
	}
	if cfg.Journal.Retention.Days == 0 {
		cfg.Journal.Retention.Days = DefaultRetentionDays
	}
	if cfg.Journal.Retention.PruneSchedule == "" {
		cfg.Journal.Retention.PruneSchedule = DefaultRetentionSchedule
	}

	// Usage defaults
	if cfg.Usage.Enabled == nil {
		cfg.Usage.Enabled = boolPtr(true)
	}
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = DefaultUsageFlushInterval
	}
	if cfg.Usage.SQLitePath == "" {
		cfg.Usage.SQLitePath = DefaultUsageSQLitePath
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.RedactSecrets == nil {
		cfg.Telemetry.Logging.RedactSecrets = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

func boolPtr(v bool) *bool {
	return &v
}
