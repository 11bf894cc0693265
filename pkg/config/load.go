package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file at the specified path. It
// expands credential references, applies default values, validates the
// configuration, and returns any errors. The configuration is not modified
// by environment variables; use LoadWithEnvOverrides for that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	expandCredentials(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention HELIOS_SECTION_FIELD (e.g., HELIOS_SERVER_LISTEN_ADDRESS) and
// always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Expand ${VAR} credential references
//  3. Apply default values
//  4. Apply environment variable overrides
//  5. Validate final configuration
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// expandCredentials expands ${VAR} references from the environment in
// credential-bearing fields. An unset variable expands to the empty string.
func expandCredentials(cfg *Config) {
	for name, provider := range cfg.Providers {
		provider.APIKey = os.Expand(provider.APIKey, os.Getenv)
		cfg.Providers[name] = provider
	}
	for i := range cfg.Faults.Sinks {
		cfg.Faults.Sinks[i].Target = os.Expand(cfg.Faults.Sinks[i].Target, os.Getenv)
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format HELIOS_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("HELIOS_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("HELIOS_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("HELIOS_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("HELIOS_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("HELIOS_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("HELIOS_SERVER_MAX_HEADER_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxHeaderBytes = i
		}
	}

	// Provider overrides for every configured provider
	for name := range cfg.Providers {
		applyProviderEnvOverrides(cfg, name)
	}

	// Balancer overrides
	if val := os.Getenv("HELIOS_BALANCER_STRATEGY"); val != "" {
		cfg.Balancer.Strategy = val
	}
	if val := os.Getenv("HELIOS_BALANCER_FALLBACK_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Balancer.FallbackEnabled = boolPtr(b)
		}
	}
	if val := os.Getenv("HELIOS_BALANCER_MAX_ATTEMPTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Balancer.MaxAttempts = i
		}
	}

	// Health overrides
	if val := os.Getenv("HELIOS_HEALTH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Health.Interval = d
		}
	}
	if val := os.Getenv("HELIOS_HEALTH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Health.Timeout = d
		}
	}
	if val := os.Getenv("HELIOS_HEALTH_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Health.Retries = i
		}
	}

	// Faults overrides
	if val := os.Getenv("HELIOS_FAULTS_MAX_RECENT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Faults.MaxRecent = i
		}
	}
	if val := os.Getenv("HELIOS_FAULTS_LOG_CAPACITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Faults.LogCapacity = i
		}
	}
	if val := os.Getenv("HELIOS_FAULTS_STRICT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Faults.Strict = b
		}
	}

	// Alerting overrides
	if val := os.Getenv("HELIOS_ALERTING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Alerting.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("HELIOS_ALERTING_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Alerting.Interval = d
		}
	}

	// Journal overrides
	if val := os.Getenv("HELIOS_JOURNAL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Journal.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("HELIOS_JOURNAL_BACKEND"); val != "" {
		cfg.Journal.Backend = val
	}
	if val := os.Getenv("HELIOS_JOURNAL_SQLITE_PATH"); val != "" {
		cfg.Journal.SQLite.Path = val
	}

	// Usage overrides
	if val := os.Getenv("HELIOS_USAGE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Usage.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("HELIOS_USAGE_BACKEND"); val != "" {
		cfg.Usage.Backend = val
	}
	if val := os.Getenv("HELIOS_USAGE_FLUSH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Usage.FlushInterval = d
		}
	}
	if val := os.Getenv("HELIOS_USAGE_SQLITE_PATH"); val != "" {
		cfg.Usage.SQLitePath = val
	}

	// Telemetry overrides
	if val := os.Getenv("HELIOS_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("HELIOS_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("HELIOS_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("HELIOS_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}

// applyProviderEnvOverrides applies environment variable overrides for a
// specific provider. Provider environment variables follow the format
// HELIOS_PROVIDERS_<NAME>_<FIELD> where NAME is the uppercase provider name
// with hyphens mapped to underscores.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	provider := cfg.Providers[providerName]

	prefix := fmt.Sprintf("HELIOS_PROVIDERS_%s_", envKey(providerName))

	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		provider.BaseURL = val
	}
	if val := os.Getenv(prefix + "API_KEY"); val != "" {
		provider.APIKey = val
	}
	if val := os.Getenv(prefix + "MODEL"); val != "" {
		provider.Model = val
	}
	if val := os.Getenv(prefix + "TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			provider.Timeout = d
		}
	}
	if val := os.Getenv(prefix + "MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			provider.MaxRetries = i
		}
	}
	if val := os.Getenv(prefix + "PRIORITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			provider.Priority = i
		}
	}
	if val := os.Getenv(prefix + "ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			provider.Enabled = boolPtr(b)
		}
	}

	cfg.Providers[providerName] = provider
}

// envKey converts a provider name to its environment variable segment.
func envKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
