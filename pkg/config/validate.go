package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"nimbus-hq/helios/pkg/balancer/strategies"
	"nimbus-hq/helios/pkg/faultlog"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g.,
	// "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateBalancer(&cfg.Balancer)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateFaults(&cfg.Faults)...)
	errs = append(errs, validateAlerting(&cfg.Alerting)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be non-negative",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be non-negative",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validateProviders validates provider configurations.
func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if len(providers) == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one provider must be configured",
		})
		return errs
	}

	for name, provider := range providers {
		prefix := fmt.Sprintf("providers.%s", name)

		switch provider.Type {
		case "openai-compatible", "mock":
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown provider type %q: must be 'openai-compatible' or 'mock'", provider.Type),
			})
		}

		if provider.Type == "openai-compatible" {
			if provider.BaseURL == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: "base URL is required",
				})
			} else if u, err := url.Parse(provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid URL %q: expected scheme://host", provider.BaseURL),
				})
			}
		}

		// API keys can legitimately be empty for local backends; validated
		// at request time by the provider itself.

		if provider.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be non-negative",
			})
		}

		if provider.MaxRetries < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries must be non-negative",
			})
		}
		if provider.MaxRetries > 10 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries exceeds reasonable limit (10)",
			})
		}

		if provider.Priority < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".priority",
				Message: "priority must be non-negative",
			})
		}

		if provider.CostPer1KTokens < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".cost_per_1k_tokens",
				Message: "cost must be non-negative",
			})
		}

		if provider.Capabilities.MaxTokens < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".capabilities.max_tokens",
				Message: "max tokens must be non-negative",
			})
		}
	}

	return errs
}

// validateBalancer validates balancer configuration.
func validateBalancer(cfg *BalancerConfig) []FieldError {
	var errs []FieldError

	if _, err := strategies.New(cfg.Strategy); err != nil {
		errs = append(errs, FieldError{
			Field: "balancer.strategy",
			Message: fmt.Sprintf("unknown strategy %q: available strategies are %s",
				cfg.Strategy, strings.Join(strategies.Names(), ", ")),
		})
	}

	if cfg.MaxAttempts < 0 {
		errs = append(errs, FieldError{
			Field:   "balancer.max_attempts",
			Message: "max attempts must be non-negative",
		})
	}

	return errs
}

// validateHealth validates health monitor configuration.
func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if cfg.Interval <= 0 {
		errs = append(errs, FieldError{
			Field:   "health.interval",
			Message: "interval must be positive",
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "health.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.Retries < 0 {
		errs = append(errs, FieldError{
			Field:   "health.retries",
			Message: "retries must be non-negative",
		})
	}

	return errs
}

// validateFaults validates fault handling configuration.
func validateFaults(cfg *FaultsConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxRecent < 0 {
		errs = append(errs, FieldError{
			Field:   "faults.max_recent",
			Message: "max recent must be non-negative",
		})
	}
	if cfg.LogCapacity < 0 {
		errs = append(errs, FieldError{
			Field:   "faults.log_capacity",
			Message: "log capacity must be non-negative",
		})
	}

	for i, sink := range cfg.Sinks {
		prefix := fmt.Sprintf("faults.sinks[%d]", i)

		switch sink.Type {
		case "console":
		case "file", "database", "external":
			if sink.Target == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".target",
					Message: fmt.Sprintf("target is required for %s sinks", sink.Type),
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown sink type %q: must be 'console', 'file', 'database', or 'external'", sink.Type),
			})
		}

		if _, err := faultlog.ParseLevel(sink.MinLevel); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".min_level",
				Message: fmt.Sprintf("invalid level %q: must be 'debug', 'info', 'warn', or 'error'", sink.MinLevel),
			})
		}

		errs = append(errs, validateFilters(prefix, sink.Filters)...)
	}

	return errs
}

// validateFilters validates sink field filters.
func validateFilters(prefix string, filters []faultlog.FieldFilter) []FieldError {
	var errs []FieldError

	for i, filter := range filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)

		if filter.Field == "" {
			errs = append(errs, FieldError{
				Field:   fp + ".field",
				Message: "filter field is required",
			})
		}

		switch filter.Op {
		case faultlog.FilterEquals, faultlog.FilterContains, faultlog.FilterStartsWith:
		case faultlog.FilterPattern:
			if _, err := regexp.Compile(filter.Value); err != nil {
				errs = append(errs, FieldError{
					Field:   fp + ".value",
					Message: fmt.Sprintf("invalid pattern: %v", err),
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   fp + ".op",
				Message: fmt.Sprintf("unknown filter op %q", filter.Op),
			})
		}
	}

	return errs
}

// validateAlerting validates alerting configuration.
func validateAlerting(cfg *AlertingConfig) []FieldError {
	var errs []FieldError

	if cfg.Interval <= 0 {
		errs = append(errs, FieldError{
			Field:   "alerting.interval",
			Message: "interval must be positive",
		})
	}
	if cfg.MaxHistory < 0 {
		errs = append(errs, FieldError{
			Field:   "alerting.max_history",
			Message: "max history must be non-negative",
		})
	}

	seen := make(map[string]bool, len(cfg.Alerts))
	for i, alert := range cfg.Alerts {
		prefix := fmt.Sprintf("alerting.alerts[%d]", i)

		if err := alert.Validate(); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: err.Error(),
			})
			continue
		}
		if seen[alert.ID] {
			errs = append(errs, FieldError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("duplicate alert id %q", alert.ID),
			})
		}
		seen[alert.ID] = true
	}

	return errs
}

// validateJournal validates journal configuration.
func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "journal.backend",
			Message: fmt.Sprintf("unknown backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "journal.sqlite.path",
			Message: "path is required when backend is 'sqlite'",
		})
	}

	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.write_timeout",
			Message: "write timeout must be non-negative",
		})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.MaxEntries < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.retention.max_entries",
			Message: "max entries must be non-negative",
		})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "journal.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Retention.PruneSchedule, err),
			})
		}
	}

	return errs
}

// validateUsage validates usage ledger configuration.
func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("unknown backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" && cfg.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "usage.sqlite_path",
			Message: "sqlite path is required when backend is 'sqlite'",
		})
	}

	if cfg.FlushInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.flush_interval",
			Message: "flush interval must be non-negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if _, err := faultlog.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	return errs
}
