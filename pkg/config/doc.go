// Package config provides configuration management for Helios.
//
// This package handles loading, validating, and watching configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with field-level validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.Load("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention HELIOS_SECTION_FIELD.
// For example:
//
//   - HELIOS_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - HELIOS_PROVIDERS_OPENAI_API_KEY overrides providers.openai.api_key
//   - HELIOS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
// Provider overrides apply to every provider named in the file, so any
// configured provider can have its credentials injected from the environment.
//
// # Credential Expansion
//
// API keys may reference environment variables with ${VAR} syntax:
//
//	providers:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Expansion happens at load time; an unset variable expands to the empty
// string and surfaces as a validation finding for providers that require a
// key.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file and delivers freshly loaded,
// validated snapshots after a debounce interval. A file that fails to parse
// or validate is logged and ignored; the previously delivered configuration
// stays in effect. There is no configuration singleton: the loaded *Config
// is passed explicitly to the components that need it.
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	providers:
//	  openai:
//	    base_url: "https://api.openai.com/v1"
//	    api_key: "${OPENAI_API_KEY}"
//	    model: "gpt-4o-mini"
//	    priority: 10
//
//	balancer:
//	  strategy: "round_robin"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
