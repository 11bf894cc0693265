package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
providers:
  openai:
    base_url: "https://api.openai.com/v1"
    api_key: "sk-test"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.Balancer.Strategy != DefaultStrategy {
		t.Errorf("Strategy = %q, want %q", cfg.Balancer.Strategy, DefaultStrategy)
	}
	if !cfg.Balancer.IsFallbackEnabled() {
		t.Error("fallback should default to enabled")
	}
	if cfg.Journal.Backend != DefaultJournalBackend {
		t.Errorf("Journal.Backend = %q, want %q", cfg.Journal.Backend, DefaultJournalBackend)
	}
	if cfg.Usage.Backend != DefaultUsageBackend {
		t.Errorf("Usage.Backend = %q, want %q", cfg.Usage.Backend, DefaultUsageBackend)
	}

	provider := cfg.Providers["openai"]
	if provider.Type != DefaultProviderType {
		t.Errorf("provider Type = %q, want %q", provider.Type, DefaultProviderType)
	}
	if provider.Timeout != DefaultProviderTimeout {
		t.Errorf("provider Timeout = %v, want %v", provider.Timeout, DefaultProviderTimeout)
	}
	if provider.MaxRetries != DefaultProviderMaxRetries {
		t.Errorf("provider MaxRetries = %d, want %d", provider.MaxRetries, DefaultProviderMaxRetries)
	}
	if !provider.IsEnabled() {
		t.Error("provider should default to enabled")
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  write_timeout: 90s

providers:
  openai:
    base_url: "https://api.openai.com/v1"
    api_key: "sk-test"
    model: "gpt-4o-mini"
    priority: 10
    cost_per_1k_tokens: 0.002
    capabilities:
      tool_calls: true
      streaming: true
      max_tokens: 4096
  local:
    type: "mock"
    priority: 1
    enabled: false

balancer:
  strategy: "cost_optimized"
  fallback_enabled: false
  max_attempts: 2

health:
  interval: 10s
  timeout: 2s
  retries: 1

alerting:
  interval: 30s
  alerts:
    - id: "high-error-rate"
      condition:
        kind: "error_rate"
        threshold: 10
      severity: "critical"
      enabled: true
      cooldown: 5m
      actions:
        - type: "log"

journal:
  backend: "memory"

usage:
  backend: "sqlite"
  sqlite_path: "/tmp/usage.db"

telemetry:
  logging:
    level: "debug"
    format: "text"
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Errorf("WriteTimeout = %v, want 90s", cfg.Server.WriteTimeout)
	}
	if cfg.Balancer.Strategy != "cost_optimized" {
		t.Errorf("Strategy = %q", cfg.Balancer.Strategy)
	}
	if cfg.Balancer.IsFallbackEnabled() {
		t.Error("fallback_enabled: false was not honored")
	}
	if cfg.Balancer.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.Balancer.MaxAttempts)
	}
	if cfg.Health.Interval != 10*time.Second {
		t.Errorf("Health.Interval = %v, want 10s", cfg.Health.Interval)
	}

	openai := cfg.Providers["openai"]
	if !openai.Capabilities.ToolCalls || !openai.Capabilities.Streaming {
		t.Errorf("capabilities = %+v, want tool_calls and streaming", openai.Capabilities)
	}
	if openai.Capabilities.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", openai.Capabilities.MaxTokens)
	}
	if openai.CostPer1KTokens != 0.002 {
		t.Errorf("CostPer1KTokens = %v, want 0.002", openai.CostPer1KTokens)
	}

	local := cfg.Providers["local"]
	if local.Type != "mock" {
		t.Errorf("local Type = %q, want mock", local.Type)
	}
	if local.IsEnabled() {
		t.Error("enabled: false was not honored")
	}

	if len(cfg.Alerting.Alerts) != 1 {
		t.Fatalf("len(Alerts) = %d, want 1", len(cfg.Alerting.Alerts))
	}
	alert := cfg.Alerting.Alerts[0]
	if alert.ID != "high-error-rate" || alert.Condition.Threshold != 10 {
		t.Errorf("alert = %+v", alert)
	}
	if alert.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %v, want 5m", alert.Cooldown)
	}

	if cfg.Journal.Backend != "memory" {
		t.Errorf("Journal.Backend = %q, want memory", cfg.Journal.Backend)
	}
	if cfg.Usage.Backend != "sqlite" || cfg.Usage.SQLitePath != "/tmp/usage.db" {
		t.Errorf("Usage = %+v", cfg.Usage)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "providers: [not a map"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n"))
	if err == nil {
		t.Fatal("expected validation error for empty providers")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want ValidationError", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "providers" {
		t.Errorf("Errors = %+v, want single providers finding", verr.Errors)
	}
}

func TestCredentialExpansion(t *testing.T) {
	t.Setenv("HELIOS_TEST_KEY", "sk-expanded")

	cfg, err := Load(writeConfig(t, `
providers:
  openai:
    base_url: "https://api.openai.com/v1"
    api_key: "${HELIOS_TEST_KEY}"
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Providers["openai"].APIKey; got != "sk-expanded" {
		t.Errorf("APIKey = %q, want sk-expanded", got)
	}
}

func TestCredentialExpansionUnset(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
providers:
  openai:
    base_url: "https://api.openai.com/v1"
    api_key: "${HELIOS_TEST_KEY_THAT_IS_NOT_SET}"
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Providers["openai"].APIKey; got != "" {
		t.Errorf("APIKey = %q, want empty", got)
	}
}

func TestEnvOverrideBeatsFile(t *testing.T) {
	t.Setenv("HELIOS_SERVER_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("HELIOS_PROVIDERS_OPENAI_API_KEY", "sk-from-env")
	t.Setenv("HELIOS_BALANCER_STRATEGY", "least_loaded")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides() error: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("ListenAddress = %q, want env override", cfg.Server.ListenAddress)
	}
	if got := cfg.Providers["openai"].APIKey; got != "sk-from-env" {
		t.Errorf("APIKey = %q, want env override", got)
	}
	if cfg.Balancer.Strategy != "least_loaded" {
		t.Errorf("Strategy = %q, want env override", cfg.Balancer.Strategy)
	}
}

func TestEnvOverrideHyphenatedProvider(t *testing.T) {
	t.Setenv("HELIOS_PROVIDERS_MY_LLM_PRIORITY", "42")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, `
providers:
  my-llm:
    type: "mock"
`))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides() error: %v", err)
	}
	if got := cfg.Providers["my-llm"].Priority; got != 42 {
		t.Errorf("Priority = %d, want 42", got)
	}
}

func TestEnvOverrideInvalidValueIgnored(t *testing.T) {
	t.Setenv("HELIOS_HEALTH_INTERVAL", "not-a-duration")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides() error: %v", err)
	}
	if cfg.Health.Interval != DefaultHealthInterval {
		t.Errorf("Interval = %v, want default kept", cfg.Health.Interval)
	}
}

func TestEnvOverrideRevalidates(t *testing.T) {
	t.Setenv("HELIOS_BALANCER_STRATEGY", "warp-drive")

	_, err := LoadWithEnvOverrides(writeConfig(t, minimalYAML))
	if err == nil {
		t.Fatal("expected validation error for unknown strategy from env")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want ValidationError", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "balancer.strategy" {
		t.Errorf("Errors = %+v, want balancer.strategy finding", verr.Errors)
	}
}
