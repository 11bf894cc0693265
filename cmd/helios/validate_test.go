package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestBuildConfigReportValid(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  alpha:
    type: mock
    priority: 10
  beta:
    type: mock
balancer:
  strategy: priority
`)

	report := buildConfigReport(path)

	if !report.Valid {
		t.Fatalf("report.Valid = false, errors: %+v", report.Errors)
	}
	if len(report.Errors) != 0 {
		t.Errorf("Errors = %+v, want none", report.Errors)
	}
	if len(report.Providers) != 2 || report.Providers[0] != "alpha" || report.Providers[1] != "beta" {
		t.Errorf("Providers = %v, want [alpha beta]", report.Providers)
	}
	if report.Strategy != "priority" {
		t.Errorf("Strategy = %q, want %q", report.Strategy, "priority")
	}
	// Defaults fill the backends
	if report.Journal == "" || report.Usage == "" {
		t.Errorf("backend summary empty: journal %q, usage %q", report.Journal, report.Usage)
	}
}

func TestBuildConfigReportFieldErrors(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  alpha:
    type: teleporter
balancer:
  strategy: coin-flip
`)

	report := buildConfigReport(path)

	if report.Valid {
		t.Fatal("report.Valid = true for a config with bad type and strategy")
	}
	if len(report.Errors) < 2 {
		t.Fatalf("Errors = %+v, want at least type and strategy findings", report.Errors)
	}

	fields := make(map[string]bool)
	for _, finding := range report.Errors {
		fields[finding.Field] = true
		if finding.Severity != "error" {
			t.Errorf("finding severity = %q, want error", finding.Severity)
		}
	}
	if !fields["providers.alpha.type"] {
		t.Errorf("missing finding for providers.alpha.type, got %v", fields)
	}
	if !fields["balancer.strategy"] {
		t.Errorf("missing finding for balancer.strategy, got %v", fields)
	}
}

func TestBuildConfigReportParseError(t *testing.T) {
	path := writeConfigFile(t, "providers: [unclosed")

	report := buildConfigReport(path)

	if report.Valid {
		t.Fatal("report.Valid = true for unparseable YAML")
	}
	if len(report.Errors) != 1 {
		t.Fatalf("Errors = %+v, want exactly one parse finding", report.Errors)
	}
	if report.Errors[0].Field != "" {
		t.Errorf("parse finding field = %q, want empty", report.Errors[0].Field)
	}
}

func TestBuildConfigReportMissingFile(t *testing.T) {
	report := buildConfigReport(filepath.Join(t.TempDir(), "missing.yaml"))
	if report.Valid {
		t.Error("report.Valid = true for a missing file")
	}
}

func TestConfigWarnings(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  alpha:
    type: openai-compatible
    base_url: https://api.example.com/v1
  beta:
    type: mock
    enabled: false
`)

	report := buildConfigReport(path)
	if !report.Valid {
		t.Fatalf("report.Valid = false, errors: %+v", report.Errors)
	}

	fields := make(map[string]bool)
	for _, finding := range report.Warnings {
		fields[finding.Field] = true
		if finding.Severity != "warning" {
			t.Errorf("warning severity = %q, want warning", finding.Severity)
		}
	}
	if !fields["providers.alpha.api_key"] {
		t.Errorf("expected empty api_key warning, got %v", report.Warnings)
	}
}

func TestConfigWarningsAllDisabled(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  alpha:
    type: mock
    enabled: false
`)

	report := buildConfigReport(path)
	if !report.Valid {
		t.Fatalf("report.Valid = false, errors: %+v", report.Errors)
	}

	found := false
	for _, finding := range report.Warnings {
		if finding.Field == "providers" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected all-disabled warning, got %v", report.Warnings)
	}
}
