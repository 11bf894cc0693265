package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"nimbus-hq/helios/pkg/cli"
	"nimbus-hq/helios/pkg/config"
)

var validateFlags struct {
	env    bool
	strict bool
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a Helios configuration file and report every finding.

The validate command loads the file the same way the gateway does:
it parses the YAML, expands ${VAR} credential references, applies
defaults and runs the full validation pass. All findings are reported
together rather than stopping at the first one.

Examples:
  # Validate the default config
  helios validate

  # Validate a specific file
  helios validate --config /etc/helios/config.yaml

  # Validate with environment overrides applied
  helios validate --env

  # JSON output for CI/CD
  helios validate --format json

  # Treat warnings as errors
  helios validate --strict`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.env, "env", false, "apply environment variable overrides before validating")
	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "treat warnings as errors")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// configFinding is a single validation error or warning.
type configFinding struct {
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// configReport is the validation result for one configuration file.
type configReport struct {
	File     string          `json:"file"`
	Valid    bool            `json:"valid"`
	Errors   []configFinding `json:"errors,omitempty"`
	Warnings []configFinding `json:"warnings,omitempty"`

	// Summary fields, filled only when the file loaded.
	Providers []string `json:"providers,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Journal   string   `json:"journal_backend,omitempty"`
	Usage     string   `json:"usage_backend,omitempty"`
	Alerts    int      `json:"alerts"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	report := buildConfigReport(cfgFile)

	if validateFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		if err := formatter.FormatTo(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printConfigReport(report)
	}

	if !report.Valid {
		return cli.NewCommandError("validate", fmt.Errorf("configuration invalid: %d error(s)", len(report.Errors)))
	}
	if validateFlags.strict && len(report.Warnings) > 0 {
		return cli.NewCommandError("validate", fmt.Errorf("strict mode: %d warning(s)", len(report.Warnings)))
	}
	return nil
}

func buildConfigReport(path string) configReport {
	report := configReport{File: path, Valid: true}

	load := config.Load
	if validateFlags.env {
		load = config.LoadWithEnvOverrides
	}

	cfg, err := load(path)
	if err != nil {
		report.Valid = false

		var verr config.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				report.Errors = append(report.Errors, configFinding{
					Field:    fe.Field,
					Message:  fe.Message,
					Severity: "error",
				})
			}
		} else {
			// Read or parse failure, no field to point at.
			report.Errors = append(report.Errors, configFinding{
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return report
	}

	for name := range cfg.Providers {
		report.Providers = append(report.Providers, name)
	}
	sort.Strings(report.Providers)
	report.Strategy = cfg.Balancer.Strategy
	report.Journal = cfg.Journal.Backend
	report.Usage = cfg.Usage.Backend
	report.Alerts = len(cfg.Alerting.Alerts)
	report.Warnings = configWarnings(cfg)

	return report
}

// configWarnings reports conditions that load fine but usually signal a
// mistake.
func configWarnings(cfg *config.Config) []configFinding {
	var warnings []configFinding

	enabled := 0
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := cfg.Providers[name]
		if p.IsEnabled() {
			enabled++
		}
		if p.IsEnabled() && p.Type == "openai-compatible" && p.APIKey == "" {
			warnings = append(warnings, configFinding{
				Field:    fmt.Sprintf("providers.%s.api_key", name),
				Message:  "api_key is empty; the backend may reject requests",
				Severity: "warning",
			})
		}
	}

	if enabled == 0 {
		warnings = append(warnings, configFinding{
			Field:    "providers",
			Message:  "every provider is disabled; the gateway will refuse all requests",
			Severity: "warning",
		})
	}

	if !cfg.Balancer.IsFallbackEnabled() && enabled > 1 {
		warnings = append(warnings, configFinding{
			Field:    "balancer.fallback_enabled",
			Message:  "fallback is disabled; provider failures will not retry on the next provider",
			Severity: "warning",
		})
	}

	return warnings
}

func printConfigReport(report configReport) {
	fmt.Printf("Validating %s...\n", report.File)

	if report.Valid && len(report.Warnings) == 0 {
		fmt.Println("✓ Configuration valid")
	}

	for _, finding := range report.Errors {
		fmt.Printf("✗ Error: %s", finding.Message)
		if finding.Field != "" {
			fmt.Printf(" [%s]", finding.Field)
		}
		fmt.Println()
	}
	for _, finding := range report.Warnings {
		fmt.Printf("⚠  Warning: %s", finding.Message)
		if finding.Field != "" {
			fmt.Printf(" [%s]", finding.Field)
		}
		fmt.Println()
	}

	if report.Valid {
		fmt.Println()
		fmt.Println("Summary:")
		fmt.Printf("  providers: %d (%s)\n", len(report.Providers), joinOrNone(report.Providers))
		fmt.Printf("  strategy:  %s\n", report.Strategy)
		fmt.Printf("  journal:   %s\n", report.Journal)
		fmt.Printf("  usage:     %s\n", report.Usage)
		fmt.Printf("  alerts:    %d\n", report.Alerts)
	}

	fmt.Println()
	fmt.Printf("%d error(s), %d warning(s)\n", len(report.Errors), len(report.Warnings))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
