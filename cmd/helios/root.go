package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "helios",
	Short: "Helios - load-balancing gateway for LLM providers",
	Long: `Helios is a gateway that spreads LLM requests across a pool of
providers and keeps serving when individual providers fail.

It provides:
  - Strategy-based provider selection (round-robin, least-loaded,
    cost-optimized)
  - Automatic fallback across providers on failure
  - Continuous health probing with recovery detection
  - Structured fault classification with actionable responses
  - A request journal and a per-provider usage ledger
  - Prometheus metrics and threshold alerting`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Keep cobra's built-in shell completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
