package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nimbus-hq/helios/pkg/cli"
	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/usage"
	usagestorage "nimbus-hq/helios/pkg/usage/storage"
)

var usageFlags struct {
	backend  string
	provider string
	format   string
	output   string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-provider usage totals",
	Long: `Show the persisted usage ledger: requests, tokens and cost per
provider.

The ledger is flushed by a running gateway and survives restarts, so
this command reads whatever the last flush left behind. A gateway using
the memory backend leaves nothing to read.

Examples:
  # All providers
  helios usage

  # One provider
  helios usage --provider openai

  # Export to CSV
  helios usage --format csv --output usage.csv`,
	RunE: showUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageFlags.backend, "backend", "", "backend: memory, sqlite (uses config if not specified)")
	usageCmd.Flags().StringVar(&usageFlags.provider, "provider", "", "show a single provider")
	usageCmd.Flags().StringVar(&usageFlags.format, "format", "text", "output format: text, json, csv")
	usageCmd.Flags().StringVarP(&usageFlags.output, "output", "o", "", "output file (default: stdout)")
}

func showUsage(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to load config: %v", err))
	}

	backendType := usageFlags.backend
	if backendType == "" {
		backendType = cfg.Usage.Backend
	}

	var backend usage.Backend
	switch backendType {
	case "sqlite":
		b, err := usagestorage.NewSQLiteBackend(cfg.Usage.SQLitePath)
		if err != nil {
			return cli.NewCommandError("usage", fmt.Errorf("failed to open SQLite backend: %w", err))
		}
		backend = b
	case "memory":
		backend = usagestorage.NewMemoryBackend()
	default:
		return fmt.Errorf("unsupported backend: %s (supported: memory, sqlite)", backendType)
	}
	defer backend.Close()

	ctx := context.Background()
	var states []*usage.ProviderState
	if usageFlags.provider != "" {
		state, err := backend.Load(ctx, usageFlags.provider)
		if err != nil {
			return cli.NewCommandError("usage", fmt.Errorf("load failed: %w", err))
		}
		if state != nil {
			states = append(states, state)
		}
	} else {
		states, err = backend.List(ctx)
		if err != nil {
			return cli.NewCommandError("usage", fmt.Errorf("list failed: %w", err))
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Provider < states[j].Provider })

	out, closeOut, err := openOutput(usageFlags.output)
	if err != nil {
		return err
	}
	defer closeOut()

	switch usageFlags.format {
	case "json":
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(out, map[string]any{
			"backend":   backendType,
			"providers": states,
		})
	case "csv":
		formatter := cli.NewFormatter(cli.FormatCSV)
		return formatter.FormatTo(out, usageTable(states))
	default:
		printUsage(out, backendType, states)
		return nil
	}
}

func printUsage(out io.Writer, backendType string, states []*usage.ProviderState) {
	fmt.Fprintf(out, "Usage ledger (%s backend)\n", backendType)
	fmt.Fprintln(out)

	if len(states) == 0 {
		fmt.Fprintln(out, "No usage recorded.")
		return
	}

	var totalRequests, totalTokens int64
	var totalCost float64

	for _, state := range states {
		fmt.Fprintf(out, "%s:\n", state.Provider)
		fmt.Fprintf(out, "  Requests: %d\n", state.Requests)
		fmt.Fprintf(out, "  Tokens:   %d\n", state.Tokens)
		fmt.Fprintf(out, "  Cost:     $%.4f\n", state.Cost)
		fmt.Fprintf(out, "  Updated:  %s\n", state.LastUpdated.Format(time.RFC3339))
		fmt.Fprintln(out)

		totalRequests += state.Requests
		totalTokens += state.Tokens
		totalCost += state.Cost
	}

	fmt.Fprintln(out, "Totals:")
	fmt.Fprintf(out, "  Requests: %d\n", totalRequests)
	fmt.Fprintf(out, "  Tokens:   %d\n", totalTokens)
	fmt.Fprintf(out, "  Cost:     $%.4f\n", totalCost)
}

// usageTable renders ledger rows for CSV export.
type usageTable []*usage.ProviderState

func (t usageTable) Headers() []string {
	return []string{"provider", "requests", "tokens", "cost", "last_updated"}
}

func (t usageTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			s.Provider,
			strconv.FormatInt(s.Requests, 10),
			strconv.FormatInt(s.Tokens, 10),
			strconv.FormatFloat(s.Cost, 'f', 6, 64),
			s.LastUpdated.Format(time.RFC3339Nano),
		})
	}
	return rows
}
