package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"nimbus-hq/helios/pkg/cli"
	"nimbus-hq/helios/pkg/runtime"
)

var statusFlags struct {
	target  string
	timeout time.Duration
	format  string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running gateway",
	Long: `Fetch and display the aggregate status of a running gateway.

The status covers every subsystem: provider pool and per-provider
stats, balancer strategy, health, fault counters, alerts, journal and
usage ledger.

Examples:
  # Local gateway
  helios status

  # Remote gateway
  helios status --target http://gateway.internal:8080

  # Raw JSON
  helios status --format json`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.target, "target", "http://localhost:8080", "gateway URL")
	statusCmd.Flags().DurationVar(&statusFlags.timeout, "timeout", 10*time.Second, "request timeout")
	statusCmd.Flags().StringVar(&statusFlags.format, "format", "text", "output format: text, json")
}

func showStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: statusFlags.timeout}

	resp, err := client.Get(statusFlags.target + "/v1/status")
	if err != nil {
		return cli.NewCommandError("status", fmt.Errorf("gateway unreachable: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cli.NewCommandError("status", fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return cli.NewCommandError("status", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}

	if statusFlags.format == "json" {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			return cli.NewCommandError("status", fmt.Errorf("invalid response body: %w", err))
		}
		fmt.Println(pretty.String())
		return nil
	}

	var st runtime.Status
	if err := json.Unmarshal(body, &st); err != nil {
		return cli.NewCommandError("status", fmt.Errorf("invalid response body: %w", err))
	}
	printGatewayStatus(cmd.OutOrStdout(), &st)
	return nil
}

func printGatewayStatus(out io.Writer, st *runtime.Status) {
	fmt.Fprintf(out, "Gateway: %s\n", statusFlags.target)
	if st.Version != "" {
		fmt.Fprintf(out, "Version: %s\n", st.Version)
	}
	fmt.Fprintf(out, "Uptime: %s\n", st.Uptime.Round(time.Second))
	fmt.Fprintf(out, "Strategy: %s\n", st.Balancer.Strategy)
	if st.Health != nil {
		overall := "degraded"
		if st.Health.Overall {
			overall = "healthy"
		}
		fmt.Fprintf(out, "Health: %s\n", overall)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Providers:")
	if len(st.Providers) == 0 {
		fmt.Fprintln(out, "  none registered")
	}
	for _, p := range st.Providers {
		state := "unhealthy"
		if p.Stats.Healthy {
			state = "healthy"
		}
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  %-16s %-10s priority %-3d requests %-8d errors %-6d avg %s\n",
			p.Name, state, p.Priority, p.Stats.RequestCount, p.Stats.ErrorCount,
			p.Stats.AverageResponseTime.Round(time.Millisecond))
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Faults: %d total, %.1f/min recent\n", st.Faults.TotalErrors, st.Faults.ErrorRate)
	fmt.Fprintf(out, "Alerts: %d defined, %d enabled\n", st.Alerts.AlertCount, st.Alerts.EnabledAlertCount)

	if st.Journal.Enabled {
		fmt.Fprintf(out, "Journal: %s backend, %d dropped\n", st.Journal.Backend, st.Journal.Dropped)
	} else {
		fmt.Fprintln(out, "Journal: disabled")
	}

	if st.Usage != nil {
		fmt.Fprintf(out, "Usage: %d requests, %d tokens, $%.4f\n",
			st.Usage.Totals.Requests, st.Usage.Totals.Tokens, st.Usage.Totals.Cost)
	}
}
