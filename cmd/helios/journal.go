package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nimbus-hq/helios/pkg/cli"
	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/journal"
	"nimbus-hq/helios/pkg/journal/storage"
)

var journalFlags struct {
	backend   string
	timeRange string
	requestID string
	provider  string
	model     string
	operation string
	outcome   string
	errorCode string
	minTokens int
	maxTokens int
	limit     int
	offset    int
	sortBy    string
	sortOrder string
	format    string
	output    string
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the request journal",
	Long: `Query and summarize the per-attempt request journal.

Every provider attempt the gateway makes is journaled: which provider
was tried, whether it was a fallback, how long it took, how many tokens
it consumed and what it cost. The journal command reads that record.

Subcommands:
  query   - List journal entries with filters
  report  - Summarize a time range (per-provider counts, fallback rate, cost)

Examples:
  # Failures in the last day
  helios journal query --outcome failure --time-range "2026-08-22T00:00:00Z/2026-08-23T00:00:00Z"

  # Every attempt for one request
  helios journal query --request-id "req-abc123"

  # Export to CSV
  helios journal query --format csv --output attempts.csv`,
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List journal entries",
	Long: `List journal entries matching the given filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-22T00:00:00Z/2026-08-23T00:00:00Z"

Examples:
  # Attempts against one provider
  helios journal query --provider openai

  # Failed fallback attempts, most expensive first
  helios journal query --outcome failure --sort cost --order desc

  # Export to JSON
  helios journal query --format json --output attempts.json`,
	RunE: queryJournal,
}

var journalReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize journal activity",
	Long: `Summarize journal activity: per-provider and per-outcome counts,
fallback rate, latency, token consumption and cost.`,
	RunE: reportJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalQueryCmd, journalReportCmd)

	// Flags for query command
	journalQueryCmd.Flags().StringVar(&journalFlags.backend, "backend", "", "backend: memory, sqlite (uses config if not specified)")
	journalQueryCmd.Flags().StringVar(&journalFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	journalQueryCmd.Flags().StringVar(&journalFlags.requestID, "request-id", "", "filter by request ID")
	journalQueryCmd.Flags().StringVar(&journalFlags.provider, "provider", "", "filter by provider")
	journalQueryCmd.Flags().StringVar(&journalFlags.model, "model", "", "filter by model")
	journalQueryCmd.Flags().StringVar(&journalFlags.operation, "operation", "", "filter by operation (generate, stream, probe)")
	journalQueryCmd.Flags().StringVar(&journalFlags.outcome, "outcome", "", "filter by outcome (success, failure)")
	journalQueryCmd.Flags().StringVar(&journalFlags.errorCode, "error-code", "", "filter by error code")
	journalQueryCmd.Flags().IntVar(&journalFlags.minTokens, "min-tokens", 0, "minimum token threshold")
	journalQueryCmd.Flags().IntVar(&journalFlags.maxTokens, "max-tokens", 0, "maximum token threshold")
	journalQueryCmd.Flags().IntVar(&journalFlags.limit, "limit", 100, "max results")
	journalQueryCmd.Flags().IntVar(&journalFlags.offset, "offset", 0, "pagination offset")
	journalQueryCmd.Flags().StringVar(&journalFlags.sortBy, "sort", "", "sort by: time, latency, tokens, cost")
	journalQueryCmd.Flags().StringVar(&journalFlags.sortOrder, "order", "", "sort order: asc, desc")
	journalQueryCmd.Flags().StringVar(&journalFlags.format, "format", "text", "output format: text, json, csv")
	journalQueryCmd.Flags().StringVarP(&journalFlags.output, "output", "o", "", "output file (default: stdout)")

	// Flags for report command
	journalReportCmd.Flags().StringVar(&journalFlags.backend, "backend", "", "backend: memory, sqlite")
	journalReportCmd.Flags().StringVar(&journalFlags.timeRange, "time-range", "", "time range (RFC3339 interval)")
	journalReportCmd.Flags().StringVar(&journalFlags.format, "format", "text", "output format: text, json")
	journalReportCmd.Flags().StringVarP(&journalFlags.output, "output", "o", "", "output file")
}

// openJournalStorage opens the journal backend named by the flag, falling
// back to the configured one.
func openJournalStorage() (journal.Storage, error) {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, fmt.Sprintf("failed to load config: %v", err))
	}

	backend := journalFlags.backend
	if backend == "" {
		backend = cfg.Journal.Backend
	}

	switch backend {
	case "sqlite":
		store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.Journal.SQLite.Path,
			MaxOpenConns: cfg.Journal.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Journal.SQLite.MaxIdleConns,
			WALMode:      true,
			BusyTimeout:  cfg.Journal.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, cli.NewCommandError("journal", fmt.Errorf("failed to open SQLite storage: %w", err))
		}
		return store, nil
	case "memory":
		// Valid but empty outside a running gateway; useful in tests.
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: memory, sqlite)", backend)
	}
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(value string) (start, end *time.Time, err error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid time range format (expected: start/end)")
	}

	s, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid start time: %w", err)
	}
	e, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid end time: %w", err)
	}
	if e.Before(s) {
		return nil, nil, fmt.Errorf("end time precedes start time")
	}
	return &s, &e, nil
}

// buildJournalQuery assembles a journal query from the command flags.
func buildJournalQuery() (*journal.Query, error) {
	q := &journal.Query{
		RequestID: journalFlags.requestID,
		Provider:  journalFlags.provider,
		Model:     journalFlags.model,
		Operation: journalFlags.operation,
		Outcome:   journalFlags.outcome,
		ErrorCode: journalFlags.errorCode,
		Limit:     journalFlags.limit,
		Offset:    journalFlags.offset,
		SortBy:    journalFlags.sortBy,
		SortOrder: journalFlags.sortOrder,
	}

	if journalFlags.timeRange != "" {
		start, end, err := parseTimeRange(journalFlags.timeRange)
		if err != nil {
			return nil, err
		}
		q.StartTime = start
		q.EndTime = end
	}

	if journalFlags.minTokens > 0 {
		q.MinTokens = &journalFlags.minTokens
	}
	if journalFlags.maxTokens > 0 {
		q.MaxTokens = &journalFlags.maxTokens
	}

	return q, nil
}

// openOutput returns the writer a command should print to: the named file,
// or stdout when path is empty.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func queryJournal(cmd *cobra.Command, args []string) error {
	store, err := openJournalStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	query, err := buildJournalQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	entries, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("journal", fmt.Errorf("query failed: %w", err))
	}
	total, err := store.Count(ctx, query)
	if err != nil {
		return cli.NewCommandError("journal", fmt.Errorf("count failed: %w", err))
	}

	out, closeOut, err := openOutput(journalFlags.output)
	if err != nil {
		return err
	}
	defer closeOut()

	switch journalFlags.format {
	case "json":
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(out, map[string]any{
			"total_entries": total,
			"entries":       entries,
		})
	case "csv":
		formatter := cli.NewFormatter(cli.FormatCSV)
		return formatter.FormatTo(out, journalTable(entries))
	default:
		printJournalEntries(out, entries, total, query)
		return nil
	}
}

func printJournalEntries(out io.Writer, entries []*journal.Entry, total int64, query *journal.Query) {
	if query.StartTime != nil && query.EndTime != nil {
		fmt.Fprintf(out, "Time range: %s to %s\n",
			query.StartTime.Format(time.RFC3339),
			query.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Matching entries: %d (showing %d)\n", total, len(entries))
	fmt.Fprintln(out)

	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries found.")
		return
	}

	for i, entry := range entries {
		if i > 0 {
			fmt.Fprintln(out)
		}

		fmt.Fprintf(out, "Entry ID: %s\n", entry.ID)
		fmt.Fprintf(out, "Time: %s\n", entry.Time.Format(time.RFC3339))
		fmt.Fprintf(out, "Request: %s (attempt %d", entry.RequestID, entry.Attempt)
		if entry.Fallback {
			fmt.Fprint(out, ", fallback")
		}
		fmt.Fprintln(out, ")")
		fmt.Fprintf(out, "Provider: %s\n", entry.Provider)
		if entry.Model != "" {
			fmt.Fprintf(out, "Model: %s\n", entry.Model)
		}
		fmt.Fprintf(out, "Operation: %s\n", entry.Operation)
		fmt.Fprintf(out, "Outcome: %s", entry.Outcome)
		if entry.ErrorCode != "" {
			fmt.Fprintf(out, " (%s)", entry.ErrorCode)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Latency: %s\n", entry.Latency)
		if entry.TotalTokens > 0 {
			fmt.Fprintf(out, "Tokens: %d (prompt: %d, completion: %d)\n",
				entry.TotalTokens, entry.PromptTokens, entry.CompletionTokens)
		}
		if entry.Cost > 0 {
			fmt.Fprintf(out, "Cost: $%.4f\n", entry.Cost)
		}

		// Show limited output for large result sets
		if i >= 9 && len(entries) > 10 {
			remaining := len(entries) - 10
			fmt.Fprintln(out)
			fmt.Fprintf(out, "... and %d more entries\n", remaining)
			fmt.Fprintln(out, "Use --limit and --offset for pagination.")
			break
		}
	}
}

// journalTable renders entries as rows for CSV export.
type journalTable []*journal.Entry

func (t journalTable) Headers() []string {
	return []string{
		"id", "time", "request_id", "provider", "model", "operation",
		"attempt", "fallback", "outcome", "error_code", "latency_ms",
		"prompt_tokens", "completion_tokens", "total_tokens", "cost",
	}
}

func (t journalTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.ID,
			e.Time.Format(time.RFC3339Nano),
			e.RequestID,
			e.Provider,
			e.Model,
			e.Operation,
			strconv.Itoa(e.Attempt),
			strconv.FormatBool(e.Fallback),
			e.Outcome,
			e.ErrorCode,
			strconv.FormatInt(e.Latency.Milliseconds(), 10),
			strconv.Itoa(e.PromptTokens),
			strconv.Itoa(e.CompletionTokens),
			strconv.Itoa(e.TotalTokens),
			strconv.FormatFloat(e.Cost, 'f', 6, 64),
		})
	}
	return rows
}

// journalReport is the aggregate view the report subcommand prints.
type journalReport struct {
	GeneratedAt time.Time  `json:"generated_at"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`

	TotalAttempts    int     `json:"total_attempts"`
	Successes        int     `json:"successes"`
	Failures         int     `json:"failures"`
	FallbackAttempts int     `json:"fallback_attempts"`
	FallbackRate     float64 `json:"fallback_rate"`

	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`

	MeanLatency time.Duration `json:"mean_latency"`

	ByProvider  map[string]int `json:"by_provider"`
	ByOutcome   map[string]int `json:"by_outcome"`
	ByErrorCode map[string]int `json:"by_error_code,omitempty"`
}

func reportJournal(cmd *cobra.Command, args []string) error {
	store, err := openJournalStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	query := &journal.Query{}
	if journalFlags.timeRange != "" {
		start, end, err := parseTimeRange(journalFlags.timeRange)
		if err != nil {
			return err
		}
		query.StartTime = start
		query.EndTime = end
	}

	ctx := context.Background()
	entries, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("journal", fmt.Errorf("query failed: %w", err))
	}

	report := summarizeJournal(entries, query)

	out, closeOut, err := openOutput(journalFlags.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if journalFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(out, report)
	}
	printJournalReport(out, report)
	return nil
}

func summarizeJournal(entries []*journal.Entry, query *journal.Query) *journalReport {
	report := &journalReport{
		GeneratedAt: time.Now(),
		StartTime:   query.StartTime,
		EndTime:     query.EndTime,
		ByProvider:  make(map[string]int),
		ByOutcome:   make(map[string]int),
		ByErrorCode: make(map[string]int),
	}

	var latencySum time.Duration
	for _, e := range entries {
		report.TotalAttempts++
		report.ByProvider[e.Provider]++
		report.ByOutcome[e.Outcome]++
		switch e.Outcome {
		case journal.OutcomeSuccess:
			report.Successes++
		case journal.OutcomeFailure:
			report.Failures++
		}
		if e.Fallback {
			report.FallbackAttempts++
		}
		if e.ErrorCode != "" {
			report.ByErrorCode[e.ErrorCode]++
		}
		report.TotalTokens += int64(e.TotalTokens)
		report.TotalCost += e.Cost
		latencySum += e.Latency
	}

	if report.TotalAttempts > 0 {
		report.FallbackRate = float64(report.FallbackAttempts) / float64(report.TotalAttempts)
		report.MeanLatency = latencySum / time.Duration(report.TotalAttempts)
	}
	return report
}

func printJournalReport(out io.Writer, report *journalReport) {
	fmt.Fprintln(out, "Journal Report")
	fmt.Fprintln(out, "==============")

	if report.StartTime != nil && report.EndTime != nil {
		fmt.Fprintf(out, "Time Range: %s to %s\n",
			report.StartTime.Format("2006-01-02"),
			report.EndTime.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Summary:")
	fmt.Fprintln(out, "--------")
	fmt.Fprintf(out, "Total Attempts: %d\n", report.TotalAttempts)
	fmt.Fprintf(out, "Successes: %d\n", report.Successes)
	fmt.Fprintf(out, "Failures: %d\n", report.Failures)
	fmt.Fprintf(out, "Fallback Attempts: %d (%.0f%%)\n", report.FallbackAttempts, report.FallbackRate*100)
	fmt.Fprintf(out, "Mean Latency: %s\n", report.MeanLatency)
	fmt.Fprintf(out, "Total Tokens: %d\n", report.TotalTokens)
	fmt.Fprintf(out, "Total Cost: $%.2f\n", report.TotalCost)
	fmt.Fprintln(out)

	if report.TotalAttempts == 0 {
		return
	}

	fmt.Fprintln(out, "By Provider:")
	for _, provider := range sortedKeys(report.ByProvider) {
		count := report.ByProvider[provider]
		pct := float64(count) / float64(report.TotalAttempts) * 100
		fmt.Fprintf(out, "  %s: %d attempts (%.0f%%)\n", provider, count, pct)
	}
	fmt.Fprintln(out)

	if len(report.ByErrorCode) > 0 {
		fmt.Fprintln(out, "By Error Code:")
		for _, code := range sortedKeys(report.ByErrorCode) {
			count := report.ByErrorCode[code]
			fmt.Fprintf(out, "  %s: %d\n", code, count)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
