package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"nimbus-hq/helios/pkg/cli"
	"nimbus-hq/helios/pkg/providers"
)

var benchFlags struct {
	target      string
	duration    time.Duration
	rate        int
	concurrency int
	model       string
	prompt      string
	timeout     time.Duration
	format      string
	output      string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test a running gateway",
	Long: `Send synthetic generation requests to a running gateway at a fixed
rate and measure how it holds up.

Requests POST to /v1/generate with a small chat payload. Point the
gateway at mock providers to exercise the balancer itself, or at real
ones to measure the full path.

Metrics Collected:
  - Request throughput (requests/sec)
  - Latency percentiles (p50, p95, p99, max)
  - Status code distribution
  - Transport error count

Examples:
  # Basic load test
  helios bench --target http://localhost:8080

  # Sustained load
  helios bench --duration 60s --rate 100 --concurrency 10

  # Machine-readable results
  helios bench --format json --output results.json`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVar(&benchFlags.target, "target", "http://localhost:8080", "gateway URL")
	benchCmd.Flags().DurationVar(&benchFlags.duration, "duration", 30*time.Second, "test duration")
	benchCmd.Flags().IntVar(&benchFlags.rate, "rate", 10, "requests per second")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 4, "concurrent clients")
	benchCmd.Flags().StringVar(&benchFlags.model, "model", "", "model to request (provider default if empty)")
	benchCmd.Flags().StringVar(&benchFlags.prompt, "prompt", "Say hello in one short sentence.", "prompt to send")
	benchCmd.Flags().DurationVar(&benchFlags.timeout, "timeout", 30*time.Second, "per-request timeout")
	benchCmd.Flags().StringVar(&benchFlags.format, "format", "text", "output format: text, json")
	benchCmd.Flags().StringVarP(&benchFlags.output, "output", "o", "", "output file for results")
}

// benchReport is the measured outcome of one load test.
type benchReport struct {
	Target          string         `json:"target"`
	DurationSeconds float64        `json:"duration_seconds"`
	Sent            int            `json:"sent"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	TransportErrors int            `json:"transport_errors"`
	ThroughputRPS   float64        `json:"throughput_rps"`
	StatusCounts    map[string]int `json:"status_counts"`
	Latency         *benchLatency  `json:"latency,omitempty"`
}

// benchLatency summarizes the latency distribution in milliseconds.
type benchLatency struct {
	MinMS    float64 `json:"min_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	P95MS    float64 `json:"p95_ms"`
	P99MS    float64 `json:"p99_ms"`
	MaxMS    float64 `json:"max_ms"`
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchFlags.rate <= 0 {
		return fmt.Errorf("rate must be positive")
	}
	if benchFlags.concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	total := int(benchFlags.duration.Seconds()) * benchFlags.rate
	if total <= 0 {
		return fmt.Errorf("duration %s at %d req/s yields no requests", benchFlags.duration, benchFlags.rate)
	}

	if benchFlags.format != "json" {
		fmt.Println("Helios Bench")
		fmt.Println("============")
		fmt.Printf("Target: %s\n", benchFlags.target)
		fmt.Printf("Duration: %s\n", benchFlags.duration)
		fmt.Printf("Rate: %d req/s\n", benchFlags.rate)
		fmt.Printf("Concurrency: %d\n", benchFlags.concurrency)
		fmt.Println()
		fmt.Println("Running...")
		fmt.Println()
	}

	body, err := benchBody()
	if err != nil {
		return cli.NewCommandError("bench", err)
	}

	report, err := runLoadTest(total, body)
	if err != nil {
		return cli.NewCommandError("bench", err)
	}

	out, closeOut, err := openOutput(benchFlags.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if benchFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(out, report)
	}
	printBenchReport(out, report)
	return nil
}

// benchBody builds the request payload sent to /v1/generate.
func benchBody() ([]byte, error) {
	req := providers.GenerationRequest{
		Model: benchFlags.model,
		Messages: []providers.Message{
			{Role: "user", Content: benchFlags.prompt},
		},
	}
	return json.Marshal(&req)
}

// runLoadTest feeds requests to a bounded worker pool at the configured
// rate until the duration elapses or the request budget is spent.
func runLoadTest(total int, body []byte) (*benchReport, error) {
	client := &http.Client{Timeout: benchFlags.timeout}
	url := benchFlags.target + "/v1/generate"

	var (
		mu        sync.Mutex
		latencies []time.Duration
		statuses  = make(map[int]int)
		transport int
	)
	var done int64

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(total))

	jobs := make(chan struct{}, benchFlags.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < benchFlags.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				status, latency, err := benchRequest(client, url, body)

				mu.Lock()
				if err != nil {
					transport++
				} else {
					statuses[status]++
					latencies = append(latencies, latency)
				}
				mu.Unlock()

				progress.Update(atomic.AddInt64(&done, 1))
			}
		}()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), benchFlags.duration)
	defer cancel()

	interval := time.Second / time.Duration(benchFlags.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
feed:
	for sent < total {
		select {
		case <-ctx.Done():
			break feed
		case <-ticker.C:
			jobs <- struct{}{}
			sent++
		}
	}
	close(jobs)
	wg.Wait()
	progress.Finish()

	elapsed := time.Since(start)

	report := &benchReport{
		Target:          benchFlags.target,
		DurationSeconds: elapsed.Seconds(),
		Sent:            sent,
		Succeeded:       statuses[http.StatusOK],
		TransportErrors: transport,
		StatusCounts:    make(map[string]int, len(statuses)),
	}
	report.Failed = report.Sent - report.Succeeded
	if elapsed > 0 {
		report.ThroughputRPS = float64(sent) / elapsed.Seconds()
	}
	for status, count := range statuses {
		report.StatusCounts[fmt.Sprintf("%d", status)] = count
	}
	if len(latencies) > 0 {
		min, mean, median, p95, p99, max := calculatePercentiles(latencies)
		report.Latency = &benchLatency{
			MinMS:    durationMS(min),
			MeanMS:   durationMS(mean),
			MedianMS: durationMS(median),
			P95MS:    durationMS(p95),
			P99MS:    durationMS(p99),
			MaxMS:    durationMS(max),
		}
	}
	return report, nil
}

// benchRequest performs a single generation request and reports the status
// code and round-trip latency.
func benchRequest(client *http.Client, url string, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, latency, nil
}

// calculatePercentiles summarizes a latency sample. The slice is copied
// before sorting.
func calculatePercentiles(latencies []time.Duration) (min, mean, median, p95, p99, max time.Duration) {
	if len(latencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var sum time.Duration
	for _, lat := range sorted {
		sum += lat
	}
	mean = sum / time.Duration(len(sorted))

	median = sorted[len(sorted)/2]
	p95 = sorted[int(float64(len(sorted))*0.95)]
	p99 = sorted[int(float64(len(sorted))*0.99)]

	return
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func printBenchReport(out io.Writer, report *benchReport) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Results:")
	fmt.Fprintln(out, "--------")
	fmt.Fprintf(out, "Requests:        %d sent, %d succeeded, %d failed\n",
		report.Sent, report.Succeeded, report.Failed)
	if report.TransportErrors > 0 {
		fmt.Fprintf(out, "Transport errors: %d\n", report.TransportErrors)
	}
	fmt.Fprintf(out, "Duration:        %.1fs\n", report.DurationSeconds)
	fmt.Fprintf(out, "Throughput:      %.2f req/s\n", report.ThroughputRPS)

	if report.Latency != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Latency:")
		fmt.Fprintf(out, "  Min:     %.1fms\n", report.Latency.MinMS)
		fmt.Fprintf(out, "  Mean:    %.1fms\n", report.Latency.MeanMS)
		fmt.Fprintf(out, "  Median:  %.1fms\n", report.Latency.MedianMS)
		fmt.Fprintf(out, "  p95:     %.1fms\n", report.Latency.P95MS)
		fmt.Fprintf(out, "  p99:     %.1fms\n", report.Latency.P99MS)
		fmt.Fprintf(out, "  Max:     %.1fms\n", report.Latency.MaxMS)
	}

	if len(report.StatusCounts) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Status Codes:")
		codes := make([]string, 0, len(report.StatusCounts))
		for code := range report.StatusCounts {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			count := report.StatusCounts[code]
			pct := float64(count) / float64(report.Sent) * 100
			fmt.Fprintf(out, "  %s:     %d (%.0f%%)\n", code, count, pct)
		}
	}
}
