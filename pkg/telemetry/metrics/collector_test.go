package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testCollector() *Collector {
	return NewCollector(Config{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
}

func TestNewCollectorDefaults(t *testing.T) {
	c := NewCollector(Config{Enabled: true}, nil)
	if c.registry == nil {
		t.Fatal("collector has no registry")
	}

	// Metric names carry the default namespace
	c.RecordSelection("round_robin", "openai")
	count, err := testutil.GatherAndCount(c.registry, "helios_balancer_selections_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Errorf("gathered %d series, want 1", count)
	}
}

func TestRecordRequest(t *testing.T) {
	c := testCollector()

	c.RecordRequest("openai", "gpt-4o", "success", 1200*time.Millisecond, 900, 600, 0.5)
	c.RecordRequest("openai", "gpt-4o", "success", 800*time.Millisecond, 100, 50, 0.25)
	c.RecordRequest("claude", "claude-3", "error", 50*time.Millisecond, 0, 0, 0)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("openai", "gpt-4o", "success")); got != 2 {
		t.Errorf("requests_total{openai,success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("claude", "claude-3", "error")); got != 1 {
		t.Errorf("requests_total{claude,error} = %v, want 1", got)
	}

	if got := testutil.ToFloat64(c.tokensTotal.WithLabelValues("openai", "gpt-4o", "prompt")); got != 1000 {
		t.Errorf("tokens_total{prompt} = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(c.tokensTotal.WithLabelValues("openai", "gpt-4o", "completion")); got != 650 {
		t.Errorf("tokens_total{completion} = %v, want 650", got)
	}

	if got := testutil.ToFloat64(c.costTotal.WithLabelValues("openai", "gpt-4o")); got != 0.75 {
		t.Errorf("cost_total = %v, want 0.75", got)
	}
	// Zero-cost error request must not create a cost series
	if got := testutil.ToFloat64(c.costTotal.WithLabelValues("claude", "claude-3")); got != 0 {
		t.Errorf("cost_total{claude} = %v, want 0", got)
	}
}

func TestUpdateProviderHealth(t *testing.T) {
	c := testCollector()

	c.UpdateProviderHealth("openai", true)
	if got := testutil.ToFloat64(c.providerHealth.WithLabelValues("openai")); got != 1.0 {
		t.Errorf("provider_health = %v, want 1.0", got)
	}

	c.UpdateProviderHealth("openai", false)
	if got := testutil.ToFloat64(c.providerHealth.WithLabelValues("openai")); got != 0.0 {
		t.Errorf("provider_health = %v, want 0.0", got)
	}
}

func TestRecordProviderError(t *testing.T) {
	c := testCollector()

	c.RecordProviderError("openai", "rate_limit")
	c.RecordProviderError("openai", "rate_limit")
	c.RecordProviderError("openai", "network")

	if got := testutil.ToFloat64(c.providerErrors.WithLabelValues("openai", "rate_limit")); got != 2 {
		t.Errorf("provider_errors{rate_limit} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.providerErrors.WithLabelValues("openai", "network")); got != 1 {
		t.Errorf("provider_errors{network} = %v, want 1", got)
	}
}

func TestRecordFault(t *testing.T) {
	c := testCollector()

	c.RecordFault("PROVIDER_ERROR", "balancer")
	if got := testutil.ToFloat64(c.faultsTotal.WithLabelValues("PROVIDER_ERROR", "balancer")); got != 1 {
		t.Errorf("faults_total = %v, want 1", got)
	}
}

func TestDisabledCollectorRecordsNothing(t *testing.T) {
	c := NewCollector(Config{Enabled: false, Namespace: "test"}, prometheus.NewRegistry())

	c.RecordRequest("openai", "gpt-4o", "success", time.Second, 10, 10, 0.01)
	c.UpdateProviderHealth("openai", true)
	c.RecordProviderError("openai", "network")
	c.RecordSelection("round_robin", "openai")
	c.RecordFault("UNKNOWN_ERROR", "x")

	families, err := c.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter().GetValue() != 0 || m.GetGauge().GetValue() != 0 {
				t.Errorf("disabled collector recorded %s", mf.GetName())
			}
		}
	}
}

func TestCardinalityLimitAggregatesModel(t *testing.T) {
	c := testCollector()
	c.cardinality = newCardinalityLimiter(2)

	c.RecordRequest("openai", "model-a", "success", time.Second, 0, 0, 0)
	c.RecordRequest("openai", "model-b", "success", time.Second, 0, 0, 0)
	// Third unique label set exceeds the limit and lands on "other"
	c.RecordRequest("openai", "model-c", "success", time.Second, 0, 0, 0)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("openai", "other", "success")); got != 1 {
		t.Errorf("requests_total{other} = %v, want 1", got)
	}
	if got := c.cardinality.count(); got != 2 {
		t.Errorf("cardinality count = %d, want 2", got)
	}
}

func TestCardinalityLimiterRepeatsAllowed(t *testing.T) {
	cl := newCardinalityLimiter(1)

	if !cl.allow("a") {
		t.Error("first label set should be allowed")
	}
	if !cl.allow("a") {
		t.Error("known label set should stay allowed at the limit")
	}
	if cl.allow("b") {
		t.Error("new label set past the limit should be rejected")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	c := testCollector()
	c.RecordSelection("cost_optimized", "openai")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := fmt.Sprintf("test_balancer_selections_total{provider=%q,strategy=%q} 1", "openai", "cost_optimized")
	if !strings.Contains(string(body), want) {
		t.Errorf("exposition missing %q in:\n%s", want, body)
	}
}
