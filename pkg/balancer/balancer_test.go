package balancer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nimbus-hq/helios/internal/providertest"
	"nimbus-hq/helios/pkg/balancer/strategies"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/registry"
)

// newTestRegistry registers one mock adapter per name. Earlier names get
// higher priority, so priority order matches argument order.
func newTestRegistry(t *testing.T, names ...string) (*registry.Registry, map[string]*providertest.Adapter) {
	t.Helper()
	reg := registry.New()
	adapters := make(map[string]*providertest.Adapter, len(names))
	for i, name := range names {
		a := providertest.NewAdapter(name)
		desc := registry.Descriptor{
			Name:     name,
			Priority: len(names) - i,
			Enabled:  true,
			Capabilities: providers.Capabilities{
				SupportsToolCalls: true,
				SupportsStreaming: true,
			},
		}
		if err := reg.Register(desc, a); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
		adapters[name] = a
	}
	return reg, adapters
}

func newTestBalancer(t *testing.T, reg *registry.Registry, cfg Config, opts Options) *Balancer {
	t.Helper()
	b, err := New(reg, cfg, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func textRequest() *providers.GenerationRequest {
	return &providers.GenerationRequest{
		Model:    "helios-small",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hello"}},
	}
}

func toolRequest() *providers.GenerationRequest {
	req := textRequest()
	req.Tools = []providers.Tool{{
		Type: "function",
		Function: providers.FunctionDefinition{
			Name:        "lookup",
			Description: "look something up",
		},
	}}
	return req
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (o *recordingObserver) ObserveAttempt(ctx context.Context, attempt Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
}

func (o *recordingObserver) recorded() []Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Attempt, len(o.attempts))
	copy(out, o.attempts)
	return out
}

func TestNewValidation(t *testing.T) {
	reg := registry.New()

	tests := []struct {
		name string
		reg  *registry.Registry
		cfg  Config
	}{
		{
			name: "nil registry",
			reg:  nil,
			cfg:  DefaultConfig(),
		},
		{
			name: "unknown strategy",
			reg:  reg,
			cfg: Config{
				Strategy:            "fastest",
				HealthCheckInterval: time.Second,
			},
		},
		{
			name: "zero health interval",
			reg:  reg,
			cfg: Config{
				Strategy: strategies.NameRoundRobin,
			},
		},
		{
			name: "negative max attempts",
			reg:  reg,
			cfg: Config{
				Strategy:            strategies.NameRoundRobin,
				HealthCheckInterval: time.Second,
				MaxAttempts:         -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.reg, tt.cfg, Options{})
			if err == nil {
				t.Fatal("New() should fail")
			}
			if faults.KindOf(err) != faults.ValidationKind {
				t.Errorf("kind = %v, want ValidationKind", faults.KindOf(err))
			}
		})
	}
}

func TestSelectProviderEmptyRegistry(t *testing.T) {
	reg := registry.New()
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	_, err := b.SelectProvider(textRequest())
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("error = %v, want ErrNoProviders", err)
	}
	if err.Error() != "no providers available" {
		t.Errorf("message = %q, want %q", err.Error(), "no providers available")
	}
}

func TestSelectProviderCapabilityFilter(t *testing.T) {
	reg := registry.New()

	plain := providertest.NewAdapter("plain")
	plain.SetCapabilities(providers.Capabilities{})
	if err := reg.Register(registry.Descriptor{Name: "plain", Priority: 10, Enabled: true}, plain); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	full := providertest.NewAdapter("full")
	if err := reg.Register(registry.Descriptor{
		Name:     "full",
		Priority: 1,
		Enabled:  true,
		Capabilities: providers.Capabilities{
			SupportsToolCalls: true,
			SupportsStreaming: true,
		},
	}, full); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	b := newPriorityBalancer(t, reg)

	// A plain text request may land on either provider; the priority order
	// puts "plain" first.
	sel, err := b.SelectProvider(textRequest())
	if err != nil {
		t.Fatalf("SelectProvider(text) error = %v", err)
	}
	if sel.Provider != "plain" {
		t.Errorf("text selection = %q, want plain", sel.Provider)
	}

	// A tool request must skip the provider without tool support.
	sel, err = b.SelectProvider(toolRequest())
	if err != nil {
		t.Fatalf("SelectProvider(tools) error = %v", err)
	}
	if sel.Provider != "full" {
		t.Errorf("tool selection = %q, want full", sel.Provider)
	}

	// Same for streaming.
	streamReq := textRequest()
	streamReq.Stream = true
	sel, err = b.SelectProvider(streamReq)
	if err != nil {
		t.Fatalf("SelectProvider(stream) error = %v", err)
	}
	if sel.Provider != "full" {
		t.Errorf("stream selection = %q, want full", sel.Provider)
	}
}

// newPriorityBalancer builds a cost-optimized balancer so selection is
// deterministic by priority.
func newPriorityBalancer(t *testing.T, reg *registry.Registry) *Balancer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Strategy = strategies.NameCostOptimized
	return newTestBalancer(t, reg, cfg, Options{})
}

func TestSelectProviderNoCapableProvider(t *testing.T) {
	reg := registry.New()
	plain := providertest.NewAdapter("plain")
	plain.SetCapabilities(providers.Capabilities{})
	if err := reg.Register(registry.Descriptor{Name: "plain", Priority: 1, Enabled: true}, plain); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	_, err := b.SelectProvider(toolRequest())
	if !errors.Is(err, ErrNoCapableProvider) {
		t.Fatalf("error = %v, want ErrNoCapableProvider", err)
	}
	if faults.KindOf(err) != faults.NotFoundKind {
		t.Errorf("kind = %v, want NotFoundKind", faults.KindOf(err))
	}
}

func TestSelectProviderHealthFilter(t *testing.T) {
	reg, _ := newTestRegistry(t, "primary", "secondary")

	// Mark the higher-priority provider unhealthy.
	if err := reg.RecordFailure("primary"); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.Strategy = strategies.NameCostOptimized
	b := newTestBalancer(t, reg, cfg, Options{})

	sel, err := b.SelectProvider(textRequest())
	if err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}
	if sel.Provider != "secondary" {
		t.Errorf("selection = %q, want secondary", sel.Provider)
	}
	if sel.Degraded {
		t.Error("Degraded = true, want false")
	}
}

func TestSelectProviderDegradation(t *testing.T) {
	reg, _ := newTestRegistry(t, "only")
	if err := reg.RecordFailure("only"); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	// Fallback enabled: selection degrades to the unhealthy provider.
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})
	sel, err := b.SelectProvider(textRequest())
	if err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}
	if sel.Provider != "only" {
		t.Errorf("selection = %q, want only", sel.Provider)
	}
	if !sel.Degraded {
		t.Error("Degraded = false, want true")
	}

	// Fallback disabled: selection fails instead.
	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	strict := newTestBalancer(t, reg, cfg, Options{})
	_, err = strict.SelectProvider(textRequest())
	if !errors.Is(err, ErrNoHealthyProvider) {
		t.Errorf("error = %v, want ErrNoHealthyProvider", err)
	}
}

func TestSelectProviderRoundRobinRotation(t *testing.T) {
	reg, _ := newTestRegistry(t, "a", "b", "c")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	want := []string{"a", "b", "c", "a"}
	for i, expected := range want {
		sel, err := b.SelectProvider(textRequest())
		if err != nil {
			t.Fatalf("SelectProvider() #%d error = %v", i, err)
		}
		if sel.Provider != expected {
			t.Errorf("selection #%d = %q, want %q", i, sel.Provider, expected)
		}
	}
}

func TestExecuteWithFallbackSuccess(t *testing.T) {
	reg, adapters := newTestRegistry(t, "primary", "secondary")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	resp, err := b.ExecuteWithFallback(context.Background(), func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		return a.GenerateText(ctx, textRequest())
	}, 0)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if resp.Provider != "primary" {
		t.Errorf("response provider = %q, want primary", resp.Provider)
	}

	snap, err := reg.Stats("primary")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if snap.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", snap.RequestCount)
	}
	if !snap.Healthy {
		t.Error("provider should be healthy after a success")
	}
	if adapters["secondary"].GenerateCalls() != 0 {
		t.Error("secondary should not be called when primary succeeds")
	}
}

func TestExecuteWithFallbackFailover(t *testing.T) {
	reg, adapters := newTestRegistry(t, "primary", "secondary")
	adapters["primary"].SetGenerateError(fmt.Errorf("upstream exploded"))

	handler := faults.NewHandler(faults.HandlerConfig{Strict: true})
	b := newTestBalancer(t, reg, DefaultConfig(), Options{Faults: handler})

	resp, err := b.ExecuteWithFallback(context.Background(), func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		return a.GenerateText(ctx, textRequest())
	}, 0)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if resp.Provider != "secondary" {
		t.Errorf("response provider = %q, want secondary", resp.Provider)
	}

	primary, _ := reg.Stats("primary")
	if primary.ErrorCount != 1 {
		t.Errorf("primary ErrorCount = %d, want 1", primary.ErrorCount)
	}
	if primary.Healthy {
		t.Error("primary should be unhealthy after failing")
	}

	secondary, _ := reg.Stats("secondary")
	if secondary.RequestCount != 1 {
		t.Errorf("secondary RequestCount = %d, want 1", secondary.RequestCount)
	}

	// The failed attempt flowed through the fault handler.
	if got := handler.Metrics().Total(); got != 1 {
		t.Errorf("handler metrics total = %d, want 1", got)
	}
}

func TestExecuteWithFallbackExhaustion(t *testing.T) {
	reg, adapters := newTestRegistry(t, "a", "b")
	adapters["a"].SetGenerateError(fmt.Errorf("a down"))
	adapters["b"].SetGenerateError(fmt.Errorf("b down"))

	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	_, err := b.ExecuteWithFallback(context.Background(), func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		return a.GenerateText(ctx, textRequest())
	}, 0)
	if err == nil {
		t.Fatal("ExecuteWithFallback() should fail when every provider fails")
	}
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("error = %v, want ErrAllProvidersFailed", err)
	}
	if faults.KindOf(err) != faults.AggregateFailureKind {
		t.Errorf("kind = %v, want AggregateFailureKind", faults.KindOf(err))
	}

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("error %T is not *AggregateError", err)
	}
	if agg.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", agg.Attempts)
	}
	if agg.LastErr == nil || agg.LastErr.Error() != "b down" {
		t.Errorf("LastErr = %v, want the final provider's error", agg.LastErr)
	}
}

func TestExecuteWithFallbackDisabled(t *testing.T) {
	reg, adapters := newTestRegistry(t, "primary", "secondary")
	adapters["primary"].SetGenerateError(fmt.Errorf("primary down"))

	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	b := newTestBalancer(t, reg, cfg, Options{})

	_, err := b.ExecuteWithFallback(context.Background(), func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		return a.GenerateText(ctx, textRequest())
	}, 0)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("error = %v, want ErrAllProvidersFailed", err)
	}

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("error %T is not *AggregateError", err)
	}
	if agg.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", agg.Attempts)
	}
	if adapters["secondary"].GenerateCalls() != 0 {
		t.Error("secondary should never be tried with fallback disabled")
	}
}

func TestExecuteWithFallbackMaxAttempts(t *testing.T) {
	reg, adapters := newTestRegistry(t, "a", "b", "c")
	for _, a := range adapters {
		a.SetGenerateError(fmt.Errorf("down"))
	}

	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	_, err := b.ExecuteWithFallback(context.Background(), func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		return a.GenerateText(ctx, textRequest())
	}, 2)

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("error %T is not *AggregateError", err)
	}
	if agg.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", agg.Attempts)
	}
	if adapters["c"].GenerateCalls() != 0 {
		t.Error("third provider should not be tried with maxAttempts=2")
	}
}

func TestExecuteWithFallbackContextCancelled(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.ExecuteWithFallback(ctx, func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		return a.GenerateText(ctx, textRequest())
	}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExecuteWithFallbackContainsPanic(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	_, err := b.ExecuteWithFallback(context.Background(), func(ctx context.Context, a providers.Adapter) (*providers.GenerationResponse, error) {
		panic("adapter bug")
	}, 0)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("error = %v, want ErrAllProvidersFailed", err)
	}

	snap, _ := reg.Stats("a")
	if snap.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", snap.ErrorCount)
	}
}

func TestGenerateDispatch(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	resp, err := b.Generate(context.Background(), textRequest())
	if err != nil {
		t.Fatalf("Generate(text) error = %v", err)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("text response carries %d tool calls, want 0", len(resp.ToolCalls))
	}

	resp, err = b.Generate(context.Background(), toolRequest())
	if err != nil {
		t.Fatalf("Generate(tools) error = %v", err)
	}
	if len(resp.ToolCalls) == 0 {
		t.Error("tool response should carry tool calls")
	}
}

func TestGenerateInvalidRequest(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	_, err := b.Generate(context.Background(), &providers.GenerationRequest{})
	if err == nil {
		t.Fatal("Generate should reject an empty request")
	}
	if faults.KindOf(err) != faults.ValidationKind {
		t.Errorf("kind = %v, want ValidationKind", faults.KindOf(err))
	}
}

func TestObserverSeesAttempts(t *testing.T) {
	reg, adapters := newTestRegistry(t, "primary", "secondary")
	adapters["primary"].SetGenerateError(fmt.Errorf("primary down"))

	obs := &recordingObserver{}
	b := newTestBalancer(t, reg, DefaultConfig(), Options{Observers: []AttemptObserver{obs}})

	if _, err := b.Generate(context.Background(), textRequest()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	attempts := obs.recorded()
	if len(attempts) != 2 {
		t.Fatalf("observer saw %d attempts, want 2", len(attempts))
	}
	first, second := attempts[0], attempts[1]
	if first.Provider != "primary" || first.Err == nil || first.Fallback {
		t.Errorf("first attempt = %+v, want failed primary non-fallback", first)
	}
	if second.Provider != "secondary" || second.Err != nil || !second.Fallback {
		t.Errorf("second attempt = %+v, want successful secondary fallback", second)
	}
	if second.Response == nil {
		t.Error("successful attempt should carry the response")
	}
	if second.Number != 2 {
		t.Errorf("second attempt Number = %d, want 2", second.Number)
	}
}

func TestObserverPanicContained(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")

	obs := panicObserver{}
	b := newTestBalancer(t, reg, DefaultConfig(), Options{Observers: []AttemptObserver{obs}})

	resp, err := b.Generate(context.Background(), textRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp == nil {
		t.Fatal("Generate() returned nil response")
	}
}

type panicObserver struct{}

func (panicObserver) ObserveAttempt(ctx context.Context, attempt Attempt) {
	panic("observer bug")
}

func TestUpdateConfig(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	cfg := DefaultConfig()
	cfg.Strategy = strategies.NameLeastLoaded
	cfg.MaxAttempts = 5
	if err := b.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if b.Strategy() != strategies.NameLeastLoaded {
		t.Errorf("Strategy() = %q, want least_loaded", b.Strategy())
	}
	if b.Config().MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", b.Config().MaxAttempts)
	}

	// Invalid update leaves the current config in place.
	bad := DefaultConfig()
	bad.Strategy = "fastest"
	err := b.UpdateConfig(bad)
	if err == nil {
		t.Fatal("UpdateConfig should reject an unknown strategy")
	}
	if faults.KindOf(err) != faults.ValidationKind {
		t.Errorf("kind = %v, want ValidationKind", faults.KindOf(err))
	}
	if b.Strategy() != strategies.NameLeastLoaded {
		t.Errorf("Strategy() = %q after failed update, want least_loaded", b.Strategy())
	}
}

func TestApplyUpdate(t *testing.T) {
	reg, _ := newTestRegistry(t, "a")
	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	strategy := strategies.NameCostOptimized
	attempts := 3
	if err := b.ApplyUpdate(ConfigUpdate{Strategy: &strategy, MaxAttempts: &attempts}); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	cfg := b.Config()
	if cfg.Strategy != strategies.NameCostOptimized {
		t.Errorf("Strategy = %q, want cost_optimized", cfg.Strategy)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	// Untouched fields keep their values.
	if !cfg.FallbackEnabled {
		t.Error("FallbackEnabled lost during partial update")
	}

	bad := -2
	if err := b.ApplyUpdate(ConfigUpdate{MaxAttempts: &bad}); err == nil {
		t.Fatal("ApplyUpdate should reject a negative max_attempts")
	}
	if b.Config().MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d after failed update, want 3", b.Config().MaxAttempts)
	}
}

func TestStatsCounters(t *testing.T) {
	reg, adapters := newTestRegistry(t, "primary", "secondary")
	adapters["primary"].SetGenerateError(fmt.Errorf("primary down"))

	b := newTestBalancer(t, reg, DefaultConfig(), Options{})

	if _, err := b.Generate(context.Background(), textRequest()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := b.SelectProvider(textRequest()); err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}

	stats := b.Stats()
	if stats.TotalExecutions != 1 {
		t.Errorf("TotalExecutions = %d, want 1", stats.TotalExecutions)
	}
	if stats.TotalSelections != 1 {
		t.Errorf("TotalSelections = %d, want 1", stats.TotalSelections)
	}
	if stats.FallbackCount != 1 {
		t.Errorf("FallbackCount = %d, want 1", stats.FallbackCount)
	}
	if stats.SelectionsPerProvider["secondary"] == 0 {
		t.Error("secondary should have selection counts")
	}

	b.ResetStats()
	stats = b.Stats()
	if stats.TotalExecutions != 0 || stats.FallbackCount != 0 {
		t.Errorf("stats after reset = %+v, want zeroes", stats)
	}
}
