// Package balancer routes generation requests across the providers held in
// a registry. Selection filters enabled providers by capability and health,
// then applies a configurable strategy; execution retries across providers
// in priority order and feeds every outcome back into the registry stats.
package balancer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nimbus-hq/helios/pkg/balancer/strategies"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/registry"
)

// Operation is one provider invocation attempted by ExecuteWithFallback.
type Operation func(ctx context.Context, adapter providers.Adapter) (*providers.GenerationResponse, error)

// Attempt describes the outcome of a single provider attempt.
type Attempt struct {
	// Provider is the name of the provider that was tried.
	Provider string

	// Number is the 1-based position of this attempt within the call.
	Number int

	// Elapsed is how long the provider call took.
	Elapsed time.Duration

	// Err is nil when the attempt succeeded.
	Err error

	// Fallback is true when this attempt followed an earlier failure.
	Fallback bool

	// Response is set on success for observers that need token usage.
	Response *providers.GenerationResponse
}

// AttemptObserver receives the outcome of every provider attempt. Observers
// run on the request path and must return quickly; panics are contained.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, attempt Attempt)
}

// Options carries the balancer's optional collaborators.
type Options struct {
	// Faults, when non-nil, receives every failed attempt for
	// classification and metrics.
	Faults *faults.Handler

	// Observers receive every attempt outcome, successful or not.
	Observers []AttemptObserver

	// Logger is the structured logger. Nil defaults to slog.Default().
	Logger *slog.Logger
}

// Selection is the outcome of SelectProvider.
type Selection struct {
	// Adapter is the selected provider's adapter.
	Adapter providers.Adapter

	// Provider is the selected provider's name.
	Provider string

	// Strategy is the name of the strategy that made the selection.
	Strategy string

	// Degraded is true when the selection accepted an unhealthy provider
	// because no healthy candidate remained.
	Degraded bool

	// Candidates contains the names that survived filtering, in the order
	// handed to the strategy.
	Candidates []string
}

// Balancer distributes generation requests across registered providers.
type Balancer struct {
	registry *registry.Registry

	// mu protects cfg and strategy, which hot-reload together.
	mu       sync.RWMutex
	cfg      Config
	strategy strategies.Strategy

	stats     *atomicStats
	faults    *faults.Handler
	observers []AttemptObserver
	logger    *slog.Logger
}

// New creates a balancer over reg with the given configuration.
func New(reg *registry.Registry, cfg Config, opts Options) (*Balancer, error) {
	if reg == nil {
		return nil, faults.Newf(faults.ValidationKind, "registry cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := strategies.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "balancer")
	}

	return &Balancer{
		registry:  reg,
		cfg:       cfg,
		strategy:  strat,
		stats:     newAtomicStats(),
		faults:    opts.Faults,
		observers: opts.Observers,
		logger:    logger,
	}, nil
}

// SelectProvider picks one provider for the request.
//
// The pipeline: list enabled providers, keep those whose capabilities
// satisfy the request, keep those currently healthy, then apply the
// configured strategy. When health filtering leaves nothing and fallback is
// enabled, selection degrades to the full capable set rather than failing.
func (b *Balancer) SelectProvider(req *providers.GenerationRequest) (*Selection, error) {
	b.stats.incrementSelections()

	regs := b.registry.List()
	if len(regs) == 0 {
		b.stats.incrementErrors()
		return nil, faults.TagWithCode(ErrNoProviders, faults.NotFoundKind, CodeNoProviders)
	}

	capable := make([]registry.Registration, 0, len(regs))
	for _, reg := range regs {
		if reg.Descriptor.Capabilities.Satisfies(req) {
			capable = append(capable, reg)
		}
	}
	if len(capable) == 0 {
		b.stats.incrementErrors()
		return nil, &NoCapableProviderError{
			Model:     requestModel(req),
			Providers: registrationNames(regs),
		}
	}

	cfg := b.Config()

	// Snapshot stats once per candidate; the request counts feed the
	// least-loaded strategy.
	counts := make(map[string]int64, len(capable))
	healthy := make([]registry.Registration, 0, len(capable))
	for _, reg := range capable {
		snap, err := b.registry.Stats(reg.Descriptor.Name)
		if err != nil {
			// Removed between List and Stats.
			continue
		}
		counts[reg.Descriptor.Name] = snap.RequestCount
		if snap.Healthy {
			healthy = append(healthy, reg)
		}
	}

	pool := healthy
	degraded := false
	switch {
	case len(healthy) == 0:
		if !cfg.FallbackEnabled {
			b.stats.incrementErrors()
			return nil, &NoHealthyProviderError{
				Model:     requestModel(req),
				Providers: registrationNames(capable),
			}
		}
		pool = capable
		degraded = true
		b.stats.incrementDegraded()
	case len(healthy) < len(capable):
		b.stats.incrementHealthFiltered()
	}

	candidates := make([]strategies.Candidate, 0, len(pool))
	for _, reg := range pool {
		candidates = append(candidates, strategies.Candidate{
			Name:         reg.Descriptor.Name,
			Priority:     reg.Descriptor.Priority,
			RequestCount: counts[reg.Descriptor.Name],
			Adapter:      reg.Adapter,
		})
	}

	b.mu.RLock()
	strat := b.strategy
	b.mu.RUnlock()

	selected, err := strat.Select(req, candidates)
	if err != nil {
		b.stats.incrementErrors()
		return nil, fmt.Errorf("strategy selection failed: %w", err)
	}

	b.stats.incrementProvider(selected.Name)
	b.stats.incrementStrategy(strat.Name())

	b.logger.Debug("provider selected",
		"provider", selected.Name,
		"strategy", strat.Name(),
		"degraded", degraded,
		"candidates", len(candidates),
	)

	return &Selection{
		Adapter:    selected.Adapter,
		Provider:   selected.Name,
		Strategy:   strat.Name(),
		Degraded:   degraded,
		Candidates: candidateNames(candidates),
	}, nil
}

// ExecuteWithFallback runs op against providers in priority order until one
// succeeds or maxAttempts attempts have been made. Each provider is tried at
// most once per call.
//
// A success records the elapsed time into the provider's rolling average and
// marks it healthy. A failure increments its error count, marks it
// unhealthy, and reports the error to the fault handler; the next provider
// is tried only while fallback is enabled. maxAttempts <= 0 uses the
// configured MaxAttempts, which itself defaults to the provider count.
func (b *Balancer) ExecuteWithFallback(ctx context.Context, op Operation, maxAttempts int) (*providers.GenerationResponse, error) {
	if op == nil {
		return nil, faults.Newf(faults.ValidationKind, "operation cannot be nil")
	}
	b.stats.incrementExecutions()

	regs := b.registry.List()
	if len(regs) == 0 {
		b.stats.incrementErrors()
		return nil, faults.TagWithCode(ErrNoProviders, faults.NotFoundKind, CodeNoProviders)
	}

	cfg := b.Config()
	if maxAttempts <= 0 {
		maxAttempts = cfg.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = len(regs)
	}

	var (
		attempts  int
		attempted []string
		lastErr   error
	)

	for _, reg := range regs {
		if attempts >= maxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			b.stats.incrementErrors()
			return nil, err
		}

		name := reg.Descriptor.Name
		attempts++
		attempted = append(attempted, name)
		if attempts > 1 {
			b.stats.incrementFallbacks()
		}

		start := time.Now()
		resp, err := invokeOperation(ctx, op, reg.Adapter)
		elapsed := time.Since(start)

		if err == nil {
			if recErr := b.registry.RecordSuccess(name, elapsed); recErr != nil {
				b.logger.Warn("recording success failed", "provider", name, "error", recErr)
			}
			b.stats.incrementProvider(name)
			b.notify(ctx, Attempt{
				Provider: name,
				Number:   attempts,
				Elapsed:  elapsed,
				Fallback: attempts > 1,
				Response: resp,
			})
			return resp, nil
		}

		lastErr = err
		if recErr := b.registry.RecordFailure(name); recErr != nil {
			b.logger.Warn("recording failure failed", "provider", name, "error", recErr)
		}
		b.reportFailure(err, name)
		b.notify(ctx, Attempt{
			Provider: name,
			Number:   attempts,
			Elapsed:  elapsed,
			Err:      err,
			Fallback: attempts > 1,
		})
		b.logger.Warn("provider attempt failed",
			"provider", name,
			"attempt", attempts,
			"error", err,
		)

		if !cfg.FallbackEnabled {
			break
		}
	}

	b.stats.incrementExhausted()
	b.stats.incrementErrors()
	return nil, &AggregateError{
		Attempts:  attempts,
		Attempted: attempted,
		LastErr:   lastErr,
	}
}

// Generate validates req and runs it through ExecuteWithFallback,
// dispatching to GenerateWithTools when the request carries tools and
// GenerateText otherwise.
func (b *Balancer) Generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, faults.Tag(err, faults.ValidationKind)
	}

	op := func(ctx context.Context, adapter providers.Adapter) (*providers.GenerationResponse, error) {
		if req.NeedsToolCalls() {
			return adapter.GenerateWithTools(ctx, req)
		}
		return adapter.GenerateText(ctx, req)
	}
	return b.ExecuteWithFallback(ctx, op, 0)
}

// Config returns the current configuration.
func (b *Balancer) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Strategy returns the name of the active strategy.
func (b *Balancer) Strategy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.strategy.Name()
}

// UpdateConfig replaces the configuration after validating it. A strategy
// change takes effect immediately with fresh strategy state.
func (b *Balancer) UpdateConfig(cfg Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyLocked(cfg)
}

// ApplyUpdate merges a partial change into the current configuration and
// validates the result before it takes effect.
func (b *Balancer) ApplyUpdate(update ConfigUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyLocked(b.cfg.merge(update))
}

// applyLocked validates and installs cfg. The caller holds b.mu.
func (b *Balancer) applyLocked(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Strategy != b.cfg.Strategy {
		strat, err := strategies.New(cfg.Strategy)
		if err != nil {
			return err
		}
		b.strategy = strat
	}
	b.cfg = cfg
	b.logger.Info("balancer config updated", "config", cfg.String())
	return nil
}

// Stats returns a snapshot of the balancer counters.
func (b *Balancer) Stats() *Stats {
	return b.stats.snapshot()
}

// ResetStats zeroes the balancer counters.
func (b *Balancer) ResetStats() {
	b.stats.reset()
}

// reportFailure forwards a failed attempt to the fault handler.
func (b *Balancer) reportFailure(err error, provider string) {
	if b.faults == nil {
		return
	}
	b.faults.Handle(err, faults.Context{
		Component: "balancer",
		Operation: "execute_with_fallback",
		Provider:  provider,
	})
}

// notify fans the attempt out to observers. Observer panics are contained so
// a bad observer cannot fail a request that already succeeded.
func (b *Balancer) notify(ctx context.Context, attempt Attempt) {
	for _, obs := range b.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("attempt observer panicked", "panic", r)
				}
			}()
			obs.ObserveAttempt(ctx, attempt)
		}()
	}
}

// invokeOperation runs one attempt, converting a panicking adapter call into
// an error so a misbehaving provider cannot take down the request path.
func invokeOperation(ctx context.Context, op Operation, adapter providers.Adapter) (resp *providers.GenerationResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Newf(faults.ProviderFailureKind, "provider panicked: %v", r)
		}
	}()
	return op(ctx, adapter)
}

func requestModel(req *providers.GenerationRequest) string {
	if req == nil {
		return ""
	}
	return req.Model
}

func registrationNames(regs []registry.Registration) []string {
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.Descriptor.Name)
	}
	return names
}

func candidateNames(candidates []strategies.Candidate) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return names
}
