// Package metrics exposes Prometheus metrics for Helios.
//
// The Collector owns every metric the service exports: request outcomes,
// latencies, token and cost totals, provider health, provider errors by
// type, balancer selections by strategy, and fault counts by code. The
// runtime records into it from the balancer's attempt observer and the
// fault handler, so no core package imports Prometheus directly.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "helios"

// DefaultCardinality bounds the number of unique request label sets.
const DefaultCardinality = 10000

// Config contains configuration for the metrics collector.
type Config struct {
	// Enabled turns metric recording on. A disabled collector still
	// registers its metrics so the endpoint serves zeroes rather than 404s.
	Enabled bool

	// Namespace is the metric name prefix (defaults to "helios").
	Namespace string

	// DurationBuckets are the histogram buckets for request durations in
	// seconds. Defaults cover interactive LLM latencies (100ms - 30s).
	DurationBuckets []float64

	// TokenBuckets are the histogram buckets for token counts.
	TokenBuckets []float64
}

// Collector owns and registers all Prometheus metrics.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec

	providerHealth *prometheus.GaugeVec
	providerErrors *prometheus.CounterVec

	selectionsTotal *prometheus.CounterVec
	faultsTotal     *prometheus.CounterVec

	cardinality *cardinalityLimiter
}

// NewCollector creates a collector and registers its metrics with the given
// registry. A nil registry gets a fresh private one, never the global
// default registry.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}
	if len(cfg.TokenBuckets) == 0 {
		cfg.TokenBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	c := &Collector{
		enabled:     cfg.Enabled,
		registry:    registry,
		cardinality: newCardinalityLimiter(DefaultCardinality),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of generation requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of generation requests in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"provider", "model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "request_tokens_total",
				Help:      "Total number of tokens processed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cost_dollars_total",
				Help:      "Total estimated spend in USD by provider and model",
			},
			[]string{"provider", "model"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),

		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by type",
			},
			[]string{"provider", "error_type"},
		),

		selectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "balancer_selections_total",
				Help:      "Total number of balancer selections by strategy and chosen provider",
			},
			[]string{"strategy", "provider"},
		),

		faultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "faults_total",
				Help:      "Total number of handled faults by code and component",
			},
			[]string{"code", "component"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.tokensTotal,
		c.costTotal,
		c.providerHealth,
		c.providerErrors,
		c.selectionsTotal,
		c.faultsTotal,
	)

	return c
}

// RecordRequest records a completed generation request. Status is "success"
// or "error". Token counts of zero are skipped; a non-positive cost is not
// recorded.
//
// Model is the one label whose values arrive from requests rather than
// configuration, so it is the label aggregated into "other" when the
// cardinality limit is reached.
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	if !c.enabled {
		return
	}

	labelSet := fmt.Sprintf("request:%s:%s:%s", provider, model, status)
	if !c.cardinality.allow(labelSet) {
		model = "other"
	}

	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())

	if promptTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}

	if cost > 0 {
		c.costTotal.WithLabelValues(provider, model).Add(cost)
	}
}

// UpdateProviderHealth updates the health gauge for a provider.
func (c *Collector) UpdateProviderHealth(provider string, healthy bool) {
	if !c.enabled {
		return
	}

	value := 0.0
	if healthy {
		value = 1.0
	}
	c.providerHealth.WithLabelValues(provider).Set(value)
}

// RecordProviderError records an error from a provider. Error types follow
// the fault categories ("rate_limit", "authentication", "network", ...).
func (c *Collector) RecordProviderError(provider, errorType string) {
	if !c.enabled {
		return
	}
	c.providerErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordSelection records a balancer selection outcome.
func (c *Collector) RecordSelection(strategy, provider string) {
	if !c.enabled {
		return
	}
	c.selectionsTotal.WithLabelValues(strategy, provider).Inc()
}

// RecordFault records a fault processed by the fault handler.
func (c *Collector) RecordFault(code, component string) {
	if !c.enabled {
		return
	}
	c.faultsTotal.WithLabelValues(code, component).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// cardinalityLimiter caps the number of unique label combinations so a
// stream of per-request model names cannot grow metric memory without
// bound.
type cardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

func newCardinalityLimiter(maxCardinality int) *cardinalityLimiter {
	return &cardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// allow reports whether a label set may be recorded as-is. Known sets and
// sets under the limit pass; new sets past the limit are rejected.
func (cl *cardinalityLimiter) allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// count returns the current cardinality.
func (cl *cardinalityLimiter) count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
