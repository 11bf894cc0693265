package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nimbus-hq/helios/pkg/alerting"
	"nimbus-hq/helios/pkg/balancer"
	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/faultlog"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/health"
	"nimbus-hq/helios/pkg/journal"
	"nimbus-hq/helios/pkg/journal/recorder"
	"nimbus-hq/helios/pkg/journal/retention"
	"nimbus-hq/helios/pkg/journal/storage"
	"nimbus-hq/helios/pkg/providerfactory"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/registry"
	"nimbus-hq/helios/pkg/schedule"
	"nimbus-hq/helios/pkg/telemetry/metrics"
	"nimbus-hq/helios/pkg/usage"
	usagestorage "nimbus-hq/helios/pkg/usage/storage"
)

// Options adjusts construction of a Runtime. The zero value is valid.
type Options struct {
	// Logger is the base structured logger. Nil uses slog.Default().
	Logger *slog.Logger

	// Clock drives the periodic tasks. Nil uses the real clock; tests
	// inject a fake to step time deterministically.
	Clock schedule.Clock

	// PromRegistry receives the metric collectors. Nil uses a private
	// registry, which keeps parallel runtimes from colliding.
	PromRegistry *prometheus.Registry

	// Version is reported by Status.
	Version string
}

// Runtime owns every helios subsystem and runs their shared lifecycle.
type Runtime struct {
	logger  *slog.Logger
	clock   schedule.Clock
	version string

	faultLog     *faultlog.Logger
	faultMetrics *faults.Metrics
	faults       *faults.Handler

	registry *registry.Registry
	balancer *balancer.Balancer
	health   *health.Monitor
	alerts   *alerting.Monitor
	metrics  *metrics.Collector

	journalStore journal.Storage
	journal      *recorder.Recorder
	pruner       *retention.Pruner
	usage        *usage.Tracker

	// mu guards cfg and the start state.
	mu        sync.Mutex
	cfg       *config.Config
	started   bool
	startedAt time.Time

	stopOnce sync.Once
	stopErr  error
}

// New builds a runtime from cfg, applying defaults to unset fields. The
// runtime is inert until Start; a failed New releases everything it opened.
func New(cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, faults.Newf(faults.ValidationKind, "config cannot be nil")
	}
	config.ApplyDefaults(cfg)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = schedule.NewRealClock()
	}

	r := &Runtime{
		logger:  logger.With("component", "runtime"),
		clock:   clock,
		version: opts.Version,
		cfg:     cfg,
	}

	built := false
	defer func() {
		if !built {
			r.closeResources()
		}
	}()

	// Fault pipeline first: everything downstream reports into it.
	r.faultLog = faultlog.New(cfg.Faults.LogCapacity)
	if err := r.addSinks(logger, cfg.Faults.Sinks); err != nil {
		return nil, err
	}
	r.faultMetrics = faults.NewMetrics(cfg.Faults.MaxRecent)
	r.metrics = metrics.NewCollector(metrics.Config{
		Enabled:   cfg.Telemetry.Metrics.IsEnabled(),
		Namespace: cfg.Telemetry.Metrics.Namespace,
	}, opts.PromRegistry)
	r.faults = faults.NewHandler(faults.HandlerConfig{
		Metrics: r.faultMetrics,
		Log:     &faultTee{log: r.faultLog, metrics: r.metrics},
		Strict:  cfg.Faults.Strict,
	})
	if err := r.registerFaultResponses(); err != nil {
		return nil, err
	}

	r.registry = registry.New()
	if err := providerfactory.RegisterAll(r.registry, cfg.Providers); err != nil {
		// The registered subset still serves; the rest surfaces here.
		r.logger.Warn("continuing with partial provider set", "error", err)
	}

	if cfg.Journal.IsEnabled() {
		if err := r.setupJournal(cfg.Journal); err != nil {
			return nil, err
		}
	}
	if cfg.Usage.IsEnabled() {
		if err := r.setupUsage(cfg.Usage); err != nil {
			return nil, err
		}
	}

	b, err := balancer.New(r.registry, balancerConfig(cfg), balancer.Options{
		Faults:    r.faults,
		Observers: []balancer.AttemptObserver{&attemptObserver{r: r}},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	r.balancer = b

	hm, err := health.New(r.registry, health.Config{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
		Retries:  cfg.Health.Retries,
	}, clock)
	if err != nil {
		return nil, err
	}
	hm.OnResult(func(name string, healthy bool, _ time.Duration) {
		r.metrics.UpdateProviderHealth(name, healthy)
	})
	r.health = hm

	am, err := alerting.New(r.faultMetrics, alerting.Config{
		Enabled:    cfg.Alerting.IsEnabled(),
		Interval:   cfg.Alerting.Interval,
		MaxHistory: cfg.Alerting.MaxHistory,
	}, clock)
	if err != nil {
		return nil, err
	}
	for _, a := range cfg.Alerting.Alerts {
		if err := am.AddAlert(a); err != nil {
			return nil, err
		}
	}
	r.alerts = am

	built = true
	return r, nil
}

// registerFaultResponses installs code-specific responses for the pool
// failures the balancer raises, replacing the generic category templates
// with concrete next steps.
func (r *Runtime) registerFaultResponses() error {
	err := r.faults.Register(balancer.CodeNoProviders, func(error, faults.Context) *faults.Response {
		return &faults.Response{
			Code:       balancer.CodeNoProviders,
			Title:      "No providers registered",
			Message:    "The provider pool is empty, so no request can be served.",
			Suggestion: "Add at least one provider to the configuration and reload.",
			RecoveryActions: []string{
				"add a provider to the providers section",
				"run `helios validate` against the configuration",
				"reload or restart the service",
			},
		}
	})
	if err != nil {
		return err
	}

	return r.faults.Register(faults.AggregateFailureKind.DefaultCode(), func(err error, _ faults.Context) *faults.Response {
		resp := &faults.Response{
			Code:       faults.AggregateFailureKind.DefaultCode(),
			Title:      "All providers failed",
			Message:    "Every provider in the fallback chain failed to serve the request.",
			Suggestion: "Check provider health and retry once a provider recovers.",
			RecoveryActions: []string{
				"check /v1/health/providers",
				"review recent errors in the fault log",
				"retry the request",
			},
		}
		var agg *balancer.AggregateError
		if errors.As(err, &agg) {
			resp.Message = fmt.Sprintf("Every provider in the fallback chain failed to serve the request (%d attempts).", agg.Attempts)
		}
		return resp
	})
}

// addSinks registers the console sink and every configured extra sink on
// the fault log.
func (r *Runtime) addSinks(logger *slog.Logger, sinks []config.SinkConfig) error {
	if err := r.faultLog.AddSink(faultlog.NewConsoleSink(logger), faultlog.SinkOptions{}); err != nil {
		return err
	}

	for _, sc := range sinks {
		var sink faultlog.Sink
		switch sc.Type {
		case "console":
			sink = faultlog.NewConsoleSink(logger)
		case "file":
			sink = faultlog.NewFileSink(sc.Target)
		case "database":
			sink = faultlog.NewDatabaseSink(sc.Target)
		case "external":
			sink = faultlog.NewExternalSink(sc.Target)
		default:
			return faults.Newf(faults.ValidationKind, "unknown fault sink type %q", sc.Type)
		}

		level, err := faultlog.ParseLevel(sc.MinLevel)
		if err != nil {
			return err
		}
		if err := r.faultLog.AddSink(sink, faultlog.SinkOptions{
			MinLevel: level,
			Filters:  sc.Filters,
		}); err != nil {
			return err
		}
	}
	return nil
}

// setupJournal opens the configured journal backend and hangs the async
// recorder and the retention pruner off it.
func (r *Runtime) setupJournal(jc config.JournalConfig) error {
	var store journal.Storage
	switch jc.Backend {
	case "memory":
		store = storage.NewMemoryStorage()
	case "sqlite":
		s, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         jc.SQLite.Path,
			MaxOpenConns: jc.SQLite.MaxOpenConns,
			MaxIdleConns: jc.SQLite.MaxIdleConns,
			WALMode:      true,
			BusyTimeout:  jc.SQLite.BusyTimeout,
		})
		if err != nil {
			return err
		}
		store = s
	default:
		return faults.Newf(faults.ValidationKind, "unknown journal backend %q", jc.Backend)
	}

	r.journalStore = store
	r.journal = recorder.New(store, &recorder.Config{
		Enabled:      true,
		AsyncBuffer:  jc.AsyncBuffer,
		WriteTimeout: jc.WriteTimeout,
	})

	if jc.Retention.Days > 0 || jc.Retention.MaxEntries > 0 {
		r.pruner = retention.NewPruner(store, &retention.Config{
			RetentionDays: jc.Retention.Days,
			PruneSchedule: jc.Retention.PruneSchedule,
			MaxEntries:    int64(jc.Retention.MaxEntries),
		})
	}
	return nil
}

// setupUsage opens the configured usage backend and builds the tracker
// over it.
func (r *Runtime) setupUsage(uc config.UsageConfig) error {
	var backend usage.Backend
	switch uc.Backend {
	case "memory":
		backend = usagestorage.NewMemoryBackend()
	case "sqlite":
		b, err := usagestorage.NewSQLiteBackend(uc.SQLitePath)
		if err != nil {
			return err
		}
		backend = b
	default:
		return faults.Newf(faults.ValidationKind, "unknown usage backend %q", uc.Backend)
	}

	tracker, err := usage.New(backend, usage.Config{FlushInterval: uc.FlushInterval}, r.clock)
	if err != nil {
		backend.Close()
		return err
	}
	r.usage = tracker
	return nil
}

// balancerConfig derives the balancer's config from the top-level one. The
// health interval rides along because the balancer reports it in Config().
func balancerConfig(cfg *config.Config) balancer.Config {
	return balancer.Config{
		Strategy:            cfg.Balancer.Strategy,
		FallbackEnabled:     cfg.Balancer.IsFallbackEnabled(),
		HealthCheckInterval: cfg.Health.Interval,
		MaxAttempts:         cfg.Balancer.MaxAttempts,
	}
}

// Start primes provider health and launches the periodic tasks. Starting a
// started runtime logs a warning and changes nothing.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		r.logger.Warn("runtime already started")
		return nil
	}
	r.started = true
	r.startedAt = r.clock.Now()
	r.mu.Unlock()

	// Probe once before the loops start; providers register healthy and a
	// dead one should drop out before traffic arrives.
	r.health.CheckNow(ctx)

	if err := r.health.Start(); err != nil {
		return err
	}
	if err := r.alerts.Start(); err != nil {
		return err
	}
	if r.usage != nil {
		if err := r.usage.Start(); err != nil {
			return err
		}
	}
	if r.pruner != nil {
		if err := r.pruner.Start(ctx); err != nil {
			return err
		}
	}

	r.logger.Info("runtime started",
		"providers", r.registry.Len(),
		"strategy", r.balancer.Strategy(),
	)
	return nil
}

// Stop halts the periodic tasks, drains the journal, flushes usage totals
// and closes every adapter and store. Calling Stop more than once returns
// the first result.
func (r *Runtime) Stop() error {
	r.stopOnce.Do(func() {
		r.alerts.Stop()
		r.health.Stop()
		if r.pruner != nil {
			r.pruner.Stop()
		}
		r.stopErr = r.closeResources()
		r.logger.Info("runtime stopped")
	})
	return r.stopErr
}

// closeResources releases everything New opened. It tolerates nil fields so
// it can clean up after a construction that failed partway.
func (r *Runtime) closeResources() error {
	var errs []error
	if r.usage != nil {
		errs = append(errs, r.usage.Close())
	}
	if r.journal != nil {
		errs = append(errs, r.journal.Close())
	}
	if r.journalStore != nil {
		errs = append(errs, r.journalStore.Close())
	}
	if r.registry != nil {
		errs = append(errs, r.registry.Close())
	}
	return errors.Join(errs...)
}

// Generate routes req through the balancer, falling back across providers
// on failure. Every attempt reaches the journal, the usage ledger and the
// metrics collector through the attempt observer.
func (r *Runtime) Generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	return r.balancer.Generate(ctx, req)
}

// ApplyConfig applies the hot-reloadable subset of cfg: the balancer
// settings and the alert definitions. Provider, server, journal and usage
// changes take effect on the next restart.
func (r *Runtime) ApplyConfig(cfg *config.Config) error {
	if cfg == nil {
		return faults.Newf(faults.ValidationKind, "config cannot be nil")
	}
	config.ApplyDefaults(cfg)

	if err := r.balancer.UpdateConfig(balancerConfig(cfg)); err != nil {
		return err
	}

	// Reconcile the alert set: upsert what the new config names, drop the
	// rest. Upserting keeps the firing state of unchanged alerts.
	keep := make(map[string]bool, len(cfg.Alerting.Alerts))
	for _, a := range cfg.Alerting.Alerts {
		if err := r.alerts.AddAlert(a); err != nil {
			return err
		}
		keep[a.ID] = true
	}
	for _, st := range r.alerts.Alerts() {
		if !keep[st.Alert.ID] {
			if err := r.alerts.RemoveAlert(st.Alert.ID); err != nil {
				return err
			}
		}
	}

	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()

	r.logger.Info("configuration reloaded",
		"strategy", cfg.Balancer.Strategy,
		"alerts", len(cfg.Alerting.Alerts),
	)
	return nil
}

// Config returns the active configuration.
func (r *Runtime) Config() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Registry returns the provider registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Balancer returns the load balancer.
func (r *Runtime) Balancer() *balancer.Balancer { return r.balancer }

// Health returns the health monitor.
func (r *Runtime) Health() *health.Monitor { return r.health }

// Alerts returns the alert monitor.
func (r *Runtime) Alerts() *alerting.Monitor { return r.alerts }

// Faults returns the fault handler shared by every component.
func (r *Runtime) Faults() *faults.Handler { return r.faults }

// FaultLog returns the structured fault log.
func (r *Runtime) FaultLog() *faultlog.Logger { return r.faultLog }

// Metrics returns the metrics collector.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }

// Usage returns the usage tracker, or nil when usage tracking is disabled.
func (r *Runtime) Usage() *usage.Tracker { return r.usage }

// Journal returns the journal recorder, or nil when journaling is disabled.
func (r *Runtime) Journal() *recorder.Recorder { return r.journal }

// JournalStorage returns the journal store, or nil when journaling is
// disabled.
func (r *Runtime) JournalStorage() journal.Storage { return r.journalStore }

// faultTee forwards handled failures to the structured fault log and mirrors
// the count into the metrics collector.
type faultTee struct {
	log     *faultlog.Logger
	metrics *metrics.Collector
}

func (t *faultTee) RecordFault(err error, component string, fields map[string]any) {
	t.log.RecordFault(err, component, fields)
	t.metrics.RecordFault(faults.CodeOf(err), component)
}
