package faults

import (
	"log/slog"
	"sync"
)

// Context carries the call-site information attached to a handled failure.
type Context struct {
	// Component is the subsystem reporting the failure (e.g. "balancer").
	Component string

	// Operation is the operation that failed (e.g. "execute_with_fallback").
	Operation string

	// Provider is the provider involved, when the failure is provider-bound.
	Provider string

	// RequestID correlates the failure with an inbound request.
	RequestID string

	// UserID identifies the requesting user, when known.
	UserID string

	// SessionID identifies the session, when known.
	SessionID string

	// Metadata carries free-form extra fields for the fault log.
	Metadata map[string]any

	// Retry, when non-nil, is invoked at most once for failures classified
	// as transient, unless the handler runs in strict mode. It must repeat
	// the failed operation and must not call back into the handler.
	Retry func() error
}

// HandlerFunc produces a response for a specific error code. Returning nil
// falls back to the category template.
type HandlerFunc func(err error, hctx Context) *Response

// FaultLog receives the structured record of every handled failure. It is
// implemented by the faultlog package; implementations must not panic the
// caller (the handler contains panics regardless).
type FaultLog interface {
	RecordFault(err error, component string, fields map[string]any)
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Metrics receives every handled failure. A nil value gets a fresh
	// aggregate with default capacity.
	Metrics *Metrics

	// Log, when non-nil, receives the structured record of every handled
	// failure.
	Log FaultLog

	// Strict disables the automatic transient-retry branch.
	Strict bool
}

// Handler is the central dispatch for failures raised anywhere in the
// system. It resolves an error code, runs the registered handler for that
// code (or the category fallback template), updates the error metrics, and
// forwards the record to the fault log. Handle never panics and never
// returns an error: a failure while handling degrades to a minimal generic
// response.
type Handler struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	metrics *Metrics
	log     FaultLog
	strict  bool
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(0)
	}
	return &Handler{
		handlers: make(map[string]HandlerFunc),
		metrics:  metrics,
		log:      cfg.Log,
		strict:   cfg.Strict,
		logger:   slog.Default().With("component", "faults.handler"),
	}
}

// Register installs fn as the handler for code. The last registration for a
// code wins. Returns a ValidationKind error for an empty code or nil fn.
func (h *Handler) Register(code string, fn HandlerFunc) error {
	if code == "" {
		return Newf(ValidationKind, "handler code cannot be empty")
	}
	if fn == nil {
		return Newf(ValidationKind, "handler for code %q cannot be nil", code)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlers[code]; exists {
		h.logger.Debug("replacing registered handler", "code", code)
	}
	h.handlers[code] = fn
	return nil
}

// Handle classifies err, updates metrics, forwards the record to the fault
// log, and returns the structured response. A nil err returns nil with no
// side effects.
func (h *Handler) Handle(err error, hctx Context) (resp *Response) {
	if err == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fault handling panicked", "panic", r)
			resp = fallbackResponse()
		}
	}()

	code := CodeOf(err)
	category := CategoryOf(err)
	component := hctx.Component
	if component == "" {
		component = "unknown"
	}

	// Metrics and the fault log are updated on every path, registered
	// handler or not.
	h.metrics.Observe(code, category, component, err.Error())
	h.record(err, component, hctx)

	if fn := h.lookup(code); fn != nil {
		resp = h.invoke(fn, err, hctx, code)
	}
	if resp == nil {
		resp = responseFor(code, category)
	}

	if !h.strict && hctx.Retry != nil && IsTransient(err) {
		h.attemptRecovery(resp, component, hctx)
	}

	return resp
}

// Metrics exposes the aggregate for the alert monitor and status endpoints.
func (h *Handler) Metrics() *Metrics {
	return h.metrics
}

// Strict reports whether the transient-retry branch is disabled.
func (h *Handler) Strict() bool {
	return h.strict
}

func (h *Handler) lookup(code string) HandlerFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handlers[code]
}

// invoke runs a registered handler, containing panics so a broken handler
// degrades to the fallback template instead of propagating.
func (h *Handler) invoke(fn HandlerFunc, err error, hctx Context, code string) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("registered handler panicked", "code", code, "panic", r)
			resp = nil
		}
	}()
	return fn(err, hctx)
}

// record forwards the failure to the fault log, shielding the caller from a
// misbehaving log implementation.
func (h *Handler) record(err error, component string, hctx Context) {
	if h.log == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fault log panicked", "panic", r)
		}
	}()

	fields := map[string]any{}
	for k, v := range hctx.Metadata {
		fields[k] = v
	}
	if hctx.Operation != "" {
		fields["operation"] = hctx.Operation
	}
	if hctx.Provider != "" {
		fields["provider"] = hctx.Provider
	}
	if hctx.RequestID != "" {
		fields["request_id"] = hctx.RequestID
	}
	if hctx.UserID != "" {
		fields["user_id"] = hctx.UserID
	}
	if hctx.SessionID != "" {
		fields["session_id"] = hctx.SessionID
	}
	h.log.RecordFault(err, component, fields)
}

// attemptRecovery runs the caller-supplied retry closure exactly once for a
// transient failure. The retry outcome is recorded straight into metrics,
// never re-dispatched through Handle, so recovery cannot recurse.
func (h *Handler) attemptRecovery(resp *Response, component string, hctx Context) {
	retryErr := h.invokeRetry(hctx.Retry)
	if retryErr == nil {
		resp.Recovered = true
		h.logger.Info("transient failure recovered on retry",
			"component", component,
			"operation", hctx.Operation,
		)
		return
	}
	h.metrics.Observe(CodeOf(retryErr), CategoryOf(retryErr), component, retryErr.Error())
	h.logger.Debug("transient retry failed",
		"component", component,
		"error", retryErr,
	)
}

func (h *Handler) invokeRetry(retry func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Newf(UnknownKind, "retry panicked: %v", r)
		}
	}()
	return retry()
}
