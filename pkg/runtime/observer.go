package runtime

import (
	"context"

	"nimbus-hq/helios/pkg/balancer"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/journal"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/usage"
)

// attemptObserver feeds balancer attempt outcomes into the runtime's
// accounting. It is registered at construction, so every Generate call is
// journaled, metered and billed without the balancer knowing about any of
// those subsystems.
type attemptObserver struct {
	r *Runtime
}

func (o *attemptObserver) ObserveAttempt(ctx context.Context, att balancer.Attempt) {
	o.r.observe(ctx, journal.OperationGenerate, att)
}

// observe records one provider attempt in the journal, the usage ledger and
// the metrics collector. It runs on the request path, so everything it calls
// is either in-memory or drop-on-full.
func (r *Runtime) observe(ctx context.Context, operation string, att balancer.Attempt) {
	var tokens providers.TokenUsage
	model := ""
	if att.Response != nil {
		tokens = att.Response.Usage
		model = att.Response.Model
	}

	var cost float64
	if tokens.TotalTokens > 0 {
		if desc, err := r.registry.Descriptor(att.Provider); err == nil {
			cost = usage.Cost(tokens.TotalTokens, desc.CostPer1KTokens)
		}
	}

	if r.journal != nil {
		entry := &journal.Entry{
			RequestID:        RequestIDFromContext(ctx),
			Provider:         att.Provider,
			Model:            model,
			Operation:        operation,
			Attempt:          att.Number,
			Fallback:         att.Fallback,
			Outcome:          journal.OutcomeSuccess,
			Latency:          att.Elapsed,
			PromptTokens:     tokens.PromptTokens,
			CompletionTokens: tokens.CompletionTokens,
			TotalTokens:      tokens.TotalTokens,
			Cost:             cost,
		}
		if att.Err != nil {
			entry.Outcome = journal.OutcomeFailure
			entry.ErrorCode = faults.CodeOf(att.Err)
		}
		// The recorder counts full-buffer drops itself.
		r.journal.Record(entry)
	}

	r.metrics.RecordSelection(r.balancer.Strategy(), att.Provider)
	if att.Err == nil {
		if r.usage != nil {
			r.usage.Record(att.Provider, tokens.TotalTokens, cost)
		}
		r.metrics.RecordRequest(att.Provider, model, "success", att.Elapsed,
			tokens.PromptTokens, tokens.CompletionTokens, cost)
	} else {
		r.metrics.RecordRequest(att.Provider, model, "error", att.Elapsed, 0, 0, 0)
		r.metrics.RecordProviderError(att.Provider, string(faults.CategoryOf(att.Err)))
	}
}
