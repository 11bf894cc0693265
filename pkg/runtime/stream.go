package runtime

import (
	"context"
	"strings"
	"time"

	"nimbus-hq/helios/pkg/balancer"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/journal"
	"nimbus-hq/helios/pkg/providers"
)

// GenerateStream selects one provider for req and starts a streaming
// generation against it. A stream that has delivered chunks cannot be
// replayed against another provider, so there is no fallback: failures
// surface either as the returned error or as the Err of a chunk. The
// returned channel closes after the final chunk, at which point the outcome
// has been recorded in the registry stats, the fault pipeline, the journal
// and the metrics.
func (r *Runtime) GenerateStream(ctx context.Context, req *providers.GenerationRequest) (*balancer.Selection, <-chan providers.StreamChunk, error) {
	if req != nil {
		// Selection must filter on streaming capability.
		req.Stream = true
	}

	sel, err := r.balancer.SelectProvider(req)
	if err != nil {
		return nil, nil, err
	}

	start := r.clock.Now()
	upstream, err := sel.Adapter.StreamGeneration(ctx, req)
	if err != nil {
		err = faults.Tag(err, faults.ProviderFailureKind)
		r.finishStream(ctx, sel.Provider, req, "", r.clock.Now().Sub(start), err)
		return nil, nil, err
	}

	out := make(chan providers.StreamChunk)
	go r.relayStream(ctx, sel.Provider, req, start, upstream, out)
	return sel, out, nil
}

// relayStream forwards chunks to the caller, accumulating the completion
// text for accounting, and records the outcome once the upstream closes.
func (r *Runtime) relayStream(ctx context.Context, provider string, req *providers.GenerationRequest, start time.Time, upstream <-chan providers.StreamChunk, out chan<- providers.StreamChunk) {
	defer close(out)

	var completion strings.Builder
	var streamErr error

relay:
	for chunk := range upstream {
		if chunk.Err != nil && streamErr == nil {
			streamErr = chunk.Err
		}
		completion.WriteString(chunk.Content)

		select {
		case out <- chunk:
		case <-ctx.Done():
			if streamErr == nil {
				streamErr = ctx.Err()
			}
			// Drain until the adapter notices the cancellation and
			// closes its channel.
			for range upstream {
			}
			break relay
		}
	}

	r.finishStream(ctx, provider, req, completion.String(), r.clock.Now().Sub(start), streamErr)
}

// finishStream writes one stream attempt into the registry stats, the fault
// pipeline and the attempt accounting. Token usage is estimated from the
// text because streaming responses carry no usage report.
func (r *Runtime) finishStream(ctx context.Context, provider string, req *providers.GenerationRequest, completion string, elapsed time.Duration, streamErr error) {
	att := balancer.Attempt{Provider: provider, Number: 1, Elapsed: elapsed, Err: streamErr}

	if streamErr != nil {
		if err := r.registry.RecordFailure(provider); err != nil {
			r.logger.Warn("recording failure failed", "provider", provider, "error", err)
		}
		r.faults.Handle(streamErr, faults.Context{
			Component: "runtime",
			Operation: "stream",
			Provider:  provider,
			RequestID: RequestIDFromContext(ctx),
		})
	} else {
		if err := r.registry.RecordSuccess(provider, elapsed); err != nil {
			r.logger.Warn("recording success failed", "provider", provider, "error", err)
		}
		model := ""
		if req != nil {
			model = req.Model
		}
		att.Response = &providers.GenerationResponse{
			Provider: provider,
			Model:    model,
			Content:  completion,
			Usage:    providers.EstimateUsage(req, completion),
			Latency:  elapsed,
		}
	}

	r.observe(ctx, journal.OperationStream, att)
}
