// Package providertest provides a configurable in-memory Adapter for tests.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nimbus-hq/helios/pkg/providers"
)

// Adapter is a mock providers.Adapter with controllable health, failures,
// latency, and canned responses. The zero value is not usable; construct
// with NewAdapter.
type Adapter struct {
	name string

	mu        sync.Mutex
	caps      providers.Capabilities
	healthy   bool
	genErr    error
	streamErr error
	response  *providers.GenerationResponse
	latency   time.Duration

	generateCalls atomic.Int64
	streamCalls   atomic.Int64
	healthCalls   atomic.Int64
	closed        atomic.Bool
}

// NewAdapter creates a healthy mock adapter that supports tool calls and
// streaming and answers every generation with a canned response.
func NewAdapter(name string) *Adapter {
	return &Adapter{
		name:    name,
		healthy: true,
		caps: providers.Capabilities{
			SupportsToolCalls: true,
			SupportsStreaming: true,
		},
		response: &providers.GenerationResponse{
			ID:           "gen-" + name,
			Model:        "mock-model",
			Content:      "mock response from " + name,
			FinishReason: providers.FinishStop,
			Usage:        providers.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		},
	}
}

// SetHealthy controls whether HealthCheck succeeds.
func (a *Adapter) SetHealthy(healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthy = healthy
}

// SetGenerateError makes every generation call fail with err. Pass nil to
// restore success.
func (a *Adapter) SetGenerateError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.genErr = err
}

// SetStreamError makes StreamGeneration fail at start.
func (a *Adapter) SetStreamError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streamErr = err
}

// SetResponse replaces the canned generation response.
func (a *Adapter) SetResponse(resp *providers.GenerationResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.response = resp
}

// SetLatency makes every call take at least d.
func (a *Adapter) SetLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency = d
}

// SetCapabilities replaces the declared capability set.
func (a *Adapter) SetCapabilities(caps providers.Capabilities) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.caps = caps
}

// GenerateCalls returns how many generation calls were made.
func (a *Adapter) GenerateCalls() int64 {
	return a.generateCalls.Load()
}

// HealthCalls returns how many health probes were made.
func (a *Adapter) HealthCalls() int64 {
	return a.healthCalls.Load()
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	return a.closed.Load()
}

func (a *Adapter) GenerateText(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	a.generateCalls.Add(1)
	return a.generate(ctx, req)
}

func (a *Adapter) GenerateWithTools(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	a.generateCalls.Add(1)
	resp, err := a.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.ToolCalls) == 0 && req.NeedsToolCalls() {
		resp.ToolCalls = []providers.ToolCall{{
			ID:   "call-1",
			Type: "function",
			Function: providers.FunctionCall{
				Name:      req.Tools[0].Function.Name,
				Arguments: "{}",
			},
		}}
		resp.FinishReason = providers.FinishToolCalls
	}
	return resp, nil
}

func (a *Adapter) StreamGeneration(ctx context.Context, req *providers.GenerationRequest) (<-chan providers.StreamChunk, error) {
	a.streamCalls.Add(1)

	a.mu.Lock()
	streamErr := a.streamErr
	content := ""
	if a.response != nil {
		content = a.response.Content
	}
	a.mu.Unlock()

	if streamErr != nil {
		return nil, streamErr
	}

	ch := make(chan providers.StreamChunk, 4)
	go func() {
		defer close(ch)
		half := len(content) / 2
		for _, piece := range []string{content[:half], content[half:]} {
			select {
			case ch <- providers.StreamChunk{Content: piece}:
			case <-ctx.Done():
				return
			}
		}
		ch <- providers.StreamChunk{Done: true, FinishReason: providers.FinishStop}
	}()
	return ch, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.healthCalls.Add(1)

	a.mu.Lock()
	healthy := a.healthy
	latency := a.latency
	a.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !healthy {
		return errors.New("mock provider is unhealthy")
	}
	return nil
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Capabilities() providers.Capabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps
}

func (a *Adapter) Close() error {
	a.closed.Store(true)
	return nil
}

func (a *Adapter) generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	a.mu.Lock()
	genErr := a.genErr
	latency := a.latency
	resp := a.response
	a.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if genErr != nil {
		return nil, genErr
	}
	if resp == nil {
		return nil, fmt.Errorf("mock adapter %s has no response configured", a.name)
	}

	out := *resp
	out.Provider = a.name
	if req.Model != "" {
		out.Model = req.Model
	}
	out.Created = time.Now()
	return &out, nil
}
