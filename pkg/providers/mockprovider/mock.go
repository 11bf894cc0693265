// Package mockprovider implements an in-process provider adapter with no
// network dependency. It answers every generation deterministically from
// the request content, which makes it useful for local development, demos,
// and wiring checks before real credentials exist.
//
// For tests that need to inject failures or flip health at runtime, use the
// richer test double in internal/providertest instead.
package mockprovider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
)

// DefaultModel is reported when the config names no model.
const DefaultModel = "mock-model"

// Adapter is a deterministic, network-free providers.Adapter.
type Adapter struct {
	name   string
	model  string
	caps   providers.Capabilities
	closed atomic.Bool
}

// New builds a mock adapter. An all-zero capability set is promoted to full
// tool-call and streaming support so a bare config stays selectable.
func New(cfg providers.AdapterConfig) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "name", Message: "name is required"}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	caps := cfg.Capabilities
	if caps == (providers.Capabilities{}) {
		caps = providers.Capabilities{SupportsToolCalls: true, SupportsStreaming: true}
	}

	return &Adapter{
		name:  cfg.Name,
		model: model,
		caps:  caps,
	}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string { return a.name }

// Capabilities returns the declared feature set.
func (a *Adapter) Capabilities() providers.Capabilities { return a.caps }

// Close marks the adapter closed. Later calls fail.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return nil
}

// GenerateText answers with a canned completion echoing the last user
// message.
func (a *Adapter) GenerateText(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	if err := a.check(ctx, req); err != nil {
		return nil, err
	}

	content := a.reply(req)
	return a.respond(req, content, nil, providers.FinishStop), nil
}

// GenerateWithTools answers with a call to the first declared tool when the
// request carries tools, and falls back to a text completion otherwise.
func (a *Adapter) GenerateWithTools(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	if err := a.check(ctx, req); err != nil {
		return nil, err
	}

	if len(req.Tools) == 0 {
		return a.respond(req, a.reply(req), nil, providers.FinishStop), nil
	}

	call := providers.ToolCall{
		ID:   "call_" + uuid.New().String(),
		Type: "function",
		Function: providers.FunctionCall{
			Name:      req.Tools[0].Function.Name,
			Arguments: "{}",
		},
	}
	return a.respond(req, "", []providers.ToolCall{call}, providers.FinishToolCalls), nil
}

// StreamGeneration delivers the canned completion word by word. The final
// chunk is marked Done and the channel closes after it.
func (a *Adapter) StreamGeneration(ctx context.Context, req *providers.GenerationRequest) (<-chan providers.StreamChunk, error) {
	if err := a.check(ctx, req); err != nil {
		return nil, err
	}

	words := strings.SplitAfter(a.reply(req), " ")
	out := make(chan providers.StreamChunk, len(words)+1)

	go func() {
		defer close(out)
		for _, word := range words {
			select {
			case out <- providers.StreamChunk{Content: word}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- providers.StreamChunk{FinishReason: providers.FinishStop, Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// HealthCheck always succeeds while the adapter is open.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.closed.Load() {
		return &providers.ProviderError{Provider: a.name, Message: "adapter is closed"}
	}
	return ctx.Err()
}

func (a *Adapter) check(ctx context.Context, req *providers.GenerationRequest) error {
	if a.closed.Load() {
		return &providers.ProviderError{Provider: a.name, Message: "adapter is closed"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if req == nil {
		return faults.Newf(faults.ValidationKind, "request cannot be nil")
	}
	if err := req.Validate(); err != nil {
		return faults.Newf(faults.ValidationKind, "invalid generation request: %v", err)
	}
	return nil
}

// reply builds the canned completion from the last user message.
func (a *Adapter) reply(req *providers.GenerationRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == providers.RoleUser && req.Messages[i].Content != "" {
			return fmt.Sprintf("mock reply from %s: %s", a.name, req.Messages[i].Content)
		}
	}
	return fmt.Sprintf("mock reply from %s", a.name)
}

func (a *Adapter) respond(req *providers.GenerationRequest, content string, calls []providers.ToolCall, finish string) *providers.GenerationResponse {
	model := req.Model
	if model == "" {
		model = a.model
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4
	}
	completionTokens := len(content) / 4

	return &providers.GenerationResponse{
		ID:           "mock-" + uuid.New().String(),
		Provider:     a.name,
		Model:        model,
		Content:      content,
		ToolCalls:    calls,
		FinishReason: finish,
		Usage: providers.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Created: time.Now(),
	}
}
