package providers

import (
	"fmt"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
	FinishFiltered  = "content_filter"
)

// Message is one turn of a conversation in the canonical shape.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a tool the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// TokenUsage is the token accounting reported by a provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationRequest is the single canonical request shape helios routes.
type GenerationRequest struct {
	// Model is the model to use. Empty means the provider's configured
	// default model.
	Model string `json:"model,omitempty"`

	// Messages is the conversation so far. At least one is required.
	Messages []Message `json:"messages"`

	// Tools, when non-empty, restricts routing to providers that support
	// tool calls.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature,omitempty"`

	// Stop lists sequences that end the completion.
	Stop []string `json:"stop,omitempty"`

	// Stream, when true, restricts routing to providers that support
	// streaming.
	Stream bool `json:"stream,omitempty"`

	// User is an opaque end-user identifier forwarded to the provider.
	User string `json:"user,omitempty"`
}

// NeedsToolCalls reports whether the request requires tool-call support.
func (r *GenerationRequest) NeedsToolCalls() bool {
	return len(r.Tools) > 0
}

// NeedsStreaming reports whether the request requires streaming support.
func (r *GenerationRequest) NeedsStreaming() bool {
	return r.Stream
}

// Validate checks the request shape.
func (r *GenerationRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request cannot be nil")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("request must contain at least one message")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d: role is required", i)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d", r.MaxTokens)
	}
	return nil
}

// GenerationResponse is the canonical result of a generation call.
type GenerationResponse struct {
	ID           string        `json:"id"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FinishReason string        `json:"finish_reason"`
	Usage        TokenUsage    `json:"usage"`
	Created      time.Time     `json:"created"`
	Latency      time.Duration `json:"latency"`
}

// StreamChunk is one element of a streaming generation. After a chunk with
// Done set (or a non-nil Err) the channel is closed.
type StreamChunk struct {
	Content      string     `json:"content,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Done         bool       `json:"done,omitempty"`
	Err          error      `json:"-"`
}

// Capabilities is the feature set a provider declares.
type Capabilities struct {
	// SupportsToolCalls reports tool-call support.
	SupportsToolCalls bool `json:"supports_tool_calls"`

	// SupportsStreaming reports streaming support.
	SupportsStreaming bool `json:"supports_streaming"`

	// MaxTokens is the largest completion the provider accepts. Zero means
	// unlimited (or unknown).
	MaxTokens int `json:"max_tokens"`
}

// Satisfies reports whether these capabilities cover the features the
// request requires.
func (c Capabilities) Satisfies(req *GenerationRequest) bool {
	if req == nil {
		return true
	}
	if req.NeedsToolCalls() && !c.SupportsToolCalls {
		return false
	}
	if req.NeedsStreaming() && !c.SupportsStreaming {
		return false
	}
	if c.MaxTokens > 0 && req.MaxTokens > c.MaxTokens {
		return false
	}
	return true
}

// AdapterConfig is the construction-time configuration for an adapter.
type AdapterConfig struct {
	// Name is the unique provider name.
	Name string `json:"name"`

	// Type selects the adapter implementation ("openai-compatible", "mock").
	Type string `json:"type"`

	// BaseURL is the provider endpoint root.
	BaseURL string `json:"base_url"`

	// APIKey authenticates against the provider. Optional for local
	// backends.
	APIKey string `json:"-"`

	// Model is the default model sent when the request names none.
	Model string `json:"model"`

	// Timeout bounds each HTTP call.
	Timeout time.Duration `json:"timeout"`

	// MaxRetries bounds transport-level retries inside the adapter.
	MaxRetries int `json:"max_retries"`

	// Capabilities declares the provider feature set.
	Capabilities Capabilities `json:"capabilities"`
}
