package openaicompat

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"nimbus-hq/helios/pkg/providers"
)

// maxErrorBody caps how much of an error response body is read for the
// error message.
const maxErrorBody = 4096

var errNoChoices = errors.New("no choices in response")

// Wire types for the chat completions endpoint. The canonical request shape
// is modeled on this format, so most fields map one to one.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	User        string        `json:"user,omitempty"`
	N           int           `json:"n,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string          `json:"type"`
	Function chatFunctionDef `json:"function"`
}

type chatFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Streaming wire types.

type streamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
	Usage   *chatUsage     `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type streamDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

// errorEnvelope is the error body shape shared by OpenAI-compatible servers.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// encodeRequest maps a canonical request onto the wire format. The model is
// resolved by the caller so provider defaults apply.
func encodeRequest(req *providers.GenerationRequest, model string, stream bool) *chatRequest {
	wireReq := &chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      stream,
		User:        req.User,
		N:           1,
	}

	for i, msg := range req.Messages {
		wireReq.Messages[i] = chatMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
			ToolCalls:  encodeToolCalls(msg.ToolCalls),
		}
	}

	if len(req.Tools) > 0 {
		wireReq.Tools = make([]chatTool, len(req.Tools))
		for i, tool := range req.Tools {
			wireReq.Tools[i] = chatTool{
				Type: tool.Type,
				Function: chatFunctionDef{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
	}

	return wireReq
}

func encodeToolCalls(calls []providers.ToolCall) []chatToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]chatToolCall, len(calls))
	for i, tc := range calls {
		out[i] = chatToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: chatFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

func decodeToolCalls(calls []chatToolCall) []providers.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]providers.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = providers.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: providers.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

// decodeResponse maps a wire response back to the canonical shape. We always
// request a single completion, so only the first choice is used.
func decodeResponse(resp *chatResponse, provider string) (*providers.GenerationResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, &providers.ParseError{Provider: provider, Err: errNoChoices}
	}

	choice := resp.Choices[0]

	result := &providers.GenerationResponse{
		ID:           resp.ID,
		Provider:     provider,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		ToolCalls:    decodeToolCalls(choice.Message.ToolCalls),
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if resp.Created > 0 {
		result.Created = time.Unix(resp.Created, 0)
	} else {
		result.Created = time.Now()
	}

	return result, nil
}

// decodeStreamChunk maps one SSE data payload to a canonical chunk. A chunk
// whose choice carries a finish reason is the final content chunk and is
// marked Done.
func decodeStreamChunk(chunk *streamResponse) (providers.StreamChunk, error) {
	if len(chunk.Choices) == 0 {
		// Some servers send a trailing usage-only chunk; nothing to emit.
		return providers.StreamChunk{}, errNoChoices
	}

	choice := chunk.Choices[0]
	return providers.StreamChunk{
		Content:      choice.Delta.Content,
		ToolCalls:    decodeToolCalls(choice.Delta.ToolCalls),
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Done:         choice.FinishReason != "",
	}, nil
}

// normalizeFinishReason folds vendor spellings onto the canonical values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop":
		return providers.FinishStop
	case "length", "max_tokens":
		return providers.FinishLength
	case "tool_calls", "function_call":
		return providers.FinishToolCalls
	case "content_filter":
		return providers.FinishFiltered
	default:
		return reason
	}
}

// errorMessage extracts the error message from a response body, falling
// back to the raw text when the body is not the usual JSON envelope.
func errorMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}
