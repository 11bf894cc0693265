package providertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Server is a mock OpenAI-compatible HTTP endpoint for adapter tests. It
// serves configured responses per path and records what it received.
type Server struct {
	server *httptest.Server

	mu           sync.Mutex
	responses    map[string]Response
	requestCount int
	lastBody     []byte
	lastHeader   http.Header
}

// Response configures what the server answers on a path.
type Response struct {
	StatusCode   int
	Body         any
	Headers      map[string]string
	Delay        time.Duration
	StreamChunks []string
}

// NewServer starts a mock server. Callers own Close.
func NewServer() *Server {
	s := &Server{
		responses: make(map[string]Response),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.server.URL }

// Close shuts the server down.
func (s *Server) Close() { s.server.Close() }

// SetResponse configures the response for a path.
func (s *Server) SetResponse(path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = resp
}

// RequestCount returns how many requests the server has received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

// LastBody returns the body of the most recent request.
func (s *Server) LastBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody
}

// LastHeader returns a header value from the most recent request.
func (s *Server) LastHeader(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHeader == nil {
		return ""
	}
	return s.lastHeader.Get(key)
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requestCount++
	s.lastBody = body
	s.lastHeader = r.Header.Clone()
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	if len(resp.StreamChunks) > 0 {
		s.handleStream(w, resp)
		return
	}

	w.WriteHeader(resp.StatusCode)

	if resp.Body != nil {
		switch v := resp.Body.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		case []byte:
			_, _ = w.Write(v)
		default:
			_ = json.NewEncoder(w).Encode(resp.Body)
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for _, chunk := range resp.StreamChunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
		time.Sleep(5 * time.Millisecond)
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ChatResponse builds a chat completion response body.
func ChatResponse(content, model string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// ToolCallResponse builds a chat completion response that requests a tool
// call instead of returning content.
func ToolCallResponse(model, toolName, arguments string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-456",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      toolName,
								"arguments": arguments,
							},
						},
					},
				},
				"finish_reason": "tool_calls",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     15,
			"completion_tokens": 5,
			"total_tokens":      20,
		},
	}
}

// StreamChunkJSON builds one SSE data payload for a streaming response.
func StreamChunkJSON(delta, finishReason string) string {
	chunk := map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"delta": map[string]any{
					"content": delta,
				},
				"finish_reason": finishReason,
			},
		},
	}
	data, _ := json.Marshal(chunk)
	return string(data)
}

// ErrorResponse builds an error response with the usual JSON envelope.
func ErrorResponse(statusCode int, message string) Response {
	return Response{
		StatusCode: statusCode,
		Body: map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "invalid_request_error",
			},
		},
	}
}

// AuthErrorResponse builds a 401 response.
func AuthErrorResponse() Response {
	return ErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// RateLimitResponse builds a 429 response with a Retry-After header.
func RateLimitResponse(retryAfterSeconds int) Response {
	resp := ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	resp.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfterSeconds),
	}
	return resp
}

// ServerErrorResponse builds a 500 response.
func ServerErrorResponse() Response {
	return ErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// ModelsResponse builds a model list body for health check probes.
func ModelsResponse(models ...string) map[string]any {
	data := make([]map[string]any, len(models))
	for i, m := range models {
		data[i] = map[string]any{"id": m, "object": "model"}
	}
	return map[string]any{"object": "list", "data": data}
}
