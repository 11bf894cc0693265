package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"nimbus-hq/helios/pkg/balancer"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/runtime"
)

// ProviderHeader names the response header carrying the provider that
// served (or is serving) the request.
const ProviderHeader = "X-Helios-Provider"

// errorEnvelope is the JSON shape of every error response.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// errorBody is the structured fault response plus the request id so a
// client can quote it when reporting a problem.
type errorBody struct {
	faults.Response
	RequestID string `json:"request_id,omitempty"`
}

// streamEvent is one server-sent event on the /v1/generate stream. The
// final event has Done set; a mid-stream failure additionally carries
// Error.
type streamEvent struct {
	Content      string               `json:"content,omitempty"`
	ToolCalls    []providers.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string               `json:"finish_reason,omitempty"`
	Done         bool                 `json:"done,omitempty"`
	Error        *errorBody           `json:"error,omitempty"`
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

// writeError writes a structured fault response with the given status.
func writeError(w http.ResponseWriter, status int, resp *faults.Response, requestID string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Response: *resp, RequestID: requestID}})
}

// writeFault runs err through the fault handler and writes the resulting
// structured response. Every error leaving the HTTP surface passes through
// here so it is classified, logged, and counted exactly once at this layer.
func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, err error, operation string) {
	requestID := runtime.RequestIDFromContext(r.Context())
	resp := s.rt.Faults().Handle(err, faults.Context{
		Component: "server",
		Operation: operation,
		RequestID: requestID,
	})
	writeError(w, statusFor(err), resp, requestID)
}

// writeMethodNotAllowed answers 405 with the allowed method in the header.
func writeMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	resp := &faults.Response{
		Code:       "METHOD_NOT_ALLOWED",
		Title:      "Method not allowed",
		Message:    fmt.Sprintf("This endpoint only accepts %s requests.", allow),
		Suggestion: fmt.Sprintf("Resend the request as %s.", allow),
	}
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: errorBody{Response: *resp}})
}

// writeEvent writes one server-sent event as "data: <json>\n\n".
func writeEvent(w http.ResponseWriter, event streamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}
	return nil
}

// statusFor maps an error to its HTTP status. Balancer sentinels are
// checked first because they are more specific than the kind they carry:
// an empty or all-unhealthy pool is the service's problem (503), an
// unsupported request is the caller's (400), and exhausted fallback means
// the upstreams failed (502).
func statusFor(err error) int {
	switch {
	case errors.Is(err, balancer.ErrNoCapableProvider):
		return http.StatusBadRequest
	case errors.Is(err, balancer.ErrNoProviders), errors.Is(err, balancer.ErrNoHealthyProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, balancer.ErrAllProvidersFailed):
		return http.StatusBadGateway
	}

	switch faults.KindOf(err) {
	case faults.ValidationKind:
		return http.StatusBadRequest
	case faults.NotFoundKind:
		return http.StatusNotFound
	case faults.ConflictKind:
		return http.StatusConflict
	case faults.ProviderFailureKind, faults.AggregateFailureKind:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
