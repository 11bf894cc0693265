package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/runtime"
)

// maxBodyBytes bounds generation request bodies.
const maxBodyBytes = 10 << 20

// handleGenerate serves POST /v1/generate. Requests with stream set are
// answered over server-sent events; everything else gets one JSON response
// after the balancer ran the request, falling back across providers as
// needed.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req providers.GenerationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeFault(w, r, faults.Newf(faults.ValidationKind, "invalid request body: %v", err), "generate")
		return
	}

	if req.Stream {
		s.streamGenerate(w, r, &req)
		return
	}

	resp, err := s.rt.Generate(r.Context(), &req)
	if err != nil {
		s.writeFault(w, r, err, "generate")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamGenerate relays a provider stream to the client as server-sent
// events. Failures before the first byte surface as a regular error
// response; failures mid-stream arrive as a terminal error event because
// the status line is already gone.
func (s *Server) streamGenerate(w http.ResponseWriter, r *http.Request, req *providers.GenerationRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeFault(w, r, fmt.Errorf("connection does not support streaming"), "stream")
		return
	}

	sel, chunks, err := s.rt.GenerateStream(r.Context(), req)
	if err != nil {
		s.writeFault(w, r, err, "stream")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(ProviderHeader, sel.Provider)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	requestID := runtime.RequestIDFromContext(r.Context())
	for chunk := range chunks {
		event := streamEvent{
			Content:      chunk.Content,
			ToolCalls:    chunk.ToolCalls,
			FinishReason: chunk.FinishReason,
			Done:         chunk.Done,
		}
		if chunk.Err != nil {
			resp := s.rt.Faults().Handle(chunk.Err, faults.Context{
				Component: "server",
				Operation: "stream",
				Provider:  sel.Provider,
				RequestID: requestID,
			})
			event.Error = &errorBody{Response: *resp, RequestID: requestID}
			event.Done = true
		}

		if err := writeEvent(w, event); err != nil {
			// Client gone; the runtime finishes accounting on its own.
			return
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// handleHealthz serves GET /healthz, the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// handleReadyz serves GET /readyz. The service is ready when at least one
// enabled provider is healthy; otherwise it answers 503 so load balancers
// stop routing here.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	healthy := 0
	st := s.rt.Health().Status()
	for _, p := range st.Providers {
		if p.Enabled && p.Healthy {
			healthy++
		}
	}

	status := "ready"
	code := http.StatusOK
	if healthy == 0 {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":            status,
		"healthy_providers": healthy,
		"timestamp":         time.Now().Unix(),
	})
}

// handleProviderHealth serves GET /v1/health/providers with the last-known
// probe outcome per provider.
func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.rt.Health().Status())
}

// handleStatus serves GET /v1/status with the aggregate runtime view.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.rt.Status())
}
