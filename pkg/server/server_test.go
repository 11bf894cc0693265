package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nimbus-hq/helios/internal/providertest"
	"nimbus-hq/helios/pkg/balancer"
	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/health"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/registry"
	"nimbus-hq/helios/pkg/runtime"
	"nimbus-hq/helios/pkg/schedule"
)

func testConfig() *config.Config {
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"alpha": {Type: "mock", Priority: 10},
			"beta":  {Type: "mock", Priority: 5},
		},
		Journal: config.JournalConfig{Backend: "memory"},
		Usage:   config.UsageConfig{Backend: "memory"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *runtime.Runtime) {
	t.Helper()
	rt, err := runtime.New(cfg, runtime.Options{Clock: schedule.NewFakeClock()})
	if err != nil {
		t.Fatalf("runtime.New() error = %v", err)
	}
	t.Cleanup(func() { rt.Stop() })
	return New(rt, cfg.Server), rt
}

func registerAdapter(t *testing.T, rt *runtime.Runtime, adapter *providertest.Adapter, priority int, caps providers.Capabilities) {
	t.Helper()
	err := rt.Registry().Register(registry.Descriptor{
		Name:         adapter.Name(),
		Capabilities: caps,
		Priority:     priority,
		Enabled:      true,
	}, adapter)
	if err != nil {
		t.Fatalf("Register(%s) error = %v", adapter.Name(), err)
	}
}

func fullCaps() providers.Capabilities {
	return providers.Capabilities{SupportsToolCalls: true, SupportsStreaming: true}
}

func postGenerate(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding error envelope: %v (body %q)", err, rec.Body.String())
	}
	return env.Error
}

const simpleRequest = `{"messages":[{"role":"user","content":"hello"}]}`

func TestGenerate(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := postGenerate(srv.Handler(), simpleRequest)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	var resp providers.GenerationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Provider != "alpha" {
		t.Errorf("provider = %q, want the higher-priority alpha", resp.Provider)
	}
	if resp.Content == "" {
		t.Error("response content is empty")
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response is missing the request id header")
	}
}

func TestGenerateFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = nil
	srv, rt := newTestServer(t, cfg)

	primary := providertest.NewAdapter("primary")
	primary.SetGenerateError(errors.New("upstream exploded"))
	registerAdapter(t, rt, primary, 10, fullCaps())
	registerAdapter(t, rt, providertest.NewAdapter("backup"), 5, fullCaps())

	rec := postGenerate(srv.Handler(), simpleRequest)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	var resp providers.GenerationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Provider != "backup" {
		t.Errorf("provider = %q, want backup after fallback", resp.Provider)
	}
}

func TestGenerateValidation(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"messages": [`},
		{name: "no messages", body: `{"messages":[]}`},
		{name: "missing role", body: `{"messages":[{"content":"hi"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postGenerate(srv.Handler(), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %q)", rec.Code, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %q, want VALIDATION_ERROR", body.Code)
			}
		})
	}
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := get(srv.Handler(), "/v1/generate")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("Allow = %q, want POST", got)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T) *Server
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name: "empty pool",
			setup: func(t *testing.T) *Server {
				cfg := testConfig()
				cfg.Providers = nil
				srv, _ := newTestServer(t, cfg)
				return srv
			},
			body:       simpleRequest,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   balancer.CodeNoProviders,
		},
		{
			name: "all providers fail",
			setup: func(t *testing.T) *Server {
				cfg := testConfig()
				cfg.Providers = nil
				srv, rt := newTestServer(t, cfg)
				broken := providertest.NewAdapter("broken")
				broken.SetGenerateError(errors.New("upstream exploded"))
				registerAdapter(t, rt, broken, 10, fullCaps())
				return srv
			},
			body:       simpleRequest,
			wantStatus: http.StatusBadGateway,
			wantCode:   "ALL_PROVIDERS_FAILED",
		},
		{
			name: "no capable provider",
			setup: func(t *testing.T) *Server {
				cfg := testConfig()
				cfg.Providers = nil
				srv, rt := newTestServer(t, cfg)
				plain := providertest.NewAdapter("plain")
				registerAdapter(t, rt, plain, 10, providers.Capabilities{SupportsStreaming: true})
				return srv
			},
			body:       `{"messages":[{"role":"user","content":"hi"}],"tools":[{"type":"function","function":{"name":"lookup"}}]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "NO_CAPABLE_PROVIDER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tt.setup(t)
			rec := postGenerate(srv.Handler(), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Message == "" || body.Suggestion == "" {
				t.Errorf("error body missing guidance: %+v", body)
			}
		})
	}
}

func TestGenerateStream(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = nil
	srv, rt := newTestServer(t, cfg)
	registerAdapter(t, rt, providertest.NewAdapter("streamer"), 10, fullCaps())

	rec := postGenerate(srv.Handler(), `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := rec.Header().Get(ProviderHeader); got != "streamer" {
		t.Errorf("provider header = %q, want streamer", got)
	}

	var payloads []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			payloads = append(payloads, data)
		}
	}
	if len(payloads) == 0 {
		t.Fatalf("no events in body %q", rec.Body.String())
	}
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Fatalf("last event = %q, want [DONE]", payloads[len(payloads)-1])
	}

	var content string
	var sawDone bool
	for _, data := range payloads[:len(payloads)-1] {
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			t.Fatalf("decoding event %q: %v", data, err)
		}
		if event.Error != nil {
			t.Fatalf("unexpected error event: %+v", event.Error)
		}
		content += event.Content
		sawDone = sawDone || event.Done
	}
	if content != "mock response from streamer" {
		t.Errorf("streamed content = %q", content)
	}
	if !sawDone {
		t.Error("no event carried the done flag")
	}
}

func TestGenerateStreamStartFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = nil
	srv, rt := newTestServer(t, cfg)

	broken := providertest.NewAdapter("broken")
	broken.SetStreamError(errors.New("stream refused"))
	registerAdapter(t, rt, broken, 10, fullCaps())

	rec := postGenerate(srv.Handler(), `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body %q)", rec.Code, rec.Body.String())
	}
	if body := decodeError(t, rec); body.Code != "PROVIDER_FAILURE" {
		t.Errorf("code = %q, want PROVIDER_FAILURE", body.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := get(srv.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	t.Run("ready with providers", func(t *testing.T) {
		srv, _ := newTestServer(t, testConfig())
		rec := get(srv.Handler(), "/readyz")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
		}
	})

	t.Run("not ready with empty pool", func(t *testing.T) {
		cfg := testConfig()
		cfg.Providers = nil
		srv, _ := newTestServer(t, cfg)
		rec := get(srv.Handler(), "/readyz")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503 (body %q)", rec.Code, rec.Body.String())
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["status"] != "not_ready" {
			t.Errorf("status field = %v, want not_ready", body["status"])
		}
	})
}

func TestProviderHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := get(srv.Handler(), "/v1/health/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st health.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := st.Providers["alpha"]; !ok {
		t.Errorf("providers = %v, want alpha present", st.Providers)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := get(srv.Handler(), "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	providerList, ok := body["providers"].([]any)
	if !ok || len(providerList) != 2 {
		t.Errorf("providers = %v, want 2 entries", body["providers"])
	}
	if _, ok := body["balancer"]; !ok {
		t.Error("status body missing balancer section")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()

	// One successful request so the labeled collectors have a sample.
	if rec := postGenerate(h, simpleRequest); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, want 200", rec.Code)
	}

	rec := get(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "helios_") {
		t.Errorf("metrics body missing helios_ families: %.200s", rec.Body.String())
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-7")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "client-7" {
		t.Errorf("request id = %q, want the client-supplied client-7", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, rt := newTestServer(t, testConfig())

	h := srv.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/generate", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeError(t, rec); body.Message == "" {
		t.Error("panic response missing a message")
	}
	if rt.FaultLog().Len() == 0 {
		t.Error("panic should be recorded in the fault log")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "no providers", err: balancer.ErrNoProviders, want: http.StatusServiceUnavailable},
		{name: "no healthy provider", err: balancer.ErrNoHealthyProvider, want: http.StatusServiceUnavailable},
		{name: "no capable provider", err: &balancer.NoCapableProviderError{Model: "m"}, want: http.StatusBadRequest},
		{name: "all failed", err: &balancer.AggregateError{Attempts: 2, LastErr: errors.New("x")}, want: http.StatusBadGateway},
		{name: "validation", err: faults.Newf(faults.ValidationKind, "bad"), want: http.StatusBadRequest},
		{name: "not found", err: faults.Newf(faults.NotFoundKind, "missing"), want: http.StatusNotFound},
		{name: "conflict", err: faults.Newf(faults.ConflictKind, "duplicate"), want: http.StatusConflict},
		{name: "provider failure", err: faults.Newf(faults.ProviderFailureKind, "down"), want: http.StatusBadGateway},
		{name: "unclassified", err: errors.New("mystery"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestServerStartShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	srv, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !srv.Running() {
		t.Fatal("server did not start")
	}

	// The listener is bound, so a real connection works.
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz over the wire = %d, want 200", resp.StatusCode)
	}

	// A second Start refuses while running.
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after cancel, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after context cancel")
	}
	if srv.Running() {
		t.Error("server still reports running after shutdown")
	}
}

func TestShutdownUnblocksStart(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	srv, _ := newTestServer(t, cfg)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !srv.Running() {
		t.Fatal("server did not start")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after Shutdown, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after external Shutdown")
	}
}
