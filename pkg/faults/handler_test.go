package faults

import (
	"errors"
	"sync"
	"testing"
)

type captureLog struct {
	mu     sync.Mutex
	faults []capturedFault
	panics bool
}

type capturedFault struct {
	err       error
	component string
	fields    map[string]any
}

func (c *captureLog) RecordFault(err error, component string, fields map[string]any) {
	if c.panics {
		panic("log exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, capturedFault{err: err, component: component, fields: fields})
}

func TestHandleUnknownCode(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	resp := h.Handle(errors.New("something odd happened"), Context{Component: "balancer"})

	if resp == nil {
		t.Fatal("Handle returned nil response")
	}
	if resp.Code != CodeUnknown {
		t.Errorf("Code = %q, want %q", resp.Code, CodeUnknown)
	}
	if resp.Message == "" || len(resp.RecoveryActions) == 0 {
		t.Error("fallback response should carry a message and recovery actions")
	}

	snap := h.Metrics().Snapshot()
	if snap.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", snap.TotalErrors)
	}
	if snap.ErrorsByCode[CodeUnknown] != 1 {
		t.Errorf("ErrorsByCode[%s] = %d, want 1", CodeUnknown, snap.ErrorsByCode[CodeUnknown])
	}
	if snap.ErrorsByComponent["balancer"] != 1 {
		t.Errorf("ErrorsByComponent[balancer] = %d, want 1", snap.ErrorsByComponent["balancer"])
	}
}

func TestHandleNilError(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	if resp := h.Handle(nil, Context{Component: "test"}); resp != nil {
		t.Errorf("Handle(nil) = %+v, want nil", resp)
	}
	if got := h.Metrics().Total(); got != 0 {
		t.Errorf("Total after nil error = %d, want 0", got)
	}
}

func TestHandleKindTaggedError(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	resp := h.Handle(Newf(ValidationKind, "strategy %q is not supported", "chaos"), Context{Component: "balancer"})

	if resp.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", resp.Code)
	}
	if resp.Title != "Invalid input" {
		t.Errorf("Title = %q, want %q", resp.Title, "Invalid input")
	}
}

func TestRegisteredHandler(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	custom := &Response{Code: "RATE_LIMIT", Title: "Slow down", Message: "Provider is rate limiting."}
	if err := h.Register("RATE_LIMIT", func(err error, hctx Context) *Response {
		return custom
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := TagWithCode(errors.New("429 from upstream"), ProviderFailureKind, "RATE_LIMIT")
	resp := h.Handle(err, Context{Component: "balancer"})

	if resp != custom {
		t.Errorf("Handle did not dispatch to the registered handler, got %+v", resp)
	}

	// Metrics update regardless of which handler ran.
	if got := h.Metrics().Snapshot().ErrorsByCode["RATE_LIMIT"]; got != 1 {
		t.Errorf("ErrorsByCode[RATE_LIMIT] = %d, want 1", got)
	}
}

func TestRegisterLastWins(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	first := &Response{Code: "X", Message: "first"}
	second := &Response{Code: "X", Message: "second"}

	h.Register("X", func(error, Context) *Response { return first })
	h.Register("X", func(error, Context) *Response { return second })

	resp := h.Handle(TagWithCode(errors.New("boom"), UnknownKind, "X"), Context{Component: "test"})
	if resp.Message != "second" {
		t.Errorf("Message = %q, want %q (last registration wins)", resp.Message, "second")
	}
}

func TestRegisterValidation(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	tests := []struct {
		name string
		code string
		fn   HandlerFunc
	}{
		{name: "empty code", code: "", fn: func(error, Context) *Response { return nil }},
		{name: "nil handler", code: "X", fn: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Register(tt.code, tt.fn)
			if err == nil {
				t.Fatal("Register() should have failed")
			}
			if KindOf(err) != ValidationKind {
				t.Errorf("error kind = %v, want ValidationKind", KindOf(err))
			}
		})
	}
}

func TestPanickingHandlerFallsBack(t *testing.T) {
	h := NewHandler(HandlerConfig{})
	h.Register("BOOM", func(error, Context) *Response {
		panic("handler bug")
	})

	resp := h.Handle(TagWithCode(errors.New("boom"), ProviderFailureKind, "BOOM"), Context{Component: "test"})

	if resp == nil {
		t.Fatal("Handle returned nil after handler panic")
	}
	if resp.Code != "BOOM" {
		t.Errorf("Code = %q, want BOOM (template fallback keeps the resolved code)", resp.Code)
	}
}

func TestNilHandlerResponseFallsBack(t *testing.T) {
	h := NewHandler(HandlerConfig{})
	h.Register("QUIET", func(error, Context) *Response { return nil })

	resp := h.Handle(TagWithCode(errors.New("boom"), UnknownKind, "QUIET"), Context{Component: "test"})
	if resp == nil || resp.Code != "QUIET" {
		t.Fatalf("expected template fallback for nil handler response, got %+v", resp)
	}
}

func TestTransientRetrySucceeds(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	calls := 0
	resp := h.Handle(errors.New("connection reset by peer"), Context{
		Component: "balancer",
		Retry: func() error {
			calls++
			return nil
		},
	})

	if calls != 1 {
		t.Errorf("retry called %d times, want exactly 1", calls)
	}
	if !resp.Recovered {
		t.Error("Recovered = false, want true after successful retry")
	}
}

func TestTransientRetryFails(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	calls := 0
	resp := h.Handle(errors.New("dial tcp: i/o timeout"), Context{
		Component: "balancer",
		Retry: func() error {
			calls++
			return errors.New("dial tcp: i/o timeout")
		},
	})

	if calls != 1 {
		t.Errorf("retry called %d times, want exactly 1 (no recursion)", calls)
	}
	if resp.Recovered {
		t.Error("Recovered = true, want false after failed retry")
	}

	// Both the original failure and the failed retry are recorded.
	if got := h.Metrics().Total(); got != 2 {
		t.Errorf("Total = %d, want 2", got)
	}
}

func TestStrictModeSkipsRetry(t *testing.T) {
	h := NewHandler(HandlerConfig{Strict: true})

	calls := 0
	h.Handle(errors.New("connection refused"), Context{
		Component: "balancer",
		Retry: func() error {
			calls++
			return nil
		},
	})

	if calls != 0 {
		t.Errorf("retry called %d times in strict mode, want 0", calls)
	}
}

func TestNonTransientSkipsRetry(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	calls := 0
	h.Handle(Newf(ValidationKind, "bad request shape"), Context{
		Component: "balancer",
		Retry: func() error {
			calls++
			return nil
		},
	})

	if calls != 0 {
		t.Errorf("retry called %d times for non-transient error, want 0", calls)
	}
}

func TestFaultLogReceivesRecord(t *testing.T) {
	log := &captureLog{}
	h := NewHandler(HandlerConfig{Log: log})

	h.Handle(errors.New("boom"), Context{
		Component: "health",
		Operation: "probe",
		Provider:  "alpha",
		RequestID: "req-1",
	})

	if len(log.faults) != 1 {
		t.Fatalf("fault log received %d records, want 1", len(log.faults))
	}
	rec := log.faults[0]
	if rec.component != "health" {
		t.Errorf("component = %q, want health", rec.component)
	}
	if rec.fields["operation"] != "probe" || rec.fields["provider"] != "alpha" || rec.fields["request_id"] != "req-1" {
		t.Errorf("fields = %v, missing call-site context", rec.fields)
	}
}

func TestPanickingFaultLogContained(t *testing.T) {
	h := NewHandler(HandlerConfig{Log: &captureLog{panics: true}})

	resp := h.Handle(errors.New("boom"), Context{Component: "test"})
	if resp == nil {
		t.Fatal("Handle returned nil when the fault log panicked")
	}
	if got := h.Metrics().Total(); got != 1 {
		t.Errorf("Total = %d, want 1", got)
	}
}

func TestHandleConcurrent(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Handle(errors.New("boom"), Context{Component: "load"})
			}
		}()
	}
	wg.Wait()

	if got := h.Metrics().Total(); got != 400 {
		t.Errorf("Total = %d, want 400", got)
	}
}
