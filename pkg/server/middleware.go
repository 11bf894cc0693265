package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/runtime"
)

// RequestIDHeader carries the request id on requests and responses. A
// client-supplied id is kept so callers can correlate across systems.
const RequestIDHeader = "X-Request-ID"

// withRequestID stamps every request with an id, making it available to
// handlers through the context and to clients through the response header.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := runtime.ContextWithRequestID(r.Context(), id)
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.status = code
		sw.written = true
		sw.ResponseWriter.WriteHeader(code)
	}
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streaming responses keep
// working through the wrapper.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs one line per completed request, at a level derived from
// the response status.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logFn := s.logger.Info
		switch {
		case sw.status >= 500:
			logFn = s.logger.Error
		case sw.status >= 400:
			logFn = s.logger.Warn
		}

		logFn("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", runtime.RequestIDFromContext(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// withRecovery turns handler panics into structured 500 responses. The
// panic flows through the fault handler, so it shows up in fault metrics
// and the fault log like any other failure.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := runtime.RequestIDFromContext(r.Context())
				s.logger.Error("panic in handler",
					"error", rec,
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				resp := s.rt.Faults().Handle(fmt.Errorf("handler panic: %v", rec), faults.Context{
					Component: "server",
					Operation: "serve",
					RequestID: requestID,
				})
				writeError(w, http.StatusInternalServerError, resp, requestID)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
