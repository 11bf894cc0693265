// Package server exposes the helios runtime over HTTP.
//
// The server is a thin shell around runtime.Runtime: every request is
// decoded, handed to the balancer through the runtime, and the result
// written back as JSON or as a server-sent event stream. The server does
// not own the runtime's lifecycle; callers start and stop the runtime
// themselves.
//
// # Basic Usage
//
// Creating and starting a server:
//
//	import (
//	    "context"
//	    "nimbus-hq/helios/pkg/config"
//	    "nimbus-hq/helios/pkg/runtime"
//	    "nimbus-hq/helios/pkg/server"
//	)
//
//	cfg, err := config.LoadWithEnvOverrides(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := runtime.New(cfg, runtime.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Stop()
//	rt.Start(ctx)
//
//	srv := server.New(rt, cfg.Server)
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start binds the listener before blocking, so once it is running the
// address from Addr accepts connections. Cancelling the context or calling
// Shutdown drains in-flight requests and returns.
//
// # Routes
//
//   - POST /v1/generate - text generation; stream=true switches the
//     response to server-sent events
//   - GET /healthz - liveness probe (always 200 while the process runs)
//   - GET /readyz - readiness probe (503 until a healthy provider exists)
//   - GET /v1/health/providers - per-provider probe outcomes
//   - GET /v1/status - aggregate runtime status
//   - GET /metrics - Prometheus metrics (path configurable)
//
// # Middleware Chain
//
// Requests pass through, outermost first:
//  1. Recovery: turns handler panics into structured 500 responses
//  2. Logging: one line per request with status, latency and request id
//  3. RequestID: honors a client X-Request-ID or generates one
//
// # Error Shape
//
// Every error response carries the structured fault body produced by the
// fault handler, so clients always see a stable code, a message and
// recovery suggestions:
//
//	{"error": {"code": "ALL_PROVIDERS_FAILED", "title": "...",
//	           "message": "...", "suggestion": "...",
//	           "request_id": "..."}}
package server
