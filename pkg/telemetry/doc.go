// Package telemetry provides observability for Helios.
//
// # Overview
//
// The telemetry package implements structured logging and Prometheus
// metrics. It provides visibility into routing behavior while keeping
// per-request overhead low.
//
// # Components
//
//   - logging: log/slog setup with secret redaction
//   - metrics: Prometheus metrics collection
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	collector := metrics.NewCollector(metrics.Config{
//	    Enabled:   true,
//	    Namespace: "helios",
//	}, nil)
//	http.Handle("/metrics", collector.Handler())
//
// # Secret Protection
//
// When redaction is enabled, credentials are scrubbed from log output:
//
//   - API keys: sk-abc123 → sk-***
//   - Bearer tokens: Bearer eyJhb... → Bearer ***
//   - Values under sensitive keys (api_key, token, password, ...)
package telemetry
