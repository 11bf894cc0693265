// Package runtime assembles the helios subsystems into a single object with
// one start/stop lifecycle. It builds the fault pipeline, the provider
// registry, the balancer, the health and alert monitors, the journal and the
// usage ledger from configuration, wires them together, and fans every
// provider attempt out to the accounting subsystems so callers only ever
// talk to the balancer-facing API.
//
// The zero dependencies between siblings live here: the balancer does not
// know about the journal, the health monitor does not know about Prometheus.
// The runtime is the one place that does.
package runtime
