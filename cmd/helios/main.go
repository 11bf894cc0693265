// Helios is a load-balancing gateway for LLM providers.
//
// It sits in front of a pool of OpenAI-compatible backends and provides:
//   - Strategy-based provider selection (priority, round-robin, least-latency,
//     weighted, cost-based)
//   - Automatic fallback across providers when one fails
//   - Continuous health probing with recovery detection
//   - Structured fault classification with actionable responses
//   - A request journal and a per-provider usage ledger
//   - Prometheus metrics and threshold alerting
//
// Usage:
//
//	# Start the gateway with the default configuration
//	helios run
//
//	# Start with a custom configuration file
//	helios run --config /etc/helios/config.yaml
//
//	# Check a configuration file without starting anything
//	helios validate --config /etc/helios/config.yaml
//
//	# Query the request journal
//	helios journal query --provider openai --outcome failure
//
//	# Show per-provider usage totals
//	helios usage
//
//	# Load test a running gateway
//	helios bench --target http://localhost:8080 --duration 30s
//
//	# Show version information
//	helios version
package main

func main() {
	Execute()
}
