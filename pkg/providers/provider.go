package providers

import "context"

// Adapter is the interface every provider backend implements. Adapters
// translate the canonical request shape into a vendor wire format, perform
// the call, and translate the result back.
//
// Implementations must be safe for concurrent use: the balancer may run
// calls against the same adapter from multiple goroutines, and the health
// monitor probes concurrently with request traffic.
//
// Any failure is returned as an error for the faults package to classify.
// Adapters should construct the typed errors from this package so failures
// carry kind and category tags; untyped errors fall back to text heuristics.
type Adapter interface {
	// GenerateText performs a plain text-generation call.
	GenerateText(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

	// GenerateWithTools performs a generation call that may return tool
	// calls. The request's Tools list is forwarded to the provider.
	GenerateWithTools(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

	// StreamGeneration starts a streaming generation. The returned channel
	// delivers a finite sequence of chunks and is closed after the final
	// chunk or the first delivery error; the stream is not restartable.
	StreamGeneration(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error)

	// HealthCheck probes the provider with a lightweight request. A nil
	// return means the provider is reachable and serving.
	HealthCheck(ctx context.Context) error

	// Name returns the unique provider name the adapter was built for.
	Name() string

	// Capabilities returns the feature set the provider declares.
	Capabilities() Capabilities

	// Close releases underlying resources (idle connections, workers).
	Close() error
}
