// Package providerfactory builds provider adapters from configuration and
// registers them with the provider registry. It is the only place that
// knows which adapter implementation backs which config type, so the
// registry, balancer, and runtime stay implementation-agnostic.
package providerfactory

import (
	"fmt"
	"log/slog"

	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/providers/mockprovider"
	"nimbus-hq/helios/pkg/providers/openaicompat"
)

// Adapter type names accepted in configuration.
const (
	TypeOpenAICompatible = "openai-compatible"
	TypeMock             = "mock"
)

// New builds an adapter for the config. An empty type defaults to
// openai-compatible, which covers OpenAI itself and the common
// self-hosted backends (Ollama, vLLM, LocalAI).
//
// Example:
//
//	adapter, err := providerfactory.New(providers.AdapterConfig{
//	    Name:    "openai",
//	    Type:    "openai-compatible",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer adapter.Close()
func New(cfg providers.AdapterConfig) (providers.Adapter, error) {
	adapterType := cfg.Type
	if adapterType == "" {
		adapterType = TypeOpenAICompatible
	}

	slog.Debug("creating provider adapter",
		"name", cfg.Name,
		"type", adapterType,
		"base_url", cfg.BaseURL,
	)

	var adapter providers.Adapter
	var err error

	switch adapterType {
	case TypeOpenAICompatible:
		adapter, err = openaicompat.New(cfg)

	case TypeMock:
		adapter, err = mockprovider.New(cfg)

	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type %q (supported: %s, %s)", adapterType, TypeOpenAICompatible, TypeMock),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", cfg.Name, err)
	}

	return adapter, nil
}
