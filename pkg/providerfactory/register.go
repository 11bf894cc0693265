package providerfactory

import (
	"fmt"
	"log/slog"
	"sort"

	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/providers"
	"nimbus-hq/helios/pkg/registry"
)

// FromConfig expands a named provider config into its registry descriptor
// and adapter construction config.
func FromConfig(name string, cfg config.ProviderConfig) (registry.Descriptor, providers.AdapterConfig) {
	caps := providers.Capabilities{
		SupportsToolCalls: cfg.Capabilities.ToolCalls,
		SupportsStreaming: cfg.Capabilities.Streaming,
		MaxTokens:         cfg.Capabilities.MaxTokens,
	}

	desc := registry.Descriptor{
		Name:            name,
		Capabilities:    caps,
		Priority:        cfg.Priority,
		Enabled:         cfg.IsEnabled(),
		Endpoint:        cfg.BaseURL,
		CostPer1KTokens: cfg.CostPer1KTokens,
	}

	adapterCfg := providers.AdapterConfig{
		Name:         name,
		Type:         cfg.Type,
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		Capabilities: caps,
	}

	return desc, adapterCfg
}

// RegisterAll builds an adapter for every configured provider and registers
// it. Providers are processed in name order so restarts produce the same
// insertion order, which keeps priority tie-breaking stable.
//
// A provider that fails to build or register is skipped; the remaining
// providers still register, and the returned error summarizes the failures.
// Disabled providers are registered too, so they can be enabled later
// without a restart.
func RegisterAll(reg *registry.Registry, cfgs map[string]config.ProviderConfig) error {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		desc, adapterCfg := FromConfig(name, cfgs[name])

		adapter, err := New(adapterCfg)
		if err != nil {
			slog.Error("failed to build provider adapter",
				"provider", name,
				"error", err,
			)
			failed = append(failed, name)
			continue
		}

		if err := reg.Register(desc, adapter); err != nil {
			adapter.Close()
			slog.Error("failed to register provider",
				"provider", name,
				"error", err,
			)
			failed = append(failed, name)
			continue
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to register %d of %d provider(s): %v", len(failed), len(cfgs), failed)
	}
	return nil
}
