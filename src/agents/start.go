package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/agents/search"
	"github.com/stake-plus/osintops/src/agents/socialpresence"
	"github.com/stake-plus/osintops/src/agents/tools"
	sharedconfig "github.com/stake-plus/osintops/src/config"
	"github.com/stake-plus/osintops/src/logging"
	"github.com/stake-plus/osintops/src/webclient"
)

// StartAll wires up enabled adapters and starts the registry. Adapters whose
// binary or API key is missing stay registered and show as unavailable.
func StartAll(ctx context.Context, cfg sharedconfig.AgentsConfig, logger *zap.Logger) (*Registry, error) {
	logger = logging.OrNop(logger).Named("agents")
	deps := core.RuntimeDeps{
		HTTP:   webclient.NewDefault(cfg.HTTPTimeout),
		Logger: logger,
	}

	disabled := map[string]bool{}
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}
	registry := core.NewRegistry()
	add := func(adapter core.Adapter, capability core.Capability) error {
		if disabled[adapter.Name()] {
			logger.Info("adapter disabled via configuration", zap.String("adapter", adapter.Name()))
			return nil
		}
		if err := registry.Add(adapter, capability); err != nil {
			return fmt.Errorf("agents: %s: %w", adapter.Name(), err)
		}
		return nil
	}

	commands, err := tools.Load(cfg.Tools, logger)
	if err != nil {
		return nil, err
	}
	for _, adapter := range commands {
		capability, err := adapter.Capability()
		if err != nil {
			return nil, err
		}
		if err := add(adapter, capability); err != nil {
			return nil, err
		}
	}

	if cfg.Search.Enabled {
		adapter := search.New(search.Config{
			APIKey:     cfg.Search.APIKey,
			Endpoint:   cfg.Search.Endpoint,
			MaxResults: cfg.Search.MaxResults,
			Trust:      cfg.Search.Trust,
			Timeout:    cfg.HTTPTimeout,
		}, deps)
		if err := add(adapter, adapter.Capability()); err != nil {
			return nil, err
		}
	} else {
		logger.Info("search adapter disabled")
	}

	social := socialpresence.NewAgent(socialpresence.Config{Timeout: cfg.HTTPTimeout}, deps)
	if err := add(social, social.Capability()); err != nil {
		return nil, err
	}

	if err := registry.Start(ctx); err != nil {
		return nil, err
	}
	for _, d := range registry.Describe() {
		logger.Info("adapter registered",
			zap.String("adapter", d.Name),
			zap.String("category", string(d.Category)),
			zap.Bool("available", d.Available),
			zap.String("reason", d.Reason))
	}
	return registry, nil
}
