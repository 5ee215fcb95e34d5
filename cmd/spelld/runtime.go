package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/metakeyai/spelld/pkg/config"
	"github.com/metakeyai/spelld/pkg/llm"
	"github.com/metakeyai/spelld/pkg/spell"
)

// runtime bundles the components every command needs.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	client   *llm.Switcher
	loader   *spell.Loader
	registry *spell.Registry
}

// buildRuntime loads configuration and wires engine, loader, registry, and
// the LLM capability. Discovery failures are logged, not fatal: a broken
// spells directory must not keep the daemon down.
func buildRuntime(cfgDir string, logger *zap.Logger) (*runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfgLoader, err := config.NewLoader(cfgDir)
	if err != nil {
		return nil, err
	}
	cfg, err := cfgLoader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := llm.NewSwitcher(llm.FromEnv())
	engine := spell.NewGoEngine(spell.Capabilities{
		Complete: func(prompt string) (string, error) {
			return client.Complete(context.Background(), prompt)
		},
	})
	mode, err := spell.ParseFailureMode(cfg.FailureMode)
	if err != nil {
		return nil, err
	}
	loader := spell.NewLoader(engine, spell.WithFailureMode(mode))
	registry := spell.NewRegistry(loader, cfg.SpellsDir, logger)
	if err := registry.Discover(); err != nil {
		logger.Warn("spell discovery failed", zap.Error(err))
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		loader:   loader,
		registry: registry,
	}, nil
}
