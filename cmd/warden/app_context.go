package main

import (
	"context"
	"fmt"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/host"
	"github.com/wardenbot/warden/internal/logger"
	"github.com/wardenbot/warden/internal/plugin"
)

// AppContext bundles the long-lived services created per invocation. The
// lifecycle controller persists the registry snapshot after every mutating
// operation, so loaded state carries over between invocations through
// Bootstrap.
type AppContext struct {
	Config     *config.Config
	Log        *logger.Logger
	Registry   *plugin.Registry
	Tables     *host.Tables
	Controller *plugin.Controller
}

// newAppContext wires the runtime services. honorAutoLoad applies the
// configured auto_load_new behavior; admin commands that target a single
// plugin pass false so their bootstrap only restores what was loaded before.
func newAppContext(flags *rootFlags, honorAutoLoad bool) (*AppContext, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if flags.verbose {
		level = "debug"
	}

	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := plugin.NewRegistry(cfg.RegistryPath, log)
	scanner := plugin.NewScanner(cfg.PluginsDir, registry, log)
	tables := host.NewTables(nil, log)

	var opts []plugin.ControllerOption
	if honorAutoLoad {
		opts = append(opts, plugin.WithAutoLoadNew(cfg.AutoLoadNew))
	}
	controller := plugin.NewController(registry, scanner, tables, log, opts...)

	return &AppContext{
		Config:     cfg,
		Log:        log,
		Registry:   registry,
		Tables:     tables,
		Controller: controller,
	}, nil
}

// operationContext bounds one lifecycle operation with the configured
// discovery timeout.
func (app *AppContext) operationContext() (context.Context, context.CancelFunc) {
	if app.Config.DiscoveryTimeout > 0 {
		return context.WithTimeout(context.Background(), app.Config.DiscoveryTimeout)
	}
	return context.WithCancel(context.Background())
}

// bootstrap restores the snapshot and discovers plugins so the command
// operates on current state.
func (app *AppContext) bootstrap() (*plugin.BatchResult, error) {
	ctx, cancel := app.operationContext()
	defer cancel()
	return app.Controller.Bootstrap(ctx)
}
