// Package extension provides the Forge extension adapter for Escrow.
//
// It implements the forge.Extension interface to integrate the escrow
// engine into a Forge application with DI registration, a scheduled
// maturity sweep and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.escrow" or "escrow" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/api"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/sweeper"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "escrow"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token ledger with spending allowances, resource escrow and swaps"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Escrow as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *escrow.Engine
	store      store.Store
	sweeper    *sweeper.Sweeper
	handler    http.Handler
	engineOpts []escrow.Option
}

// New creates a new Escrow Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying escrow engine.
// This is nil until Register is called.
func (e *Extension) Engine() *escrow.Engine { return e.engine }

// Handler returns the query API with the configured base path stripped, or
// nil when the API is disabled. The embedder mounts it at BasePath.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the escrow engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng := escrow.New(e.store, e.buildEngineOpts()...)
	e.engine = eng

	if !e.config.DisableSweeper {
		sw, err := sweeper.New(eng, e.config.SweepSchedule)
		if err != nil {
			return err
		}
		e.sweeper = sw
	}

	if !e.config.DisableAPI {
		e.handler = newHandler(e.config.BasePath, eng)
		if err := vessel.Provide(fapp.Container(), func() (*api.Server, error) {
			return api.New(e.engine), nil
		}); err != nil {
			return err
		}
	}

	return vessel.Provide(fapp.Container(), func() (*escrow.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("escrow: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}
	if e.sweeper != nil {
		if err := e.sweeper.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("escrow: store not initialized")
	}
	return e.store.Ping(ctx)
}

// newHandler serves the query API under basePath.
func newHandler(basePath string, eng *escrow.Engine) http.Handler {
	return http.StripPrefix(strings.TrimRight(basePath, "/"), api.New(eng))
}

// buildEngineOpts constructs escrow.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []escrow.Option {
	opts := make([]escrow.Option, 0, len(e.engineOpts)+6)

	// Apply config-derived options.
	opts = append(opts,
		escrow.WithAutoMigrate(!e.config.DisableMigrate),
		escrow.WithStalenessWindow(e.config.StalenessWindow),
		escrow.WithTokenDecimals(e.config.TokenDecimals),
		escrow.WithPluginTimeout(e.config.PluginTimeout),
	)
	if e.config.ThirdPartySettlement {
		opts = append(opts, escrow.WithThirdPartySettlement(true))
	}
	if e.config.Genesis != nil {
		opts = append(opts, escrow.WithGenesis(*e.config.Genesis))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("escrow: configuration is required but not found in config files; " +
				"ensure 'extensions.escrow' or 'escrow' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("escrow: configuration loaded",
		forge.F("disable_api", e.config.DisableAPI),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("staleness_window", e.config.StalenessWindow),
		forge.F("token_decimals", e.config.TokenDecimals),
		forge.F("third_party_settlement", e.config.ThirdPartySettlement),
		forge.F("sweep_schedule", e.config.SweepSchedule),
		forge.F("disable_sweeper", e.config.DisableSweeper),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files. The
// namespaced "extensions.escrow" key wins over the legacy "escrow" key.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	bind := func(key string, target any) error { return cm.Bind(key, target) }

	for _, key := range []string{"extensions.escrow", "escrow"} {
		if !cm.IsSet(key) {
			continue
		}
		cfg, err := bindSection(bind, key)
		if err != nil {
			e.Logger().Warn("escrow: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("escrow: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// bindSection decodes the config section at key.
func bindSection(bind func(key string, target any) error, key string) (Config, error) {
	var cfg Config
	if err := bind(key, &cfg); err != nil {
		return Config{}, fmt.Errorf("escrow: bind %s config: %w", key, err)
	}
	return cfg, nil
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.StalenessWindow == 0 {
		cfg.StalenessWindow = defaults.StalenessWindow
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = defaults.SweepSchedule
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableAPI {
		yamlConfig.DisableAPI = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSweeper {
		yamlConfig.DisableSweeper = true
	}
	if programmaticConfig.ThirdPartySettlement {
		yamlConfig.ThirdPartySettlement = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.SweepSchedule == "" && programmaticConfig.SweepSchedule != "" {
		yamlConfig.SweepSchedule = programmaticConfig.SweepSchedule
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.StalenessWindow == 0 && programmaticConfig.StalenessWindow != 0 {
		yamlConfig.StalenessWindow = programmaticConfig.StalenessWindow
	}
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.TokenDecimals == 0 && programmaticConfig.TokenDecimals != 0 {
		yamlConfig.TokenDecimals = programmaticConfig.TokenDecimals
	}
	if yamlConfig.Genesis == nil {
		yamlConfig.Genesis = programmaticConfig.Genesis
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
