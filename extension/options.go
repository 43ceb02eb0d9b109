package extension

import (
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/store"
)

// Option configures the Escrow Forge extension.
type Option func(*Extension)

// WithStore sets the journal store for the escrow engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an escrow.Option through to the underlying engine.
func WithEngineOption(opt escrow.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an escrow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, escrow.WithPlugin(p))
	}
}

// WithSwap wires the swap collaborators.
func WithSwap(cfg escrow.SwapConfig) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, escrow.WithSwap(cfg))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithGenesis sets the genesis used when the journal is empty.
func WithGenesis(g escrow.Genesis) Option {
	return func(e *Extension) { e.config.Genesis = &g }
}

// WithDisableAPI skips building the query API handler.
func WithDisableAPI() Option {
	return func(e *Extension) { e.config.DisableAPI = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableSweeper turns the maturity sweep off.
func WithDisableSweeper() Option {
	return func(e *Extension) { e.config.DisableSweeper = true }
}

// WithBasePath sets the URL prefix for escrow routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithStalenessWindow sets the maximum oracle price age.
func WithStalenessWindow(d time.Duration) Option {
	return func(e *Extension) { e.config.StalenessWindow = d }
}

// WithTokenDecimals sets the ledger token decimals.
func WithTokenDecimals(decimals int32) Option {
	return func(e *Extension) { e.config.TokenDecimals = decimals }
}

// WithThirdPartySettlement lets service-role callers settle matured locks.
func WithThirdPartySettlement() Option {
	return func(e *Extension) { e.config.ThirdPartySettlement = true }
}

// WithSweepSchedule sets the cron expression of the maturity sweep.
func WithSweepSchedule(schedule string) Option {
	return func(e *Extension) { e.config.SweepSchedule = schedule }
}
