package escrow

import (
	"log/slog"
	"time"

	"github.com/xraph/escrow/plugin"
)

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithStalenessWindow sets the maximum accepted age of an oracle reading.
func WithStalenessWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stalenessWindow = d
		}
	}
}

// WithTokenDecimals sets the number of decimals of the ledger token, used to
// scale swap output.
func WithTokenDecimals(decimals int32) Option {
	return func(e *Engine) {
		if decimals >= 0 {
			e.tokenDecimals = decimals
		}
	}
}

// WithThirdPartySettlement lets service-role callers settle matured locks on
// behalf of their owners. Off by default: only owners settle.
func WithThirdPartySettlement(enabled bool) Option {
	return func(e *Engine) {
		e.thirdPartySettlement = enabled
	}
}

// WithSwap enables the swap path.
func WithSwap(cfg SwapConfig) Option {
	return func(e *Engine) {
		e.swap = &cfg
	}
}

// WithGenesis sets the state committed when the journal is empty.
func WithGenesis(g Genesis) Option {
	return func(e *Engine) {
		e.genesis = &g
	}
}

// WithAutoMigrate controls whether Start migrates the store. On by default.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) {
		e.autoMigrate = enabled
	}
}
