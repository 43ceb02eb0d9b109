package extension

import (
	"time"

	"github.com/xraph/escrow"
)

// Config holds the Escrow extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.escrow" or "escrow" keys).
type Config struct {
	// DisableAPI skips building the query API. The extension does not mount
	// it; the embedder mounts Extension.Handler or resolves *api.Server from
	// the container.
	DisableAPI bool `json:"disable_api" mapstructure:"disable_api" yaml:"disable_api"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the prefix Handler expects its requests under
	// (default: "/escrow").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// StalenessWindow is the maximum age of an oracle price (default: 1h).
	StalenessWindow time.Duration `json:"staleness_window" mapstructure:"staleness_window" yaml:"staleness_window"`

	// TokenDecimals is the number of decimals of the ledger token used to
	// scale swap output (default: 0).
	TokenDecimals int32 `json:"token_decimals" mapstructure:"token_decimals" yaml:"token_decimals"`

	// ThirdPartySettlement lets service-role callers settle matured locks
	// on behalf of their owners.
	ThirdPartySettlement bool `json:"third_party_settlement" mapstructure:"third_party_settlement" yaml:"third_party_settlement"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// SweepSchedule is the cron expression of the maturity sweep
	// (default: "@every 1m").
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule" yaml:"sweep_schedule"`

	// DisableSweeper turns the maturity sweep off.
	DisableSweeper bool `json:"disable_sweeper" mapstructure:"disable_sweeper" yaml:"disable_sweeper"`

	// Genesis seeds an empty journal.
	Genesis *escrow.Genesis `json:"genesis,omitempty" mapstructure:"genesis" yaml:"genesis,omitempty"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:        "/escrow",
		StalenessWindow: time.Hour,
		PluginTimeout:   5 * time.Second,
		SweepSchedule:   "@every 1m",
	}
}
