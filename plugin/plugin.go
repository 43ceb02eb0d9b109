// Package plugin provides an extensible plugin system for the escrow engine.
// Plugins hook into lifecycle events by implementing any of the typed hook
// interfaces below; the registry discovers them once at registration.
package plugin

import (
	"context"

	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts, after the journal is replayed.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnEvent receives every committed event, whatever its kind.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, evt *event.Event) error
}

// OnOperationFailed is called when a mutating operation is rejected.
type OnOperationFailed interface {
	Plugin
	OnOperationFailed(ctx context.Context, operation string, caller types.Address, err error) error
}

// ──────────────────────────────────────────────────
// Spending hooks
// ──────────────────────────────────────────────────

// OnSpend is called when a service debits a user's spending allowance.
type OnSpend interface {
	Plugin
	OnSpend(ctx context.Context, evt *event.Event) error
}

// OnAllowanceSet is called once per allowance an operator sets.
type OnAllowanceSet interface {
	Plugin
	OnAllowanceSet(ctx context.Context, evt *event.Event) error
}

// OnSupplyChanged is called when tokens are minted or burned.
type OnSupplyChanged interface {
	Plugin
	OnSupplyChanged(ctx context.Context, evt *event.Event) error
}

// ──────────────────────────────────────────────────
// Lock hooks
// ──────────────────────────────────────────────────

// OnLockOpened is called when funds move into escrow.
type OnLockOpened interface {
	Plugin
	OnLockOpened(ctx context.Context, evt *event.Event) error
}

// OnLockSettled is called when a lock is settled after maturity.
type OnLockSettled interface {
	Plugin
	OnLockSettled(ctx context.Context, evt *event.Event) error
}

// OnLockEmergencyClosed is called when an owner exits a lock early.
type OnLockEmergencyClosed interface {
	Plugin
	OnLockEmergencyClosed(ctx context.Context, evt *event.Event) error
}

// OnLockMatured is called once per lock that passed its unlock time while
// still active.
type OnLockMatured interface {
	Plugin
	OnLockMatured(ctx context.Context, evt *event.Event) error
}

// ──────────────────────────────────────────────────
// Swap hooks
// ──────────────────────────────────────────────────

// OnSwapExecuted is called after a swap delivers ledger tokens.
type OnSwapExecuted interface {
	Plugin
	OnSwapExecuted(ctx context.Context, evt *event.Event) error
}

// OnFeesCollected is called after accrued swap fees reach the treasury.
type OnFeesCollected interface {
	Plugin
	OnFeesCollected(ctx context.Context, evt *event.Event) error
}

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnConfigChanged is called once per config field that changed.
type OnConfigChanged interface {
	Plugin
	OnConfigChanged(ctx context.Context, evt *event.Event) error
}

// OnPauseChanged is called for global pause, unpause and per-operation
// pause changes.
type OnPauseChanged interface {
	Plugin
	OnPauseChanged(ctx context.Context, evt *event.Event) error
}

// OnRoleChanged is called when a role is granted or revoked.
type OnRoleChanged interface {
	Plugin
	OnRoleChanged(ctx context.Context, evt *event.Event) error
}

// OnTreasuryChanged is called when the treasury account is replaced.
type OnTreasuryChanged interface {
	Plugin
	OnTreasuryChanged(ctx context.Context, evt *event.Event) error
}

// OnUpgradeAuthorized is called when an upgrader records a new version.
type OnUpgradeAuthorized interface {
	Plugin
	OnUpgradeAuthorized(ctx context.Context, evt *event.Event) error
}
