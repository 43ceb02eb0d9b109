package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// UpdateConfig replaces the tunable parameters. The caller must hold the
// operator role. One config_changed event is recorded per field that
// actually changed.
func (e *Engine) UpdateConfig(ctx context.Context, caller types.Address, cfg config.Config) error {
	return e.run(ctx, string(pause.OpUpdateConfig), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpUpdateConfig); err != nil {
			return err
		}
		if err := oc.require(access.RoleOperator); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return invalid("config", err)
		}

		changes := config.Diff(oc.tx.Config(), cfg)
		if len(changes) == 0 {
			return nil
		}
		oc.tx.SetConfig(cfg)
		for _, c := range changes {
			evt := oc.newEvent(event.KindConfigChanged)
			evt.Field = c.Field
			evt.Old = c.Old
			evt.New = c.New
			oc.emit(evt)
		}
		return nil
	})
}

// GrantRole adds account to role. The caller must be an admin. Granting a
// role the account already holds is a no-op.
func (e *Engine) GrantRole(ctx context.Context, caller types.Address, role access.Role, account types.Address) error {
	return e.run(ctx, opGrantRole, caller, func(oc *opContext) error {
		if err := oc.require(access.RoleAdmin); err != nil {
			return err
		}
		if !role.Valid() {
			return invalid("role", fmt.Errorf("%w: %q", ErrInvalidRole, role))
		}
		if err := checkAccount("account", account); err != nil {
			return err
		}
		if oc.tx.HasRole(role, account) {
			return nil
		}
		oc.tx.SetRole(role, account, true)

		evt := oc.newEvent(event.KindRoleGranted)
		evt.Account = account
		evt.Role = string(role)
		oc.emit(evt)
		return nil
	})
}

// RevokeRole removes account from role. The last admin cannot be revoked.
func (e *Engine) RevokeRole(ctx context.Context, caller types.Address, role access.Role, account types.Address) error {
	return e.run(ctx, opRevokeRole, caller, func(oc *opContext) error {
		if err := oc.require(access.RoleAdmin); err != nil {
			return err
		}
		if !role.Valid() {
			return invalid("role", fmt.Errorf("%w: %q", ErrInvalidRole, role))
		}
		if !oc.tx.HasRole(role, account) {
			return nil
		}
		if role == access.RoleAdmin && oc.tx.RoleCount(access.RoleAdmin) <= 1 {
			return ErrLastAdmin
		}
		oc.tx.SetRole(role, account, false)

		evt := oc.newEvent(event.KindRoleRevoked)
		evt.Account = account
		evt.Role = string(role)
		oc.emit(evt)
		return nil
	})
}

// Pause halts every pausable operation. Emergency close stays available.
func (e *Engine) Pause(ctx context.Context, caller types.Address) error {
	return e.setPaused(ctx, opPause, caller, true)
}

// Unpause lifts the global pause. Per-operation pauses are unaffected.
func (e *Engine) Unpause(ctx context.Context, caller types.Address) error {
	return e.setPaused(ctx, opUnpause, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, op string, caller types.Address, paused bool) error {
	return e.run(ctx, op, caller, func(oc *opContext) error {
		if err := oc.require(access.RolePauser); err != nil {
			return err
		}
		if oc.tx.Paused() == paused {
			return nil
		}
		oc.tx.SetPaused(paused)

		kind := event.KindUnpaused
		if paused {
			kind = event.KindPaused
		}
		evt := oc.newEvent(kind)
		evt.Paused = paused
		oc.emit(evt)
		return nil
	})
}

// SetFunctionPaused pauses or resumes a single operation independently of
// the global flag.
func (e *Engine) SetFunctionPaused(ctx context.Context, caller types.Address, op pause.Operation, paused bool) error {
	return e.run(ctx, opSetFunctionPause, caller, func(oc *opContext) error {
		if err := oc.require(access.RolePauser); err != nil {
			return err
		}
		if !op.Valid() {
			return invalid("operation", fmt.Errorf("%w: %q", ErrInvalidOp, op))
		}
		if oc.tx.OperationPaused(op) == paused {
			return nil
		}
		oc.tx.SetOperationPaused(op, paused)

		evt := oc.newEvent(event.KindFunctionPauseChanged)
		evt.Operation = string(op)
		evt.Paused = paused
		oc.emit(evt)
		return nil
	})
}

// SetTreasury changes the account that receives emergency fees and swap
// fees. The caller must be an admin.
func (e *Engine) SetTreasury(ctx context.Context, caller, treasury types.Address) error {
	return e.run(ctx, string(pause.OpSetTreasury), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpSetTreasury); err != nil {
			return err
		}
		if err := oc.require(access.RoleAdmin); err != nil {
			return err
		}
		if err := checkAccount("treasury", treasury); err != nil {
			return err
		}
		old := oc.tx.Treasury()
		if old == treasury {
			return nil
		}
		oc.tx.SetTreasury(treasury)

		evt := oc.newEvent(event.KindTreasuryChanged)
		evt.Account = treasury
		evt.Old = string(old)
		evt.New = string(treasury)
		oc.emit(evt)
		return nil
	})
}

// Mint creates new tokens in to's balance. The caller must be an admin.
// Minting into the swap reserve is how the reserve is funded.
func (e *Engine) Mint(ctx context.Context, caller, to types.Address, amount types.Amount) error {
	return e.run(ctx, string(pause.OpMint), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpMint); err != nil {
			return err
		}
		if err := oc.require(access.RoleAdmin); err != nil {
			return err
		}
		if err := checkMintTarget("to", to); err != nil {
			return err
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}
		if err := oc.tx.Mint(to, amount); err != nil {
			return err
		}

		evt := oc.newEvent(event.KindMinted)
		evt.Account = to
		evt.Amount = amount
		oc.emit(evt)
		return nil
	})
}

// AuthorizeUpgrade records approval of a new engine version. The caller
// must hold the upgrader role. Upgrades may be authorized while paused.
func (e *Engine) AuthorizeUpgrade(ctx context.Context, caller types.Address, version string) error {
	return e.run(ctx, opAuthorizeUpgrade, caller, func(oc *opContext) error {
		if err := oc.require(access.RoleUpgrader); err != nil {
			return err
		}
		version = strings.TrimSpace(version)
		if version == "" {
			return &ValidationError{Field: "version", Message: "must not be empty"}
		}
		old := oc.tx.Version()
		oc.tx.SetVersion(version)

		evt := oc.newEvent(event.KindUpgradeAuthorized)
		evt.Version = version
		evt.Old = old
		evt.New = version
		oc.emit(evt)
		return nil
	})
}
