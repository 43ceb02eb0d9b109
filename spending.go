package escrow

import (
	"context"
	"fmt"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// Debit burns amount from user's balance against their spending allowance,
// paying for metered usage identified by serviceTag. The caller must hold
// the service role. On any failure balance, allowance and supply are left
// untouched.
func (e *Engine) Debit(ctx context.Context, caller, user types.Address, amount types.Amount, serviceTag string) error {
	return e.run(ctx, string(pause.OpDebit), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpDebit); err != nil {
			return err
		}
		if err := oc.require(access.RoleService); err != nil {
			return err
		}
		if err := checkAccount("user", user); err != nil {
			return err
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}

		tx := oc.tx
		if ceiling := tx.Config().MaxSpendAmount; amount > ceiling {
			return fmt.Errorf("%w: %s > %s", ErrExceedsCeiling, amount, ceiling)
		}
		allowance := tx.Allowance(user)
		if amount > allowance {
			return fmt.Errorf("%w: %s > %s", ErrInsufficientAllowance, amount, allowance)
		}
		if balance := tx.Balance(user); amount > balance {
			return fmt.Errorf("%w: %s > %s", ErrInsufficientBalance, amount, balance)
		}

		if err := tx.Burn(user, amount); err != nil {
			return err
		}
		tx.SetAllowance(user, allowance-amount)

		spend := oc.newEvent(event.KindSpend)
		spend.Account = user
		spend.Amount = amount
		spend.ServiceTag = serviceTag
		oc.emit(spend)

		reduced := oc.newEvent(event.KindSupplyReduced)
		reduced.Account = user
		reduced.Amount = amount
		reduced.ServiceTag = serviceTag
		oc.emit(reduced)
		return nil
	})
}

// SetAllowance sets user's spending ceiling. The caller must hold the
// operator role.
func (e *Engine) SetAllowance(ctx context.Context, caller, user types.Address, amount types.Amount) error {
	return e.run(ctx, string(pause.OpSetAllowance), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpSetAllowance); err != nil {
			return err
		}
		if err := oc.require(access.RoleOperator); err != nil {
			return err
		}
		return oc.setAllowance("user", user, amount)
	})
}

// BatchSetAllowances sets several ceilings at once. Either every entry is
// applied or none is.
func (e *Engine) BatchSetAllowances(ctx context.Context, caller types.Address, users []types.Address, amounts []types.Amount) error {
	return e.run(ctx, string(pause.OpBatchSetAllowances), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpBatchSetAllowances); err != nil {
			return err
		}
		if err := oc.require(access.RoleOperator); err != nil {
			return err
		}
		if len(users) != len(amounts) {
			return fmt.Errorf("%w: %d users, %d amounts", ErrLengthMismatch, len(users), len(amounts))
		}
		if len(users) == 0 {
			return ErrEmptyBatch
		}
		for i := range users {
			if err := oc.setAllowance(fmt.Sprintf("users[%d]", i), users[i], amounts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (oc *opContext) setAllowance(field string, user types.Address, amount types.Amount) error {
	if err := checkAccount(field, user); err != nil {
		return err
	}
	prev := oc.tx.Allowance(user)
	oc.tx.SetAllowance(user, amount)

	evt := oc.newEvent(event.KindAllowanceSet)
	evt.Account = user
	evt.Amount = amount
	evt.Old = prev.String()
	evt.New = amount.String()
	oc.emit(evt)
	return nil
}
