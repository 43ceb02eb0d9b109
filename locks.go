package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// Lock moves amount from owner into escrow for duration and returns the new
// lock id. Ids are per-owner and never reused.
func (e *Engine) Lock(ctx context.Context, owner types.Address, amount types.Amount, duration time.Duration, serviceTag string) (uint64, error) {
	var lockID uint64
	err := e.run(ctx, string(pause.OpLock), owner, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpLock); err != nil {
			return err
		}
		if err := checkAccount("owner", owner); err != nil {
			return err
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}

		tx := oc.tx
		if maxDuration := tx.Config().MaxLockDuration; duration <= 0 || duration > maxDuration {
			return &ValidationError{
				Field:   "duration",
				Message: fmt.Sprintf("%s is outside (0, %s]", duration, maxDuration),
				Err:     ErrInvalidDuration,
			}
		}
		if balance := tx.Balance(owner); amount > balance {
			return fmt.Errorf("%w: %s > %s", ErrInsufficientBalance, amount, balance)
		}

		if err := tx.Transfer(owner, types.EscrowAccount, amount); err != nil {
			return err
		}
		l := lock.New(owner, tx.NextNonce(owner), amount, duration, serviceTag, oc.now)
		tx.PutLock(l)
		lockID = l.ID

		evt := oc.newEvent(event.KindLockOpened)
		evt.Account = owner
		evt.Amount = amount
		evt.LockID = l.ID
		evt.ServiceTag = serviceTag
		evt.UnlockTime = l.UnlockTime
		oc.emit(evt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return lockID, nil
}

// Settle closes a matured lock: actualSpent is burned and the rest returns
// to the owner. The owner may always settle once the unlock time has
// passed; a service-role caller may do so only when third-party settlement
// is enabled.
func (e *Engine) Settle(ctx context.Context, caller, owner types.Address, lockID uint64, actualSpent types.Amount) error {
	return e.run(ctx, string(pause.OpSettle), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpSettle); err != nil {
			return err
		}
		if caller != owner {
			if !e.thirdPartySettlement {
				return &UnauthorizedError{Role: "owner", Caller: string(caller)}
			}
			if err := oc.require(access.RoleService); err != nil {
				return err
			}
		}

		tx := oc.tx
		l, err := oc.activeLock(owner, lockID)
		if err != nil {
			return err
		}
		if !l.MaturedAt(oc.now) {
			return fmt.Errorf("%w: %s unlocks in %s", ErrLockNotMatured, l.Key(), l.Remaining(oc.now))
		}
		if actualSpent > l.Amount {
			return fmt.Errorf("%w: %s > %s", ErrExceedsLock, actualSpent, l.Amount)
		}

		refund := l.Amount - actualSpent
		if !actualSpent.IsZero() {
			if err := tx.Burn(types.EscrowAccount, actualSpent); err != nil {
				return err
			}
		}
		if !refund.IsZero() {
			if err := tx.Transfer(types.EscrowAccount, owner, refund); err != nil {
				return err
			}
		}

		l.Status = lock.StatusSettled
		l.Spent = actualSpent
		l.Refunded = refund
		l.Touch(oc.now)
		tx.PutLock(l)

		settled := oc.newEvent(event.KindLockSettled)
		settled.Account = owner
		settled.Amount = actualSpent
		settled.Refund = refund
		settled.LockID = l.ID
		settled.ServiceTag = l.ServiceTag
		oc.emit(settled)

		if !actualSpent.IsZero() {
			reduced := oc.newEvent(event.KindSupplyReduced)
			reduced.Account = owner
			reduced.Amount = actualSpent
			reduced.LockID = l.ID
			reduced.ServiceTag = l.ServiceTag
			oc.emit(reduced)
		}
		return nil
	})
}

// EmergencyClose exits an active lock at any time. The configured penalty
// goes to the treasury and the remainder back to the owner. It stays
// available while the engine is globally paused and honors only its own
// pause flag.
func (e *Engine) EmergencyClose(ctx context.Context, owner types.Address, lockID uint64) error {
	return e.run(ctx, string(pause.OpEmergencyClose), owner, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpEmergencyClose); err != nil {
			return err
		}

		tx := oc.tx
		l, err := oc.activeLock(owner, lockID)
		if err != nil {
			return err
		}

		fee := l.Amount.MulBps(tx.Config().EmergencyUnlockFeeBps)
		refund := l.Amount - fee
		treasury := tx.Treasury()
		if !fee.IsZero() {
			if err := tx.Transfer(types.EscrowAccount, treasury, fee); err != nil {
				return err
			}
		}
		if !refund.IsZero() {
			if err := tx.Transfer(types.EscrowAccount, owner, refund); err != nil {
				return err
			}
		}

		l.Status = lock.StatusEmergencyClosed
		l.Fee = fee
		l.Refunded = refund
		l.Touch(oc.now)
		tx.PutLock(l)

		evt := oc.newEvent(event.KindLockEmergencyClosed)
		evt.Account = owner
		evt.Counterparty = treasury
		evt.Amount = l.Amount
		evt.Fee = fee
		evt.Refund = refund
		evt.LockID = l.ID
		evt.ServiceTag = l.ServiceTag
		oc.emit(evt)
		return nil
	})
}

// SweepMatured announces every active lock that has passed its unlock time
// and was not announced before. It returns the number of locks announced.
func (e *Engine) SweepMatured(ctx context.Context) (int, error) {
	var count int
	err := e.run(ctx, opSweepMatured, types.SystemCaller, func(oc *opContext) error {
		due := e.state.Locks(func(l lock.Lock) bool {
			return l.Active() && !l.Matured && l.MaturedAt(oc.now)
		})
		for _, l := range due {
			l.Matured = true
			oc.tx.PutLock(l)

			evt := oc.newEvent(event.KindLockMatured)
			evt.Account = l.Owner
			evt.Amount = l.Amount
			evt.LockID = l.ID
			evt.ServiceTag = l.ServiceTag
			evt.UnlockTime = l.UnlockTime
			oc.emit(evt)
		}
		count = len(due)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (oc *opContext) activeLock(owner types.Address, lockID uint64) (lock.Lock, error) {
	key := lock.Key{Owner: owner, ID: lockID}
	l, ok := oc.tx.Lock(key)
	if !ok {
		return lock.Lock{}, fmt.Errorf("%w: %s", ErrLockNotFound, key)
	}
	if !l.Active() {
		return lock.Lock{}, fmt.Errorf("%w: %s is %s", ErrAlreadySettled, key, l.Status)
	}
	return l, nil
}
