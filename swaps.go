package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/oracle"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/swap"
	"github.com/xraph/escrow/types"
)

// Swap converts baseAmount of the base asset into ledger tokens from the
// swap reserve. Price, quote, fee, slippage and reserve are all checked
// before any asset moves. A failed exchange or journal append returns the
// base asset to the caller and commits nothing.
func (e *Engine) Swap(ctx context.Context, caller types.Address, baseAmount, minOutput types.Amount) (*swap.Receipt, error) {
	var receipt *swap.Receipt
	err := e.run(ctx, string(pause.OpSwap), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpSwap); err != nil {
			return err
		}
		sc, err := e.swapConfig()
		if err != nil {
			return err
		}
		if err := checkAccount("caller", caller); err != nil {
			return err
		}
		if baseAmount.IsZero() {
			return ErrZeroAmount
		}

		tx := oc.tx
		var reading oracle.Reading
		if err := e.call(func() (err error) {
			reading, err = e.oracle.Price(oc.ctx, sc.Feed)
			return err
		}); err != nil {
			return err
		}
		var quote swap.Quote
		if err := e.call(func() (err error) {
			quote, err = sc.Venue.Quote(oc.ctx, baseAmount)
			return err
		}); err != nil {
			return fmt.Errorf("%w: quote: %w", ErrExchangeFailed, err)
		}
		res, err := swap.Compute(quote.AmountOut, tx.Config().SwapFeeBps, reading.Value, e.tokenDecimals)
		if err != nil {
			return err
		}
		if res.Output.IsZero() || res.Output < minOutput {
			return fmt.Errorf("%w: output %s, minimum %s", ErrSlippage, res.Output, minOutput)
		}
		if reserve := tx.Balance(types.ReserveAccount); res.Output > reserve {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientReserve, res.Output, reserve)
		}
		fees, err := tx.AccruedFees().Add(res.Fee)
		if err != nil {
			return err
		}

		if err := e.call(func() error {
			return sc.Base.TransferFrom(oc.ctx, caller, types.ReserveAccount, baseAmount)
		}); err != nil {
			return fmt.Errorf("escrow: pull base asset: %w", err)
		}
		var received types.Amount
		if err := e.call(func() (err error) {
			received, err = sc.Venue.Exchange(oc.ctx, baseAmount, quote.AmountOut)
			return err
		}); err != nil {
			refundErr := e.call(func() error { return sc.Base.Transfer(oc.ctx, caller, baseAmount) })
			if refundErr != nil {
				e.logger.Error("escrow swap refund failed",
					"caller", caller,
					"base_amount", baseAmount,
					"error", refundErr,
				)
				return errors.Join(fmt.Errorf("%w: %w", ErrExchangeFailed, err), refundErr)
			}
			return fmt.Errorf("%w: %w", ErrExchangeFailed, err)
		}
		if received < quote.AmountOut {
			e.logger.Error("escrow swap venue returned less than its minimum",
				"caller", caller,
				"base_amount", baseAmount,
				"quoted", quote.AmountOut,
				"received", received,
			)
			return fmt.Errorf("%w: received %s, quoted %s", ErrExchangeFailed, received, quote.AmountOut)
		}
		oc.onAbort(func(ctx context.Context) error {
			return sc.Base.Transfer(ctx, caller, baseAmount)
		})

		if err := tx.Transfer(types.ReserveAccount, caller, res.Output); err != nil {
			return err
		}
		tx.SetAccruedFees(fees)

		receipt = &swap.Receipt{
			ID:         id.NewSwapID(),
			Caller:     caller,
			BaseAmount: baseAmount,
			Quote:      res.Quote,
			Fee:        res.Fee,
			Output:     res.Output,
			Price:      reading.Value.String(),
			ExecutedAt: oc.now,
		}

		evt := oc.newEvent(event.KindSwapExecuted)
		evt.Account = caller
		evt.Amount = res.Output
		evt.Fee = res.Fee
		evt.SwapID = receipt.ID
		evt.BaseAmount = baseAmount
		evt.Quote = res.Quote
		evt.Price = receipt.Price
		oc.emit(evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// CollectFees sends accrued swap fees to the treasury in the quote asset.
// The treasury itself or an admin may call it. The reset is journaled before
// the transfer, and a failed transfer journals a revert, so fees are never
// paid twice and never lost to a failed append.
func (e *Engine) CollectFees(ctx context.Context, caller types.Address) (types.Amount, error) {
	var collected types.Amount
	err := e.run(ctx, string(pause.OpCollectFees), caller, func(oc *opContext) error {
		if err := oc.whenNotPaused(pause.OpCollectFees); err != nil {
			return err
		}
		tx := oc.tx
		treasury := tx.Treasury()
		if caller != treasury {
			if err := oc.require(access.RoleAdmin); err != nil {
				return err
			}
		}
		sc, err := e.swapConfig()
		if err != nil {
			return err
		}
		fees := tx.AccruedFees()
		if fees.IsZero() {
			return ErrNoFees
		}

		tx.SetAccruedFees(0)
		oc.afterJournal(func(ctx context.Context) error {
			if err := sc.Quote.Transfer(ctx, treasury, fees); err != nil {
				return fmt.Errorf("escrow: transfer fees to treasury: %w", err)
			}
			return nil
		})
		collected = fees

		evt := oc.newEvent(event.KindFeesCollected)
		evt.Account = treasury
		evt.Amount = fees
		oc.emit(evt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return collected, nil
}

func (e *Engine) swapConfig() (*SwapConfig, error) {
	sc := e.swap
	if sc == nil || sc.Feed == nil || sc.Venue == nil || sc.Base == nil || sc.Quote == nil {
		return nil, ErrSwapNotConfigured
	}
	return sc, nil
}
