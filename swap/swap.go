// Package swap holds the external collaborators and the pricing arithmetic
// used to convert a base asset into ledger tokens.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

var (
	// ErrNoPrice is returned by Compute for a zero or negative price.
	ErrNoPrice = errors.New("escrow: swap price must be positive")
	// ErrOutputOverflow is returned when the converted output does not fit an Amount.
	ErrOutputOverflow = errors.New("escrow: swap output overflows amount")
)

// Asset is an external fungible asset the engine moves funds with. Both the
// base asset paid in by callers and the quote asset paid out as fees use it.
// Implementations that call back into the engine must pass on the context
// they were given; such calls are rejected with ErrReentrantCall.
type Asset interface {
	// TransferFrom pulls amount from one account to another on the
	// caller's behalf.
	TransferFrom(ctx context.Context, from, to types.Address, amount types.Amount) error
	// Transfer sends amount from the engine's holdings to an account.
	Transfer(ctx context.Context, to types.Address, amount types.Amount) error
}

// Quote is an achievable exchange of AmountIn base units into AmountOut
// quote units.
type Quote struct {
	AmountIn  types.Amount `json:"amount_in"`
	AmountOut types.Amount `json:"amount_out"`
}

// Venue is an external exchange converting base into quote asset. Like
// Asset, it runs while the engine holds its writer lock.
type Venue interface {
	Quote(ctx context.Context, amountIn types.Amount) (Quote, error)
	// Exchange performs the conversion and fails if fewer than minOut quote
	// units would be produced. It returns the quote units received.
	Exchange(ctx context.Context, amountIn, minOut types.Amount) (types.Amount, error)
}

// Result is the outcome of pricing a quote.
type Result struct {
	Quote  types.Amount `json:"quote"`
	Fee    types.Amount `json:"fee"`
	Net    types.Amount `json:"net"`
	Output types.Amount `json:"output"`
}

// Compute takes the fee from the quoted amount and converts the remainder
// into ledger-token units: floor(net * 10^decimals / price).
func Compute(quoted types.Amount, feeBps uint32, price decimal.Decimal, decimals int32) (Result, error) {
	if !price.IsPositive() {
		return Result{}, ErrNoPrice
	}
	fee := quoted.MulBps(feeBps)
	net, err := quoted.Sub(fee)
	if err != nil {
		return Result{}, err
	}

	scaled := decimal.NewFromBigInt(new(big.Int).SetUint64(net.Uint64()), 0).Shift(decimals)
	q, _ := scaled.QuoRem(price, 0)
	out := q.BigInt()
	if out.Sign() < 0 || !out.IsUint64() {
		return Result{}, ErrOutputOverflow
	}

	return Result{
		Quote:  quoted,
		Fee:    fee,
		Net:    net,
		Output: types.Amount(out.Uint64()),
	}, nil
}

// Receipt describes a completed swap.
type Receipt struct {
	ID         id.SwapID     `json:"id"`
	Caller     types.Address `json:"caller"`
	BaseAmount types.Amount  `json:"base_amount"`
	Quote      types.Amount  `json:"quote"`
	Fee        types.Amount  `json:"fee"`
	Output     types.Amount  `json:"output"`
	Price      string        `json:"price"`
	ExecutedAt time.Time     `json:"executed_at"`
}

func (r Receipt) String() string {
	return fmt.Sprintf("swap %s: %s base -> %s tokens (fee %s)", r.ID, r.BaseAmount, r.Output, r.Fee)
}
