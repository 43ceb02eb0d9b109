// Package types provides common types used across Escrow.
package types

import (
	"errors"
	"math/bits"
	"strconv"
)

// BpsDenominator is the basis-point scale: 10000 bps == 100%.
const BpsDenominator = 10000

var (
	// ErrOverflow is returned when an addition would exceed the uint64 range.
	ErrOverflow = errors.New("escrow: amount overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("escrow: amount underflow")
)

// Amount is a non-negative quantity of ledger tokens in the smallest unit.
// All arithmetic is integer-only and overflow-checked.
type Amount uint64

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return Amount(sum), nil
}

// Sub returns a-b or ErrUnderflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// MulBps returns floor(a * bps / 10000). The intermediate product is
// computed in 128 bits, so the result never overflows for bps <= 10000.
// bps above the denominator is clamped to 100%.
func (a Amount) MulBps(bps uint32) Amount {
	if bps >= BpsDenominator {
		return a
	}
	hi, lo := bits.Mul64(uint64(a), uint64(bps))
	quo, _ := bits.Div64(hi, lo, BpsDenominator)
	return Amount(quo)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// Uint64 returns the raw value.
func (a Amount) Uint64() uint64 { return uint64(a) }

// String returns the base-10 representation.
func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

// Sum adds all values, failing on overflow.
func Sum(values ...Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		next, err := total.Add(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
