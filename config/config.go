// Package config holds the tunable economic parameters of the escrow engine.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/escrow/types"
)

// MaxFeeBps caps every fee expressed in basis points (10%).
const MaxFeeBps uint32 = 1000

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("escrow: invalid config")

// Config is the complete set of economic parameters. It is always replaced
// as a whole.
type Config struct {
	// MaxSpendAmount is the hard ceiling on a single debit.
	MaxSpendAmount types.Amount `json:"max_spend_amount" yaml:"max_spend_amount" cbor:"max_spend_amount"`

	// MaxLockDuration bounds the duration of a resource lock.
	MaxLockDuration time.Duration `json:"max_lock_duration" yaml:"max_lock_duration" cbor:"max_lock_duration"`

	// EmergencyUnlockFeeBps is the penalty charged on emergency close.
	EmergencyUnlockFeeBps uint32 `json:"emergency_unlock_fee_bps" yaml:"emergency_unlock_fee_bps" cbor:"emergency_unlock_fee_bps"`

	// SwapFeeBps is the treasury fee taken from the quote leg of a swap.
	SwapFeeBps uint32 `json:"swap_fee_bps" yaml:"swap_fee_bps" cbor:"swap_fee_bps"`
}

// Default returns the parameters used when a genesis does not specify any.
func Default() Config {
	return Config{
		MaxSpendAmount:        1_000_000,
		MaxLockDuration:       7 * 24 * time.Hour,
		EmergencyUnlockFeeBps: 500,
		SwapFeeBps:            30,
	}
}

// FieldError describes the first field of a Config that fails validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("escrow: invalid config field %s: %s", e.Field, e.Reason)
}

// Unwrap makes every FieldError match ErrInvalid.
func (e *FieldError) Unwrap() error { return ErrInvalid }

// Validate checks every invariant of the parameters.
func (c Config) Validate() error {
	switch {
	case c.MaxSpendAmount.IsZero():
		return &FieldError{Field: "max_spend_amount", Reason: "must be greater than zero"}
	case c.MaxLockDuration <= 0:
		return &FieldError{Field: "max_lock_duration", Reason: "must be greater than zero"}
	case c.EmergencyUnlockFeeBps > MaxFeeBps:
		return &FieldError{Field: "emergency_unlock_fee_bps", Reason: fmt.Sprintf("must not exceed %d", MaxFeeBps)}
	case c.SwapFeeBps > MaxFeeBps:
		return &FieldError{Field: "swap_fee_bps", Reason: fmt.Sprintf("must not exceed %d", MaxFeeBps)}
	}
	return nil
}

// Change is a single field that differs between two configs.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Diff lists the fields that differ from prev to next, in declaration order.
func Diff(prev, next Config) []Change {
	var changes []Change
	add := func(field string, old, updated any) {
		o, n := fmt.Sprint(old), fmt.Sprint(updated)
		if o != n {
			changes = append(changes, Change{Field: field, Old: o, New: n})
		}
	}
	add("max_spend_amount", prev.MaxSpendAmount, next.MaxSpendAmount)
	add("max_lock_duration", prev.MaxLockDuration, next.MaxLockDuration)
	add("emergency_unlock_fee_bps", prev.EmergencyUnlockFeeBps, next.EmergencyUnlockFeeBps)
	add("swap_fee_bps", prev.SwapFeeBps, next.SwapFeeBps)
	return changes
}
