package types

import "strings"

// Address identifies an account on the ledger. The empty string is the
// zero address and never holds funds.
type Address string

// Well-known engine-owned accounts. They hold balances like any other
// account so that the sum of all balances always equals total supply.
const (
	// EscrowAccount holds funds locked by ResourceLock reservations.
	EscrowAccount Address = "escrow:locks"
	// ReserveAccount holds ledger tokens sold through swaps.
	ReserveAccount Address = "escrow:reserve"
	// SystemCaller is recorded as the caller of maintenance operations the
	// engine runs on its own, such as genesis and maturity sweeps.
	SystemCaller Address = "escrow:system"
)

// ZeroAddress is the empty address.
const ZeroAddress Address = ""

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// IsEngine reports whether a is one of the engine-owned accounts.
func (a Address) IsEngine() bool {
	return a == EscrowAccount || a == ReserveAccount || a == SystemCaller
}

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }
