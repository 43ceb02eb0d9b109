// Package event defines the records the engine emits for off-chain monitors.
// Each event carries enough fields to identify the affected account, amount
// and lock or service tag without replaying engine state.
package event

import (
	"time"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

// Kind names what happened.
type Kind string

const (
	KindSpend                Kind = "spend"
	KindSupplyReduced        Kind = "supply_reduced"
	KindAllowanceSet         Kind = "allowance_set"
	KindLockOpened           Kind = "lock_opened"
	KindLockSettled          Kind = "lock_settled"
	KindLockEmergencyClosed  Kind = "lock_emergency_closed"
	KindLockMatured          Kind = "lock_matured"
	KindSwapExecuted         Kind = "swap_executed"
	KindFeesCollected        Kind = "fees_collected"
	KindConfigChanged        Kind = "config_changed"
	KindPaused               Kind = "paused"
	KindUnpaused             Kind = "unpaused"
	KindRoleGranted          Kind = "role_granted"
	KindRoleRevoked          Kind = "role_revoked"
	KindFunctionPauseChanged Kind = "function_pause_changed"
	KindTreasuryChanged      Kind = "treasury_changed"
	KindMinted               Kind = "minted"
	KindUpgradeAuthorized    Kind = "upgrade_authorized"
)

// Event is a flat record; fields that do not apply to a kind stay empty.
type Event struct {
	ID   id.EventID `json:"id" cbor:"id"`
	Kind Kind       `json:"kind" cbor:"kind"`
	Seq  uint64     `json:"seq" cbor:"seq"`
	Time time.Time  `json:"time" cbor:"time"`

	// Caller is the account that invoked the operation.
	Caller types.Address `json:"caller,omitempty" cbor:"caller"`
	// Account is the account whose balance, allowance or membership changed.
	Account types.Address `json:"account,omitempty" cbor:"account"`
	// Counterparty receives funds when the operation moves them elsewhere,
	// such as the treasury on emergency close.
	Counterparty types.Address `json:"counterparty,omitempty" cbor:"counterparty"`

	Amount types.Amount `json:"amount,omitempty" cbor:"amount"`
	// Refund is the part of a lock returned to its owner.
	Refund types.Amount `json:"refund,omitempty" cbor:"refund"`
	Fee    types.Amount `json:"fee,omitempty" cbor:"fee"`

	LockID     uint64    `json:"lock_id,omitempty" cbor:"lock_id"`
	ServiceTag string    `json:"service_tag,omitempty" cbor:"service_tag"`
	UnlockTime time.Time `json:"unlock_time,omitempty" cbor:"unlock_time"`

	SwapID     id.SwapID    `json:"swap_id,omitempty" cbor:"swap_id"`
	BaseAmount types.Amount `json:"base_amount,omitempty" cbor:"base_amount"`
	Quote      types.Amount `json:"quote,omitempty" cbor:"quote"`
	Price      string       `json:"price,omitempty" cbor:"price"`

	Role      string `json:"role,omitempty" cbor:"role"`
	Operation string `json:"operation,omitempty" cbor:"operation"`
	Paused    bool   `json:"paused,omitempty" cbor:"paused"`
	Field     string `json:"field,omitempty" cbor:"field"`
	Old       string `json:"old,omitempty" cbor:"old"`
	New       string `json:"new,omitempty" cbor:"new"`
	Version   string `json:"version,omitempty" cbor:"version"`
}

// New creates an event of the given kind stamped at now. The sequence number
// is assigned when the event is committed.
func New(kind Kind, caller types.Address, now time.Time) Event {
	return Event{
		ID:     id.NewEventID(),
		Kind:   kind,
		Time:   now.UTC(),
		Caller: caller,
	}
}

// IsLock reports whether the event concerns a resource lock.
func (e Event) IsLock() bool {
	switch e.Kind {
	case KindLockOpened, KindLockSettled, KindLockEmergencyClosed, KindLockMatured:
		return true
	}
	return false
}
