// Package lock defines resource locks: funds held in escrow for a bounded
// reservation and later settled or closed early with a penalty.
package lock

import (
	"fmt"
	"time"

	"github.com/xraph/escrow/types"
)

// Status is the lifecycle position of a lock. Settled and EmergencyClosed
// are terminal.
type Status string

const (
	StatusActive          Status = "active"
	StatusSettled         Status = "settled"
	StatusEmergencyClosed Status = "emergency_closed"
)

// IsTerminal reports whether no further settlement is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSettled || s == StatusEmergencyClosed
}

// Key identifies a lock. IDs are per-owner nonces starting at 1.
type Key struct {
	Owner types.Address `json:"owner" cbor:"owner"`
	ID    uint64        `json:"id" cbor:"id"`
}

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.Owner, k.ID) }

// Lock is an escrowed reservation.
type Lock struct {
	types.Entity

	Owner      types.Address `json:"owner" cbor:"owner"`
	ID         uint64        `json:"id" cbor:"id"`
	Amount     types.Amount  `json:"amount" cbor:"amount"`
	ServiceTag string        `json:"service_tag" cbor:"service_tag"`
	UnlockTime time.Time     `json:"unlock_time" cbor:"unlock_time"`
	Status     Status        `json:"status" cbor:"status"`

	// Figures recorded when the lock reaches a terminal state.
	Spent    types.Amount `json:"spent,omitempty" cbor:"spent"`
	Refunded types.Amount `json:"refunded,omitempty" cbor:"refunded"`
	Fee      types.Amount `json:"fee,omitempty" cbor:"fee"`

	// Matured is set once the maturity sweep has announced the lock.
	Matured bool `json:"matured,omitempty" cbor:"matured"`
}

// New creates an active lock opened at now for the given duration.
func New(owner types.Address, lockID uint64, amount types.Amount, duration time.Duration, serviceTag string, now time.Time) Lock {
	entity := types.NewEntity(now)
	return Lock{
		Entity:     entity,
		Owner:      owner,
		ID:         lockID,
		Amount:     amount,
		ServiceTag: serviceTag,
		UnlockTime: entity.CreatedAt.Add(duration),
		Status:     StatusActive,
	}
}

// Key returns the lock's identity.
func (l Lock) Key() Key { return Key{Owner: l.Owner, ID: l.ID} }

// Active reports whether the lock still holds funds.
func (l Lock) Active() bool { return l.Status == StatusActive }

// MaturedAt reports whether the unlock time has been reached at now.
func (l Lock) MaturedAt(now time.Time) bool { return !now.Before(l.UnlockTime) }

// Remaining returns how long until the lock matures, or zero once it has.
func (l Lock) Remaining(now time.Time) time.Duration {
	if l.MaturedAt(now) {
		return 0
	}
	return l.UnlockTime.Sub(now)
}
