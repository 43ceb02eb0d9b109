package state

import (
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// ChangeKind names the piece of state a Change overwrites.
type ChangeKind string

const (
	ChangeBalance         ChangeKind = "balance"
	ChangeSupply          ChangeKind = "supply"
	ChangeAllowance       ChangeKind = "allowance"
	ChangeLock            ChangeKind = "lock"
	ChangeNonce           ChangeKind = "nonce"
	ChangeRole            ChangeKind = "role"
	ChangePaused          ChangeKind = "paused"
	ChangeOperationPaused ChangeKind = "operation_paused"
	ChangeConfig          ChangeKind = "config"
	ChangeTreasury        ChangeKind = "treasury"
	ChangeAccruedFees     ChangeKind = "accrued_fees"
	ChangeVersion         ChangeKind = "version"
)

// Change is the final value of one piece of state after an operation.
// Changes carry absolute values, so applying the same list twice is
// harmless.
type Change struct {
	Kind      ChangeKind      `json:"kind" cbor:"kind"`
	Account   types.Address   `json:"account,omitempty" cbor:"account"`
	Role      access.Role     `json:"role,omitempty" cbor:"role"`
	Operation pause.Operation `json:"operation,omitempty" cbor:"operation"`
	Amount    types.Amount    `json:"amount,omitempty" cbor:"amount"`
	Nonce     uint64          `json:"nonce,omitempty" cbor:"nonce"`
	Flag      bool            `json:"flag,omitempty" cbor:"flag"`
	Text      string          `json:"text,omitempty" cbor:"text"`
	Lock      *lock.Lock      `json:"lock,omitempty" cbor:"lock"`
	Config    *config.Config  `json:"config,omitempty" cbor:"config"`
}

// key identifies the slot a change writes, so repeated writes within one
// transaction collapse into one change.
func (c Change) key() string {
	switch c.Kind {
	case ChangeBalance, ChangeAllowance, ChangeNonce:
		return string(c.Kind) + ":" + string(c.Account)
	case ChangeRole:
		return string(c.Kind) + ":" + string(c.Role) + ":" + string(c.Account)
	case ChangeOperationPaused:
		return string(c.Kind) + ":" + string(c.Operation)
	case ChangeLock:
		if c.Lock != nil {
			return string(c.Kind) + ":" + c.Lock.Key().String()
		}
	}
	return string(c.Kind)
}
