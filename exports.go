package escrow

import (
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// Re-export common types so callers rarely need the sub-packages.

// Address is re-exported from types package.
type Address = types.Address

// Amount is re-exported from types package.
type Amount = types.Amount

// Role is re-exported from access package.
type Role = access.Role

// Operation is re-exported from pause package.
type Operation = pause.Operation

// Event is re-exported from event package.
type Event = event.Event

// ResourceLock is re-exported from lock package.
type ResourceLock = lock.Lock

// Params is re-exported from config package.
type Params = config.Config

// Well-known accounts.
const (
	EscrowAccount  = types.EscrowAccount
	ReserveAccount = types.ReserveAccount
	SystemCaller   = types.SystemCaller
)

// Roles.
const (
	RoleAdmin    = access.RoleAdmin
	RoleOperator = access.RoleOperator
	RoleService  = access.RoleService
	RolePauser   = access.RolePauser
	RoleUpgrader = access.RoleUpgrader
)

// DefaultParams is re-exported from config package.
var DefaultParams = config.Default
