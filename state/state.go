// Package state holds the engine's in-memory book: balances, supply,
// allowances, locks, roles, pause flags, config and treasury. Mutations go
// through a Tx overlay that records the final value of every touched slot;
// the resulting changes are committed with Apply, both live and when the
// journal is replayed.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// Reader is the read side shared by committed state and a pending Tx.
type Reader interface {
	Balance(account types.Address) types.Amount
	Supply() types.Amount
	Allowance(account types.Address) types.Amount
	Lock(key lock.Key) (lock.Lock, bool)
	Nonce(owner types.Address) uint64
	HasRole(role access.Role, account types.Address) bool
	RoleCount(role access.Role) int
	Paused() bool
	OperationPaused(op pause.Operation) bool
	Config() config.Config
	Treasury() types.Address
	AccruedFees() types.Amount
	Version() string
}

// Book is the balance primitive operations move funds with.
type Book interface {
	Balance(account types.Address) types.Amount
	Credit(account types.Address, amount types.Amount) error
	Debit(account types.Address, amount types.Amount) error
	Transfer(from, to types.Address, amount types.Amount) error
	Mint(to types.Address, amount types.Amount) error
	Burn(from types.Address, amount types.Amount) error
}

var (
	_ Reader = (*State)(nil)
	_ Reader = (*Tx)(nil)
	_ Book   = (*Tx)(nil)
)

// State is the committed book. It is safe for concurrent readers; Apply is
// expected to be called by a single writer.
type State struct {
	mu sync.RWMutex

	balances   map[types.Address]types.Amount
	supply     types.Amount
	allowances map[types.Address]types.Amount
	locks      map[lock.Key]lock.Lock
	nonces     map[types.Address]uint64
	roles      map[access.Role]map[types.Address]struct{}
	paused     bool
	opPaused   map[pause.Operation]bool
	cfg        config.Config
	treasury   types.Address
	fees       types.Amount
	version    string
}

// New returns an empty book with the default config.
func New() *State {
	return &State{
		balances:   make(map[types.Address]types.Amount),
		allowances: make(map[types.Address]types.Amount),
		locks:      make(map[lock.Key]lock.Lock),
		nonces:     make(map[types.Address]uint64),
		roles:      make(map[access.Role]map[types.Address]struct{}),
		opPaused:   make(map[pause.Operation]bool),
		cfg:        config.Default(),
	}
}

// Apply overwrites state with the given changes in order.
func (s *State) Apply(changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range changes {
		if err := s.apply(&changes[i]); err != nil {
			return fmt.Errorf("state: change %d: %w", i, err)
		}
	}
	return nil
}

func (s *State) apply(c *Change) error {
	switch c.Kind {
	case ChangeBalance:
		if c.Amount.IsZero() {
			delete(s.balances, c.Account)
		} else {
			s.balances[c.Account] = c.Amount
		}
	case ChangeSupply:
		s.supply = c.Amount
	case ChangeAllowance:
		if c.Amount.IsZero() {
			delete(s.allowances, c.Account)
		} else {
			s.allowances[c.Account] = c.Amount
		}
	case ChangeLock:
		if c.Lock == nil {
			return fmt.Errorf("lock change without lock")
		}
		s.locks[c.Lock.Key()] = *c.Lock
	case ChangeNonce:
		s.nonces[c.Account] = c.Nonce
	case ChangeRole:
		members := s.roles[c.Role]
		if c.Flag {
			if members == nil {
				members = make(map[types.Address]struct{})
				s.roles[c.Role] = members
			}
			members[c.Account] = struct{}{}
		} else if members != nil {
			delete(members, c.Account)
		}
	case ChangePaused:
		s.paused = c.Flag
	case ChangeOperationPaused:
		if c.Flag {
			s.opPaused[c.Operation] = true
		} else {
			delete(s.opPaused, c.Operation)
		}
	case ChangeConfig:
		if c.Config == nil {
			return fmt.Errorf("config change without config")
		}
		s.cfg = *c.Config
	case ChangeTreasury:
		s.treasury = c.Account
	case ChangeAccruedFees:
		s.fees = c.Amount
	case ChangeVersion:
		s.version = c.Text
	default:
		return fmt.Errorf("unknown change kind %q", c.Kind)
	}
	return nil
}

// Revert returns changes that put every slot written by changes back to its
// committed value. A lock that does not exist yet cannot be reverted.
func (s *State) Revert(changes []Change) ([]Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		r := Change{Kind: c.Kind, Account: c.Account, Role: c.Role, Operation: c.Operation}
		switch c.Kind {
		case ChangeBalance:
			r.Amount = s.balances[c.Account]
		case ChangeSupply:
			r.Amount = s.supply
		case ChangeAllowance:
			r.Amount = s.allowances[c.Account]
		case ChangeLock:
			if c.Lock == nil {
				return nil, fmt.Errorf("lock change without lock")
			}
			l, ok := s.locks[c.Lock.Key()]
			if !ok {
				return nil, fmt.Errorf("lock %s has no committed value", c.Lock.Key())
			}
			r.Lock = &l
		case ChangeNonce:
			r.Nonce = s.nonces[c.Account]
		case ChangeRole:
			_, r.Flag = s.roles[c.Role][c.Account]
		case ChangePaused:
			r.Flag = s.paused
		case ChangeOperationPaused:
			r.Flag = s.opPaused[c.Operation]
		case ChangeConfig:
			cfg := s.cfg
			r.Config = &cfg
		case ChangeTreasury:
			r.Account = s.treasury
		case ChangeAccruedFees:
			r.Amount = s.fees
		case ChangeVersion:
			r.Text = s.version
		default:
			return nil, fmt.Errorf("unknown change kind %q", c.Kind)
		}
		out = append(out, r)
	}
	return out, nil
}

// Begin starts a transaction reading through to s.
func (s *State) Begin() *Tx {
	return &Tx{base: s, index: make(map[string]int)}
}

func (s *State) Balance(account types.Address) types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account]
}

func (s *State) Supply() types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.supply
}

func (s *State) Allowance(account types.Address) types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowances[account]
}

func (s *State) Lock(key lock.Key) (lock.Lock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locks[key]
	return l, ok
}

func (s *State) Nonce(owner types.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[owner]
}

func (s *State) HasRole(role access.Role, account types.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[role][account]
	return ok
}

func (s *State) RoleCount(role access.Role) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roles[role])
}

func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *State) OperationPaused(op pause.Operation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opPaused[op]
}

func (s *State) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *State) Treasury() types.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treasury
}

func (s *State) AccruedFees() types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fees
}

func (s *State) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Members returns the accounts holding role, sorted.
func (s *State) Members(role access.Role) []types.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Address, 0, len(s.roles[role]))
	for a := range s.roles[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RolesOf returns the roles held by account in access.Roles order.
func (s *State) RolesOf(account types.Address) []access.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []access.Role
	for _, r := range access.Roles() {
		if _, ok := s.roles[r][account]; ok {
			out = append(out, r)
		}
	}
	return out
}

// PausedOperations returns every selectively paused operation.
func (s *State) PausedOperations() []pause.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pause.Operation
	for _, op := range pause.Operations() {
		if s.opPaused[op] {
			out = append(out, op)
		}
	}
	return out
}

// LocksOf returns every lock of owner ordered by id.
func (s *State) LocksOf(owner types.Address) []lock.Lock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []lock.Lock
	for k, l := range s.locks {
		if k.Owner == owner {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Locks returns every lock that satisfies keep, ordered by owner then id.
// A nil keep returns all locks.
func (s *State) Locks(keep func(lock.Lock) bool) []lock.Lock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []lock.Lock
	for _, l := range s.locks {
		if keep == nil || keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Balances returns a copy of every non-zero balance.
func (s *State) Balances() map[types.Address]types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[types.Address]types.Amount, len(s.balances))
	for a, v := range s.balances {
		out[a] = v
	}
	return out
}

// BalanceSum adds every balance, including the engine accounts. It equals
// Supply whenever the book is consistent.
func (s *State) BalanceSum() (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total types.Amount
	for _, v := range s.balances {
		next, err := total.Add(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
