package state

import (
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// Tx is a copy-on-write overlay over a State. Reads see the transaction's
// own writes first. Nothing reaches the base until the caller applies
// Changes.
type Tx struct {
	base    *State
	index   map[string]int
	changes []Change
}

// Changes returns the final value of every slot written, in first-write
// order.
func (t *Tx) Changes() []Change {
	out := make([]Change, len(t.changes))
	copy(out, t.changes)
	return out
}

// Empty reports whether the transaction wrote nothing.
func (t *Tx) Empty() bool { return len(t.changes) == 0 }

func (t *Tx) put(c Change) {
	k := c.key()
	if i, ok := t.index[k]; ok {
		t.changes[i] = c
		return
	}
	t.index[k] = len(t.changes)
	t.changes = append(t.changes, c)
}

func (t *Tx) get(c Change) (Change, bool) {
	i, ok := t.index[c.key()]
	if !ok {
		return Change{}, false
	}
	return t.changes[i], true
}

// ──────────────────────────────────────────────────
// Reader
// ──────────────────────────────────────────────────

func (t *Tx) Balance(account types.Address) types.Amount {
	if c, ok := t.get(Change{Kind: ChangeBalance, Account: account}); ok {
		return c.Amount
	}
	return t.base.Balance(account)
}

func (t *Tx) Supply() types.Amount {
	if c, ok := t.get(Change{Kind: ChangeSupply}); ok {
		return c.Amount
	}
	return t.base.Supply()
}

func (t *Tx) Allowance(account types.Address) types.Amount {
	if c, ok := t.get(Change{Kind: ChangeAllowance, Account: account}); ok {
		return c.Amount
	}
	return t.base.Allowance(account)
}

func (t *Tx) Lock(key lock.Key) (lock.Lock, bool) {
	lookup := lock.Lock{Owner: key.Owner, ID: key.ID}
	if c, ok := t.get(Change{Kind: ChangeLock, Lock: &lookup}); ok {
		return *c.Lock, true
	}
	return t.base.Lock(key)
}

func (t *Tx) Nonce(owner types.Address) uint64 {
	if c, ok := t.get(Change{Kind: ChangeNonce, Account: owner}); ok {
		return c.Nonce
	}
	return t.base.Nonce(owner)
}

func (t *Tx) HasRole(role access.Role, account types.Address) bool {
	if c, ok := t.get(Change{Kind: ChangeRole, Role: role, Account: account}); ok {
		return c.Flag
	}
	return t.base.HasRole(role, account)
}

func (t *Tx) RoleCount(role access.Role) int {
	n := t.base.RoleCount(role)
	for _, c := range t.changes {
		if c.Kind != ChangeRole || c.Role != role {
			continue
		}
		had := t.base.HasRole(role, c.Account)
		switch {
		case c.Flag && !had:
			n++
		case !c.Flag && had:
			n--
		}
	}
	return n
}

func (t *Tx) Paused() bool {
	if c, ok := t.get(Change{Kind: ChangePaused}); ok {
		return c.Flag
	}
	return t.base.Paused()
}

func (t *Tx) OperationPaused(op pause.Operation) bool {
	if c, ok := t.get(Change{Kind: ChangeOperationPaused, Operation: op}); ok {
		return c.Flag
	}
	return t.base.OperationPaused(op)
}

func (t *Tx) Config() config.Config {
	if c, ok := t.get(Change{Kind: ChangeConfig}); ok {
		return *c.Config
	}
	return t.base.Config()
}

func (t *Tx) Treasury() types.Address {
	if c, ok := t.get(Change{Kind: ChangeTreasury}); ok {
		return c.Account
	}
	return t.base.Treasury()
}

func (t *Tx) AccruedFees() types.Amount {
	if c, ok := t.get(Change{Kind: ChangeAccruedFees}); ok {
		return c.Amount
	}
	return t.base.AccruedFees()
}

func (t *Tx) Version() string {
	if c, ok := t.get(Change{Kind: ChangeVersion}); ok {
		return c.Text
	}
	return t.base.Version()
}

// ──────────────────────────────────────────────────
// Book
// ──────────────────────────────────────────────────

// Credit adds amount to account without touching supply.
func (t *Tx) Credit(account types.Address, amount types.Amount) error {
	next, err := t.Balance(account).Add(amount)
	if err != nil {
		return err
	}
	t.SetBalance(account, next)
	return nil
}

// Debit removes amount from account without touching supply.
func (t *Tx) Debit(account types.Address, amount types.Amount) error {
	next, err := t.Balance(account).Sub(amount)
	if err != nil {
		return err
	}
	t.SetBalance(account, next)
	return nil
}

// Transfer moves amount between two accounts. Supply is unchanged.
func (t *Tx) Transfer(from, to types.Address, amount types.Amount) error {
	if err := t.Debit(from, amount); err != nil {
		return err
	}
	return t.Credit(to, amount)
}

// Mint creates amount in to and grows supply.
func (t *Tx) Mint(to types.Address, amount types.Amount) error {
	supply, err := t.Supply().Add(amount)
	if err != nil {
		return err
	}
	if err := t.Credit(to, amount); err != nil {
		return err
	}
	t.put(Change{Kind: ChangeSupply, Amount: supply})
	return nil
}

// Burn destroys amount held by from and shrinks supply.
func (t *Tx) Burn(from types.Address, amount types.Amount) error {
	supply, err := t.Supply().Sub(amount)
	if err != nil {
		return err
	}
	if err := t.Debit(from, amount); err != nil {
		return err
	}
	t.put(Change{Kind: ChangeSupply, Amount: supply})
	return nil
}

// ──────────────────────────────────────────────────
// Setters
// ──────────────────────────────────────────────────

func (t *Tx) SetBalance(account types.Address, amount types.Amount) {
	t.put(Change{Kind: ChangeBalance, Account: account, Amount: amount})
}

func (t *Tx) SetAllowance(account types.Address, amount types.Amount) {
	t.put(Change{Kind: ChangeAllowance, Account: account, Amount: amount})
}

func (t *Tx) PutLock(l lock.Lock) {
	t.put(Change{Kind: ChangeLock, Lock: &l})
}

// NextNonce reserves and returns the next lock id for owner. Ids start at 1
// and are never handed out twice.
func (t *Tx) NextNonce(owner types.Address) uint64 {
	n := t.Nonce(owner) + 1
	t.put(Change{Kind: ChangeNonce, Account: owner, Nonce: n})
	return n
}

func (t *Tx) SetRole(role access.Role, account types.Address, member bool) {
	t.put(Change{Kind: ChangeRole, Role: role, Account: account, Flag: member})
}

func (t *Tx) SetPaused(paused bool) {
	t.put(Change{Kind: ChangePaused, Flag: paused})
}

func (t *Tx) SetOperationPaused(op pause.Operation, paused bool) {
	t.put(Change{Kind: ChangeOperationPaused, Operation: op, Flag: paused})
}

func (t *Tx) SetConfig(cfg config.Config) {
	t.put(Change{Kind: ChangeConfig, Config: &cfg})
}

func (t *Tx) SetTreasury(account types.Address) {
	t.put(Change{Kind: ChangeTreasury, Account: account})
}

func (t *Tx) SetAccruedFees(amount types.Amount) {
	t.put(Change{Kind: ChangeAccruedFees, Amount: amount})
}

func (t *Tx) SetVersion(version string) {
	t.put(Change{Kind: ChangeVersion, Text: version})
}
