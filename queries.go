package escrow

import (
	"context"
	"fmt"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// Queries read committed state only. They never wait for an operation in
// flight.

// BalanceOf returns account's spendable balance.
func (e *Engine) BalanceOf(account types.Address) types.Amount {
	return e.state.Balance(account)
}

// TotalSupply returns the number of tokens in existence.
func (e *Engine) TotalSupply() types.Amount {
	return e.state.Supply()
}

// AllowanceOf returns the remaining spending ceiling of account.
func (e *Engine) AllowanceOf(account types.Address) types.Amount {
	return e.state.Allowance(account)
}

// GetLock returns a single lock.
func (e *Engine) GetLock(owner types.Address, lockID uint64) (lock.Lock, error) {
	l, ok := e.state.Lock(lock.Key{Owner: owner, ID: lockID})
	if !ok {
		return lock.Lock{}, fmt.Errorf("%w: %s/%d", ErrLockNotFound, owner, lockID)
	}
	return l, nil
}

// ListLocks returns every lock owner ever opened, ordered by id.
func (e *Engine) ListLocks(owner types.Address) []lock.Lock {
	return e.state.LocksOf(owner)
}

// ActiveLocks returns every open lock across all owners.
func (e *Engine) ActiveLocks() []lock.Lock {
	return e.state.Locks(lock.Lock.Active)
}

// Config returns the current parameters.
func (e *Engine) Config() config.Config {
	return e.state.Config()
}

// HasRole reports whether account holds role.
func (e *Engine) HasRole(role access.Role, account types.Address) bool {
	return e.state.HasRole(role, account)
}

// Members lists the holders of role.
func (e *Engine) Members(role access.Role) []types.Address {
	return e.state.Members(role)
}

// RolesOf lists the roles account holds.
func (e *Engine) RolesOf(account types.Address) []access.Role {
	return e.state.RolesOf(account)
}

// Paused reports the global pause flag.
func (e *Engine) Paused() bool {
	return e.state.Paused()
}

// FunctionPaused reports whether op is paused on its own.
func (e *Engine) FunctionPaused(op pause.Operation) bool {
	return e.state.OperationPaused(op)
}

// PausedOperations lists every individually paused operation.
func (e *Engine) PausedOperations() []pause.Operation {
	return e.state.PausedOperations()
}

// Treasury returns the fee recipient.
func (e *Engine) Treasury() types.Address {
	return e.state.Treasury()
}

// AccruedFees returns swap fees not yet collected.
func (e *Engine) AccruedFees() types.Amount {
	return e.state.AccruedFees()
}

// Reserve returns the tokens available to the swap path.
func (e *Engine) Reserve() types.Amount {
	return e.state.Balance(types.ReserveAccount)
}

// Escrowed returns the tokens held against open locks.
func (e *Engine) Escrowed() types.Amount {
	return e.state.Balance(types.EscrowAccount)
}

// Version returns the last authorized upgrade version.
func (e *Engine) Version() string {
	return e.state.Version()
}

// Head returns the sequence and hash of the last committed journal entry.
func (e *Engine) Head() (uint64, string) {
	h := e.head.Load()
	if h == nil {
		return 0, ""
	}
	return h.Seq, h.Hash
}

// Stats is a point-in-time summary of the book.
type Stats struct {
	Supply      types.Amount `json:"supply"`
	Escrowed    types.Amount `json:"escrowed"`
	Reserve     types.Amount `json:"reserve"`
	AccruedFees types.Amount `json:"accrued_fees"`
	Accounts    int          `json:"accounts"`
	ActiveLocks int          `json:"active_locks"`
	Paused      bool         `json:"paused"`
	Seq         uint64       `json:"seq"`
	Head        string       `json:"head"`
}

// Stats summarizes the book.
func (e *Engine) Stats() Stats {
	seq, head := e.Head()
	accounts := 0
	for a := range e.state.Balances() {
		if !a.IsEngine() {
			accounts++
		}
	}
	return Stats{
		Supply:      e.state.Supply(),
		Escrowed:    e.Escrowed(),
		Reserve:     e.Reserve(),
		AccruedFees: e.state.AccruedFees(),
		Accounts:    accounts,
		ActiveLocks: len(e.ActiveLocks()),
		Paused:      e.state.Paused(),
		Seq:         seq,
		Head:        head,
	}
}

// CheckInvariants verifies that balances add up to the supply and that the
// escrow account holds exactly the open lock amounts.
func (e *Engine) CheckInvariants() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	sum, err := e.state.BalanceSum()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	if supply := e.state.Supply(); sum != supply {
		return fmt.Errorf("%w: balances %s, supply %s", ErrInvariant, sum, supply)
	}

	var locked types.Amount
	for _, l := range e.ActiveLocks() {
		if locked, err = locked.Add(l.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrInvariant, err)
		}
	}
	if escrowed := e.Escrowed(); locked != escrowed {
		return fmt.Errorf("%w: open locks %s, escrow account %s", ErrInvariant, locked, escrowed)
	}
	return nil
}

// Journal returns committed entries after opts.AfterSeq.
func (e *Engine) Journal(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	return e.store.ListEntries(ctx, opts)
}

// VerifyJournal re-reads the whole journal from the store and checks the
// hash chain. It returns the number of verified entries.
func (e *Engine) VerifyJournal(ctx context.Context) (int, error) {
	var (
		v     journal.Verifier
		count int
		after uint64
	)
	for {
		page, err := e.store.ListEntries(ctx, journal.ListOpts{AfterSeq: after, Limit: replayPageSize})
		if err != nil {
			return count, fmt.Errorf("escrow: read journal: %w", err)
		}
		for _, entry := range page {
			if err := v.Next(entry); err != nil {
				return count, err
			}
			after = entry.Seq
			count++
		}
		if len(page) < replayPageSize {
			break
		}
	}
	if seq, hash := e.Head(); seq != 0 {
		if vs, vh := v.Head(); vs < seq || (vs == seq && vh != hash) {
			return count, fmt.Errorf("%w: store head %d does not match engine head %d", ErrJournalCorrupt, vs, seq)
		}
	}
	return count, nil
}

// Ping checks that the journal store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Started reports whether Start completed and Stop has not been called.
func (e *Engine) Started() bool {
	return e.started.Load()
}
