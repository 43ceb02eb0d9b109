package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/oracle"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/state"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/swap"
	"github.com/xraph/escrow/types"
)

// replayPageSize is the number of journal entries read per page on Start.
const replayPageSize = 500

// Operation names recorded in the journal for entry points that are not
// selectively pausable.
const (
	opGenesis          = "genesis"
	opGrantRole        = "grant_role"
	opRevokeRole       = "revoke_role"
	opPause            = "pause"
	opUnpause          = "unpause"
	opSetFunctionPause = "set_function_paused"
	opAuthorizeUpgrade = "authorize_upgrade"
	opSweepMatured     = "sweep_matured"
	opRevert           = "revert"
)

// Engine is the escrow engine: a balance ledger with spending allowances,
// resource locks, an oracle-priced swap and role-gated administration.
//
// Every mutating operation is serialized, runs against a copy-on-write view
// of the book and commits only after all checks, every external call and the
// journal append succeed. A payout deferred until after the append is
// reverted in the journal if it fails. Queries read committed state and
// never block on an operation waiting for an external party.
type Engine struct {
	store   store.Store
	state   *state.State
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time
	oracle  *oracle.Gateway

	// Configuration
	stalenessWindow      time.Duration
	tokenDecimals        int32
	thirdPartySettlement bool
	autoMigrate          bool
	swap                 *SwapConfig
	genesis              *Genesis

	writeMu sync.Mutex
	head    atomic.Pointer[journal.Entry]
	started atomic.Bool
	// calling is set while the writer waits on an external collaborator.
	calling atomic.Bool
}

// SwapConfig wires the external collaborators of the swap path.
type SwapConfig struct {
	// Feed prices one whole ledger token in quote-asset units.
	Feed oracle.Feed
	// Venue exchanges the base asset for the quote asset.
	Venue swap.Venue
	// Base is the asset callers pay in.
	Base swap.Asset
	// Quote is the asset fees accrue in.
	Quote swap.Asset
}

// Genesis seeds an empty journal. It is ignored once the journal holds
// entries.
type Genesis struct {
	Admin    types.Address                   `json:"admin" yaml:"admin"`
	Treasury types.Address                   `json:"treasury" yaml:"treasury"`
	Config   *config.Config                  `json:"config,omitempty" yaml:"config,omitempty"`
	Roles    map[access.Role][]types.Address `json:"roles,omitempty" yaml:"roles,omitempty"`
	Balances map[types.Address]types.Amount  `json:"balances,omitempty" yaml:"balances,omitempty"`
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		state:           state.New(),
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		clock:           time.Now,
		stalenessWindow: oracle.DefaultStalenessWindow,
		tokenDecimals:   0,
		autoMigrate:     true,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.oracle = oracle.NewGateway(e.stalenessWindow, e.clock)
	return e
}

// Start migrates the store, replays and verifies the journal, commits the
// genesis when the journal is empty and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	genesis, err := e.start(ctx)
	if err != nil {
		return err
	}
	if genesis != nil {
		e.plugins.Emit(ctx, genesis.Events)
	}
	e.plugins.EmitInit(ctx, e)
	return nil
}

func (e *Engine) start(ctx context.Context) (*journal.Entry, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.started.Load() {
		return nil, nil
	}

	if e.autoMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}

	replayed, err := e.replay(ctx)
	if err != nil {
		return nil, err
	}

	var genesis *journal.Entry
	if e.head.Load() == nil {
		if genesis, err = e.commitGenesis(ctx); err != nil {
			return nil, err
		}
	}

	e.started.Store(true)

	e.logger.Info("escrow started",
		"replayed", replayed,
		"seq", e.head.Load().Seq,
		"head", e.head.Load().Hash,
		"staleness_window", e.stalenessWindow,
		"third_party_settlement", e.thirdPartySettlement,
		"swap_enabled", e.swap != nil,
	)

	return genesis, nil
}

// Stop shuts down the engine and closes its store.
func (e *Engine) Stop() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.started.Store(false)
	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// replay rebuilds state from the journal, verifying the chain as it goes.
func (e *Engine) replay(ctx context.Context) (int, error) {
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
			if err := e.state.Apply(entry.Changes); err != nil {
				return count, fmt.Errorf("%w: entry %d: %w", ErrJournalCorrupt, entry.Seq, err)
			}
			e.head.Store(entry)
			after = entry.Seq
			count++
		}
		if len(page) < replayPageSize {
			return count, nil
		}
	}
}

func (e *Engine) commitGenesis(ctx context.Context) (*journal.Entry, error) {
	g := e.genesis
	if g == nil {
		return nil, ErrNoGenesis
	}
	if err := checkAccount("genesis.admin", g.Admin); err != nil {
		return nil, err
	}
	if err := checkAccount("genesis.treasury", g.Treasury); err != nil {
		return nil, err
	}
	cfg := config.Default()
	if g.Config != nil {
		cfg = *g.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, invalid("genesis.config", err)
	}

	oc := &opContext{ctx: ctx, tx: e.state.Begin(), now: e.now(), caller: types.SystemCaller}
	oc.tx.SetConfig(cfg)
	oc.tx.SetTreasury(g.Treasury)

	grant := func(role access.Role, account types.Address) {
		if oc.tx.HasRole(role, account) {
			return
		}
		oc.tx.SetRole(role, account, true)
		evt := oc.newEvent(event.KindRoleGranted)
		evt.Account = account
		evt.Role = string(role)
		oc.emit(evt)
	}
	grant(access.RoleAdmin, g.Admin)
	for _, role := range access.Roles() {
		for _, account := range g.Roles[role] {
			if err := checkAccount("genesis.roles", account); err != nil {
				return nil, err
			}
			grant(role, account)
		}
	}
	for role := range g.Roles {
		if !role.Valid() {
			return nil, invalid("genesis.roles", fmt.Errorf("%w: %s", ErrInvalidRole, role))
		}
	}

	treasury := oc.newEvent(event.KindTreasuryChanged)
	treasury.Account = g.Treasury
	oc.emit(treasury)

	accounts := make([]types.Address, 0, len(g.Balances))
	for a := range g.Balances {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	for _, a := range accounts {
		if err := checkMintTarget("genesis.balances", a); err != nil {
			return nil, err
		}
		amount := g.Balances[a]
		if amount.IsZero() {
			continue
		}
		if err := oc.tx.Mint(a, amount); err != nil {
			return nil, invalid("genesis.balances", err)
		}
		evt := oc.newEvent(event.KindMinted)
		evt.Account = a
		evt.Amount = amount
		oc.emit(evt)
	}

	entry, err := e.commit(ctx, opGenesis, oc)
	if err != nil {
		return nil, err
	}
	e.logger.Info("escrow genesis committed",
		"admin", g.Admin,
		"treasury", g.Treasury,
		"supply", e.state.Supply(),
	)
	return entry, nil
}

// ──────────────────────────────────────────────────
// Operation pipeline
// ──────────────────────────────────────────────────

type engineKey struct{}

// enter marks ctx as running inside e. External collaborators receive the
// marked context.
func enter(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

func entered(ctx context.Context, e *Engine) bool {
	v, _ := ctx.Value(engineKey{}).(*Engine)
	return v == e
}

// opContext carries one operation's pending writes and events.
type opContext struct {
	ctx    context.Context
	tx     *state.Tx
	now    time.Time
	caller types.Address
	events []event.Event

	// undo reverses external effects when the journal append fails. They
	// run in reverse order.
	undo []func(context.Context) error
	// settle runs after the entry is durable and before it is applied. If
	// it fails, a revert entry restores the committed values.
	settle func(context.Context) error
}

// onAbort registers fn to undo an external effect if the operation cannot
// be journaled.
func (oc *opContext) onAbort(fn func(context.Context) error) {
	oc.undo = append(oc.undo, fn)
}

// afterJournal defers an external effect until the entry is durable.
func (oc *opContext) afterJournal(fn func(context.Context) error) {
	oc.settle = fn
}

func (oc *opContext) newEvent(kind event.Kind) event.Event {
	return event.New(kind, oc.caller, oc.now)
}

func (oc *opContext) emit(evt event.Event) {
	oc.events = append(oc.events, evt)
}

// require fails unless the caller holds role.
func (oc *opContext) require(role access.Role) error {
	if !oc.tx.HasRole(role, oc.caller) {
		return &UnauthorizedError{Role: string(role), Caller: string(oc.caller)}
	}
	return nil
}

// whenNotPaused consults the global flag, unless op ignores it, and then
// the operation's own flag.
func (oc *opContext) whenNotPaused(op pause.Operation) error {
	if !op.IgnoresGlobalPause() && oc.tx.Paused() {
		return fmt.Errorf("%w: %s", ErrPaused, op)
	}
	if oc.tx.OperationPaused(op) {
		return fmt.Errorf("%w: %s", ErrFunctionPaused, op)
	}
	return nil
}

// run executes fn as one all-or-nothing operation.
func (e *Engine) run(ctx context.Context, op string, caller types.Address, fn func(*opContext) error) error {
	entry, err := e.execute(ctx, op, caller, fn)
	if err != nil {
		e.logger.Debug("escrow operation rejected",
			"operation", op,
			"caller", caller,
			"error", err,
		)
		e.plugins.EmitOperationFailed(ctx, op, caller, err)
		return err
	}
	if entry != nil {
		e.plugins.Emit(ctx, entry.Events)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, op string, caller types.Address, fn func(*opContext) error) (*journal.Entry, error) {
	if entered(ctx, e) {
		return nil, fmt.Errorf("%w: %s", ErrReentrantCall, op)
	}
	if !e.started.Load() {
		return nil, ErrNotStarted
	}

	if err := e.acquire(op); err != nil {
		return nil, err
	}
	defer e.writeMu.Unlock()

	if !e.started.Load() {
		return nil, ErrNotStarted
	}

	oc := &opContext{
		ctx:    enter(ctx, e),
		tx:     e.state.Begin(),
		now:    e.now(),
		caller: caller,
	}
	if err := fn(oc); err != nil {
		return nil, err
	}
	if oc.tx.Empty() && len(oc.events) == 0 {
		return nil, nil
	}
	return e.commit(ctx, op, oc)
}

// acquire takes writeMu. A caller that finds the writer waiting on an
// external collaborator is a nested call that lost the marked context, and
// is rejected rather than left to deadlock. Callers from other goroutines
// see the same error while a collaborator call is in flight.
func (e *Engine) acquire(op string) error {
	if e.writeMu.TryLock() {
		return nil
	}
	if e.calling.Load() {
		return fmt.Errorf("%w: %s while an external call is in flight", ErrReentrantCall, op)
	}
	e.writeMu.Lock()
	return nil
}

// call runs fn with the external-call marker set. The caller holds writeMu.
func (e *Engine) call(fn func() error) error {
	e.calling.Store(true)
	defer e.calling.Store(false)
	return fn()
}

// commit appends the operation to the journal, runs its deferred external
// effect and then applies it. The caller holds writeMu.
func (e *Engine) commit(ctx context.Context, op string, oc *opContext) (*journal.Entry, error) {
	entry, err := e.appendEntry(ctx, e.head.Load(), op, oc.caller, oc.events, oc.tx.Changes(), oc.now)
	if err != nil {
		return nil, e.rollback(op, oc, err)
	}
	if oc.settle != nil {
		if err := e.call(func() error { return oc.settle(oc.ctx) }); err != nil {
			return nil, e.revert(ctx, op, oc, entry, err)
		}
	}
	if err := e.apply(op, entry); err != nil {
		return nil, err
	}

	e.logger.Debug("escrow operation committed",
		"operation", op,
		"caller", oc.caller,
		"seq", entry.Seq,
		"events", len(entry.Events),
		"changes", len(entry.Changes),
	)
	return entry, nil
}

func (e *Engine) appendEntry(ctx context.Context, prev *journal.Entry, op string, caller types.Address, events []event.Event, changes []state.Change, now time.Time) (*journal.Entry, error) {
	entry := journal.New(prev, op, caller, events, changes, now)
	if err := journal.Seal(entry); err != nil {
		return nil, err
	}
	if err := e.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("escrow: append journal entry %d: %w", entry.Seq, err)
	}
	return entry, nil
}

// apply moves a durable entry into state and advances the head.
func (e *Engine) apply(op string, entry *journal.Entry) error {
	e.head.Store(entry)
	if err := e.state.Apply(entry.Changes); err != nil {
		// The entry is durable; a restart replays it.
		e.logger.Error("escrow state diverged from journal",
			"operation", op,
			"seq", entry.Seq,
			"error", err,
		)
		return fmt.Errorf("escrow: apply entry %d: %w", entry.Seq, err)
	}
	return nil
}

// rollback undoes the external effects of an operation whose entry never
// reached the journal.
func (e *Engine) rollback(op string, oc *opContext, cause error) error {
	if len(oc.undo) > 0 {
		e.logger.Warn("escrow operation rolled back",
			"operation", op,
			"caller", oc.caller,
			"compensations", len(oc.undo),
			"error", cause,
		)
	}
	errs := []error{cause}
	for i := len(oc.undo) - 1; i >= 0; i-- {
		fn := oc.undo[i]
		if err := e.call(func() error { return fn(oc.ctx) }); err != nil {
			e.logger.Error("escrow compensation failed",
				"operation", op,
				"caller", oc.caller,
				"cause", cause,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// revert journals the committed values of every slot entry wrote. State is
// left untouched since entry was never applied. If the revert entry cannot
// be written, entry is applied so state matches what a replay produces.
func (e *Engine) revert(ctx context.Context, op string, oc *opContext, entry *journal.Entry, cause error) error {
	changes, err := e.state.Revert(entry.Changes)
	if err == nil {
		var rev *journal.Entry
		if rev, err = e.appendEntry(ctx, entry, opRevert, oc.caller, nil, changes, oc.now); err == nil {
			e.head.Store(rev)
			e.logger.Warn("escrow operation reverted",
				"operation", op,
				"caller", oc.caller,
				"seq", entry.Seq,
				"revert_seq", rev.Seq,
				"error", cause,
			)
			return cause
		}
	}

	e.logger.Error("escrow revert failed",
		"operation", op,
		"caller", oc.caller,
		"seq", entry.Seq,
		"cause", cause,
		"error", err,
	)
	return errors.Join(cause, err, e.apply(op, entry))
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// checkAccount rejects the zero address and engine-owned accounts.
func checkAccount(field string, a types.Address) error {
	if a.IsZero() {
		return invalid(field, ErrZeroAddress)
	}
	if a.IsEngine() {
		return invalid(field, ErrEngineAccount)
	}
	return nil
}

// checkMintTarget allows the swap reserve but no other engine account.
func checkMintTarget(field string, a types.Address) error {
	if a == types.ReserveAccount {
		return nil
	}
	return checkAccount(field, a)
}
