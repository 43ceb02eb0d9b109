package escrow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/types"
)

func TestGenesis(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	if got := e.TotalSupply(); got != 12000 {
		t.Errorf("supply = %d, want 12000", got)
	}
	if got := e.BalanceOf(alice); got != 1000 {
		t.Errorf("alice = %d, want 1000", got)
	}
	if got := e.Reserve(); got != 10000 {
		t.Errorf("reserve = %d, want 10000", got)
	}
	if got := e.Treasury(); got != treasury {
		t.Errorf("treasury = %q", got)
	}
	for _, tc := range []struct {
		role    access.Role
		account types.Address
	}{
		{access.RoleAdmin, admin},
		{access.RoleOperator, operator},
		{access.RoleService, service},
		{access.RolePauser, pauser},
		{access.RoleUpgrader, upgrader},
	} {
		if !e.HasRole(tc.role, tc.account) {
			t.Errorf("%s should hold %s", tc.account, tc.role)
		}
	}
	if seq, hash := e.Head(); seq != 1 || hash == "" {
		t.Errorf("head = (%d, %q), want seq 1", seq, hash)
	}
	if n := h.events.count(event.KindMinted); n != 3 {
		t.Errorf("minted events = %d, want 3", n)
	}
	h.checkBook(t)
}

func TestStartRequiresGenesis(t *testing.T) {
	e := escrow.New(memory.New())
	err := e.Start(context.Background())
	if !errors.Is(err, escrow.ErrNoGenesis) {
		t.Fatalf("err = %v, want ErrNoGenesis", err)
	}
}

func TestGenesisValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *escrow.Genesis)
	}{
		{"missing admin", func(g *escrow.Genesis) { g.Admin = "" }},
		{"engine treasury", func(g *escrow.Genesis) { g.Treasury = types.EscrowAccount }},
		{"unknown role", func(g *escrow.Genesis) {
			g.Roles["auditor"] = []types.Address{alice}
		}},
		{"escrow balance", func(g *escrow.Genesis) {
			g.Balances[types.EscrowAccount] = 1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGenesis()
			tt.mutate(&g)
			e := escrow.New(memory.New(), escrow.WithGenesis(g))
			if err := e.Start(context.Background()); !escrow.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestOperationsBeforeStart(t *testing.T) {
	e := escrow.New(memory.New(), escrow.WithGenesis(testGenesis()))
	err := e.Debit(context.Background(), service, alice, 1, "gpu")
	if !errors.Is(err, escrow.ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func TestReplayRestoresState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatal(err)
	}
	if err := e.Debit(ctx, service, alice, 50, "llm"); err != nil {
		t.Fatal(err)
	}
	lockID, err := e.Lock(ctx, bob, 200, time.Hour, "gpu")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetFunctionPaused(ctx, pauser, escrow.Operation("swap"), true); err != nil {
		t.Fatal(err)
	}
	wantSeq, wantHash := e.Head()
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}

	h.store.Reopen()
	restarted := escrow.New(h.store, escrow.WithClock(h.clock.Now))
	if err := restarted.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer restarted.Stop()

	if seq, hash := restarted.Head(); seq != wantSeq || hash != wantHash {
		t.Errorf("head = (%d, %s), want (%d, %s)", seq, hash, wantSeq, wantHash)
	}
	if got := restarted.BalanceOf(alice); got != 950 {
		t.Errorf("alice = %d, want 950", got)
	}
	if got := restarted.AllowanceOf(alice); got != 450 {
		t.Errorf("allowance = %d, want 450", got)
	}
	if got := restarted.TotalSupply(); got != 11950 {
		t.Errorf("supply = %d, want 11950", got)
	}
	l, err := restarted.GetLock(bob, lockID)
	if err != nil || l.Amount != 200 || !l.Active() {
		t.Errorf("lock = %+v, %v", l, err)
	}
	if !restarted.FunctionPaused("swap") {
		t.Error("swap pause flag lost on replay")
	}
	if err := restarted.CheckInvariants(); err != nil {
		t.Error(err)
	}

	// Lock ids keep counting after a restart.
	next, err := restarted.Lock(ctx, bob, 10, time.Hour, "gpu")
	if err != nil {
		t.Fatal(err)
	}
	if next != lockID+1 {
		t.Errorf("next lock id = %d, want %d", next, lockID+1)
	}
}

func TestReplayDetectsTampering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.engine.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Debit(ctx, service, alice, 50, "llm"); err != nil {
		t.Fatal(err)
	}
	if n, err := h.engine.VerifyJournal(ctx); err != nil || n != 3 {
		t.Fatalf("VerifyJournal = %d, %v", n, err)
	}
	if err := h.engine.Stop(); err != nil {
		t.Fatal(err)
	}

	h.store.Reopen()
	entries, err := h.store.ListEntries(ctx, journal.ListOpts{AfterSeq: 2, Limit: 1})
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListEntries = %v, %v", entries, err)
	}
	forged := entries[0]
	forged.Events[0].Amount = 1
	if err := h.store.Rewrite(forged); err != nil {
		t.Fatal(err)
	}

	restarted := escrow.New(h.store)
	err = restarted.Start(ctx)
	if !errors.Is(err, escrow.ErrJournalCorrupt) {
		t.Fatalf("err = %v, want ErrJournalCorrupt", err)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	ctx := context.Background()
	rig := newSwapRig(t, "1")
	var inner error
	h := newHarness(t, rig.option())
	rig.venue.onQuote = func(ctx context.Context) error {
		inner = h.engine.Debit(ctx, service, alice, 1, "llm")
		return nil
	}

	if _, err := h.engine.Swap(ctx, alice, 10, 1); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !errors.Is(inner, escrow.ErrReentrantCall) {
		t.Fatalf("inner = %v, want ErrReentrantCall", inner)
	}
	if !escrow.IsSafety(inner) {
		t.Error("reentrancy should classify as a safety error")
	}
}

func TestRejectedOperationNotifiesPlugins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seq, _ := h.engine.Head()

	err := h.engine.Debit(ctx, alice, alice, 10, "llm")
	if !escrow.IsAuthorization(err) {
		t.Fatalf("err = %v, want authorization error", err)
	}
	var ue *escrow.UnauthorizedError
	if !errors.As(err, &ue) || ue.Role != string(access.RoleService) {
		t.Errorf("err = %#v, want UnauthorizedError{service}", err)
	}
	if len(h.events.failures) != 1 {
		t.Errorf("failures = %d, want 1", len(h.events.failures))
	}
	if got, _ := h.engine.Head(); got != seq {
		t.Errorf("rejected operation advanced the journal to %d", got)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.engine.Lock(ctx, alice, 100, time.Hour, "gpu"); err != nil {
		t.Fatal(err)
	}
	s := h.engine.Stats()
	if s.Supply != 12000 || s.Escrowed != 100 || s.ActiveLocks != 1 || s.Accounts != 2 || s.Seq != 2 {
		t.Errorf("stats = %+v", s)
	}
}
