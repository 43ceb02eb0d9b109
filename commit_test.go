package escrow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/journal"
)

var errDiskFull = errors.New("disk full")

func TestDebitJournalFailureLeavesBook(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.engine.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatal(err)
	}
	before := h.snapshot(alice)

	h.journal.failNext(errDiskFull)
	if err := h.engine.Debit(ctx, service, alice, 50, "llm"); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if got := h.snapshot(alice); got != before {
		t.Errorf("book = %+v, want %+v", got, before)
	}
	h.checkBook(t)

	if err := h.engine.Debit(ctx, service, alice, 50, "llm"); err != nil {
		t.Fatalf("Debit after recovery: %v", err)
	}
}

func TestSwapJournalFailureRefundsBase(t *testing.T) {
	ctx := context.Background()
	rig := newSwapRig(t, "2")
	h := newHarness(t, rig.option())
	before := h.snapshot(alice)
	reserve := h.engine.Reserve()

	h.journal.failNext(errDiskFull)
	if _, err := h.engine.Swap(ctx, alice, 1000, 1); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}

	if got := h.snapshot(alice); got != before {
		t.Errorf("book = %+v, want %+v", got, before)
	}
	if got := h.engine.Reserve(); got != reserve {
		t.Errorf("reserve = %d, want %d", got, reserve)
	}
	if got := rig.base.balance(alice); got != 5000 {
		t.Errorf("alice base = %d, want 5000", got)
	}
	if n := h.events.count(event.KindSwapExecuted); n != 0 {
		t.Errorf("swap_executed events = %d, want 0", n)
	}
	h.checkBook(t)
}

func TestSwapJournalFailureRefundFails(t *testing.T) {
	ctx := context.Background()
	rig := newSwapRig(t, "2")
	h := newHarness(t, rig.option())
	errFrozen := errors.New("base asset frozen")
	rig.base.failPush = errFrozen

	h.journal.failNext(errDiskFull)
	_, err := h.engine.Swap(ctx, alice, 1000, 1)
	if !errors.Is(err, errDiskFull) || !errors.Is(err, errFrozen) {
		t.Fatalf("err = %v, want disk full joined with refund failure", err)
	}
	if got := h.engine.BalanceOf(alice); got != 1000 {
		t.Errorf("alice ledger = %d, want 1000", got)
	}
}

func TestCollectFeesJournalFailure(t *testing.T) {
	ctx := context.Background()
	rig := newSwapRig(t, "2")
	h := newHarness(t, rig.option())
	if _, err := h.engine.Swap(ctx, alice, 1000, 1); err != nil {
		t.Fatal(err)
	}
	before := h.snapshot(treasury)

	h.journal.failNext(errDiskFull)
	if _, err := h.engine.CollectFees(ctx, treasury); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if got := h.snapshot(treasury); got != before {
		t.Errorf("book = %+v, want %+v", got, before)
	}
	if got := rig.quote.balance(treasury); got != 0 {
		t.Errorf("treasury quote = %d, want 0", got)
	}

	got, err := h.engine.CollectFees(ctx, treasury)
	if err != nil {
		t.Fatalf("CollectFees: %v", err)
	}
	if got != 3 {
		t.Errorf("collected = %d, want 3", got)
	}
	if bal := rig.quote.balance(treasury); bal != 3 {
		t.Errorf("treasury quote = %d, want 3", bal)
	}
	if fees := h.engine.AccruedFees(); fees != 0 {
		t.Errorf("accrued fees = %d, want 0", fees)
	}
}

func TestCollectFeesTransferFailureIsReverted(t *testing.T) {
	ctx := context.Background()
	rig := newSwapRig(t, "2")
	h := newHarness(t, rig.option())
	if _, err := h.engine.Swap(ctx, alice, 1000, 1); err != nil {
		t.Fatal(err)
	}
	seq, _ := h.engine.Head()
	rig.quote.failPush = errors.New("quote asset frozen")

	if _, err := h.engine.CollectFees(ctx, treasury); err == nil {
		t.Fatal("expected error")
	}
	if got := h.engine.AccruedFees(); got != 3 {
		t.Errorf("accrued fees = %d, want 3", got)
	}
	if n := h.events.count(event.KindFeesCollected); n != 0 {
		t.Errorf("fees_collected events = %d, want 0", n)
	}

	entries, err := h.engine.Journal(ctx, journal.ListOpts{AfterSeq: seq})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Operation != "collect_fees" || entries[1].Operation != "revert" {
		t.Fatalf("journal tail = %+v, want collect_fees then revert", entries)
	}
	if _, err := h.engine.VerifyJournal(ctx); err != nil {
		t.Fatalf("VerifyJournal: %v", err)
	}

	if err := h.engine.Stop(); err != nil {
		t.Fatal(err)
	}
	h.store.Reopen()
	restarted := escrow.New(h.store, escrow.WithClock(h.clock.Now), rig.option())
	if err := restarted.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer restarted.Stop()
	if got := restarted.AccruedFees(); got != 3 {
		t.Errorf("replayed accrued fees = %d, want 3", got)
	}
}

func TestCollectFeesRevertFailureMatchesJournal(t *testing.T) {
	ctx := context.Background()
	rig := newSwapRig(t, "2")
	h := newHarness(t, rig.option())
	if _, err := h.engine.Swap(ctx, alice, 1000, 1); err != nil {
		t.Fatal(err)
	}
	seq, _ := h.engine.Head()
	rig.quote.failPush = errors.New("quote asset frozen")

	h.journal.failNext(nil, errDiskFull)
	if _, err := h.engine.CollectFees(ctx, treasury); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if got := rig.quote.balance(treasury); got != 0 {
		t.Errorf("treasury quote = %d, want 0", got)
	}
	if got, _ := h.engine.Head(); got != seq+1 {
		t.Errorf("head = %d, want %d", got, seq+1)
	}
	if got := h.engine.AccruedFees(); got != 0 {
		t.Errorf("accrued fees = %d, want 0 as journaled", got)
	}
	if _, err := h.engine.VerifyJournal(ctx); err != nil {
		t.Fatalf("VerifyJournal: %v", err)
	}
}

func TestCallbackWithFreshContextRejected(t *testing.T) {
	tests := []struct {
		name string
		hook func(r *swapRig, fn func(context.Context) error)
	}{
		{"venue quote", func(r *swapRig, fn func(context.Context) error) { r.venue.onQuote = fn }},
		{"venue exchange", func(r *swapRig, fn func(context.Context) error) { r.venue.exchange = fn }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rig := newSwapRig(t, "2")
			h := newHarness(t, rig.option())
			if err := h.engine.SetAllowance(ctx, operator, alice, 500); err != nil {
				t.Fatal(err)
			}

			var inner error
			tt.hook(rig, func(context.Context) error {
				inner = h.engine.Debit(context.Background(), service, alice, 1, "nested")
				return nil
			})

			done := make(chan error, 1)
			go func() {
				_, err := h.engine.Swap(ctx, alice, 1000, 1)
				done <- err
			}()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Swap: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Swap blocked on a nested call")
			}

			if !errors.Is(inner, escrow.ErrReentrantCall) {
				t.Fatalf("inner = %v, want ErrReentrantCall", inner)
			}
			if err := h.engine.Debit(ctx, service, alice, 1, "after"); err != nil {
				t.Fatalf("Debit after swap: %v", err)
			}
		})
	}
}
