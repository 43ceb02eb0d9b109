package escrow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/types"
)

func TestDebit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatalf("SetAllowance: %v", err)
	}
	if err := e.Debit(ctx, service, alice, 50, "llm"); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	if got := e.BalanceOf(alice); got != 950 {
		t.Errorf("balance = %d, want 950", got)
	}
	if got := e.AllowanceOf(alice); got != 450 {
		t.Errorf("allowance = %d, want 450", got)
	}
	if got := e.TotalSupply(); got != 11950 {
		t.Errorf("supply = %d, want 11950", got)
	}

	spend, ok := h.events.last(event.KindSpend)
	if !ok || spend.Account != alice || spend.Amount != 50 || spend.ServiceTag != "llm" {
		t.Errorf("spend event = %+v", spend)
	}
	if _, ok := h.events.last(event.KindSupplyReduced); !ok {
		t.Error("missing supply_reduced event")
	}
	h.checkBook(t)
}

func TestDebitRejected(t *testing.T) {
	tests := []struct {
		name   string
		caller types.Address
		user   types.Address
		amount types.Amount
		want   error
	}{
		{"over allowance", service, alice, 600, escrow.ErrInsufficientAllowance},
		{"over balance", service, alice, 1100, escrow.ErrInsufficientBalance},
		{"over ceiling", service, alice, 1_000_001, escrow.ErrExceedsCeiling},
		{"zero amount", service, alice, 0, escrow.ErrZeroAmount},
		{"not a service", operator, alice, 10, escrow.ErrUnauthorized},
		{"empty user", service, "", 10, escrow.ErrZeroAddress},
		{"engine account", service, types.EscrowAccount, 10, escrow.ErrEngineAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			e := h.engine
			if err := e.SetAllowance(ctx, operator, alice, 2_000_000); err != nil {
				t.Fatal(err)
			}
			if tt.name == "over allowance" {
				if err := e.SetAllowance(ctx, operator, alice, 500); err != nil {
					t.Fatal(err)
				}
			}
			allowance := e.AllowanceOf(alice)
			seq, _ := e.Head()

			err := e.Debit(ctx, tt.caller, tt.user, tt.amount, "llm")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if got := e.BalanceOf(alice); got != 1000 {
				t.Errorf("balance = %d, want 1000", got)
			}
			if got := e.AllowanceOf(alice); got != allowance {
				t.Errorf("allowance = %d, want %d", got, allowance)
			}
			if got := e.TotalSupply(); got != 12000 {
				t.Errorf("supply = %d, want 12000", got)
			}
			if got, _ := e.Head(); got != seq {
				t.Errorf("journal advanced to %d", got)
			}
		})
	}
}

func TestSetAllowanceRequiresOperator(t *testing.T) {
	h := newHarness(t)
	err := h.engine.SetAllowance(context.Background(), alice, alice, 500)
	if !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if got := h.engine.AllowanceOf(alice); got != 0 {
		t.Errorf("allowance = %d, want 0", got)
	}
}

func TestSetAllowanceEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.engine.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.SetAllowance(ctx, operator, alice, 200); err != nil {
		t.Fatal(err)
	}
	evt, _ := h.events.last(event.KindAllowanceSet)
	if evt.Old != "500" || evt.New != "200" || evt.Amount != 200 {
		t.Errorf("allowance_set = %+v", evt)
	}
}

func TestBatchSetAllowances(t *testing.T) {
	ctx := context.Background()

	t.Run("applies all", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.BatchSetAllowances(ctx, operator,
			[]types.Address{alice, bob}, []types.Amount{100, 200})
		if err != nil {
			t.Fatal(err)
		}
		if h.engine.AllowanceOf(alice) != 100 || h.engine.AllowanceOf(bob) != 200 {
			t.Errorf("allowances = %d, %d", h.engine.AllowanceOf(alice), h.engine.AllowanceOf(bob))
		}
		if n := h.events.count(event.KindAllowanceSet); n != 2 {
			t.Errorf("allowance_set events = %d, want 2", n)
		}
	})

	t.Run("all or nothing", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.BatchSetAllowances(ctx, operator,
			[]types.Address{alice, types.EscrowAccount, bob}, []types.Amount{100, 200, 300})
		if !escrow.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
		if h.engine.AllowanceOf(alice) != 0 || h.engine.AllowanceOf(bob) != 0 {
			t.Error("partial batch was applied")
		}
		if n := h.events.count(event.KindAllowanceSet); n != 0 {
			t.Errorf("allowance_set events = %d, want 0", n)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.BatchSetAllowances(ctx, operator,
			[]types.Address{alice, bob}, []types.Amount{100})
		if !errors.Is(err, escrow.ErrLengthMismatch) {
			t.Fatalf("err = %v, want ErrLengthMismatch", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.BatchSetAllowances(ctx, operator, nil, nil)
		if !errors.Is(err, escrow.ErrEmptyBatch) {
			t.Fatalf("err = %v, want ErrEmptyBatch", err)
		}
	})
}

func TestConcurrentDebitsShareOneAllowance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine
	if err := e.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatal(err)
	}

	const callers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Debit(ctx, service, alice, 50, "llm")
			switch {
			case err == nil:
				succeeded.Add(1)
			case !errors.Is(err, escrow.ErrInsufficientAllowance):
				t.Errorf("Debit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := succeeded.Load(); got != 10 {
		t.Errorf("successful debits = %d, want 10", got)
	}
	if got := e.BalanceOf(alice); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}
	if got := e.AllowanceOf(alice); got != 0 {
		t.Errorf("allowance = %d, want 0", got)
	}
	h.checkBook(t)
}
