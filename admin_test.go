package escrow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	cfg := e.Config()
	cfg.MaxSpendAmount = 100
	cfg.SwapFeeBps = 50
	if err := e.UpdateConfig(ctx, operator, cfg); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := e.Config(); got != cfg {
		t.Errorf("config = %+v, want %+v", got, cfg)
	}
	if n := h.events.count(event.KindConfigChanged); n != 2 {
		t.Errorf("config_changed events = %d, want 2", n)
	}
	evt, _ := h.events.last(event.KindConfigChanged)
	if evt.Field != "swap_fee_bps" || evt.Old != "30" || evt.New != "50" {
		t.Errorf("config_changed = %+v", evt)
	}

	// The new ceiling applies immediately.
	if err := e.SetAllowance(ctx, operator, alice, 500); err != nil {
		t.Fatal(err)
	}
	if err := e.Debit(ctx, service, alice, 101, "llm"); !errors.Is(err, escrow.ErrExceedsCeiling) {
		t.Errorf("debit err = %v, want ErrExceedsCeiling", err)
	}
}

func TestUpdateConfigRejected(t *testing.T) {
	tests := []struct {
		name   string
		caller types.Address
		mutate func(c *config.Config)
		want   error
	}{
		{"not an operator", alice, func(c *config.Config) { c.MaxSpendAmount = 5 }, escrow.ErrUnauthorized},
		{"zero ceiling", operator, func(c *config.Config) { c.MaxSpendAmount = 0 }, escrow.ErrInvalidConfig},
		{"zero duration", operator, func(c *config.Config) { c.MaxLockDuration = 0 }, escrow.ErrInvalidConfig},
		{"emergency fee too high", operator, func(c *config.Config) { c.EmergencyUnlockFeeBps = 1001 }, escrow.ErrInvalidConfig},
		{"swap fee too high", operator, func(c *config.Config) { c.SwapFeeBps = 1001 }, escrow.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			before := h.engine.Config()
			cfg := before
			tt.mutate(&cfg)

			err := h.engine.UpdateConfig(context.Background(), tt.caller, cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if got := h.engine.Config(); got != before {
				t.Errorf("config changed to %+v", got)
			}
		})
	}
}

func TestUpdateConfigUnchangedIsNoop(t *testing.T) {
	h := newHarness(t)
	seq, _ := h.engine.Head()
	if err := h.engine.UpdateConfig(context.Background(), operator, h.engine.Config()); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.engine.Head(); got != seq {
		t.Errorf("no-op update advanced the journal to %d", got)
	}
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.GrantRole(ctx, admin, access.RoleService, bob); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if !e.HasRole(access.RoleService, bob) {
		t.Error("bob should be a service")
	}
	evt, _ := h.events.last(event.KindRoleGranted)
	if evt.Account != bob || evt.Role != string(access.RoleService) {
		t.Errorf("role_granted = %+v", evt)
	}

	if err := e.RevokeRole(ctx, admin, access.RoleService, bob); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	if e.HasRole(access.RoleService, bob) {
		t.Error("bob should no longer be a service")
	}

	if err := e.GrantRole(ctx, operator, access.RoleAdmin, operator); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Errorf("non-admin grant err = %v, want ErrUnauthorized", err)
	}
	if err := e.GrantRole(ctx, admin, access.Role("auditor"), bob); !errors.Is(err, escrow.ErrInvalidRole) {
		t.Errorf("unknown role err = %v, want ErrInvalidRole", err)
	}
}

func TestLastAdminCannotBeRevoked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.RevokeRole(ctx, admin, access.RoleAdmin, admin); !errors.Is(err, escrow.ErrLastAdmin) {
		t.Fatalf("err = %v, want ErrLastAdmin", err)
	}
	if err := e.GrantRole(ctx, admin, access.RoleAdmin, bob); err != nil {
		t.Fatal(err)
	}
	if err := e.RevokeRole(ctx, bob, access.RoleAdmin, admin); err != nil {
		t.Fatalf("revoke with a second admin: %v", err)
	}
	if got := e.Members(access.RoleAdmin); len(got) != 1 || got[0] != bob {
		t.Errorf("admins = %v, want [bob]", got)
	}
}

func TestPauseRequiresPauser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.engine.Pause(ctx, alice); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := h.engine.Pause(ctx, pauser); err != nil {
		t.Fatal(err)
	}
	if !h.engine.Paused() {
		t.Error("engine should be paused")
	}
	if err := h.engine.Pause(ctx, pauser); err != nil {
		t.Fatalf("repeat pause: %v", err)
	}
	if n := h.events.count(event.KindPaused); n != 1 {
		t.Errorf("paused events = %d, want 1", n)
	}
}

func TestSetFunctionPaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.SetFunctionPaused(ctx, pauser, pause.OpDebit, true); err != nil {
		t.Fatal(err)
	}
	if err := e.SetAllowance(ctx, operator, alice, 100); err != nil {
		t.Fatalf("unrelated operation blocked: %v", err)
	}
	if err := e.Debit(ctx, service, alice, 10, "llm"); !errors.Is(err, escrow.ErrFunctionPaused) {
		t.Errorf("debit err = %v, want ErrFunctionPaused", err)
	}
	if ops := e.PausedOperations(); len(ops) != 1 || ops[0] != pause.OpDebit {
		t.Errorf("paused operations = %v", ops)
	}
	evt, _ := h.events.last(event.KindFunctionPauseChanged)
	if evt.Operation != string(pause.OpDebit) || !evt.Paused {
		t.Errorf("function_pause_changed = %+v", evt)
	}

	if err := e.SetFunctionPaused(ctx, pauser, pause.Operation("teleport"), true); !errors.Is(err, escrow.ErrInvalidOp) {
		t.Errorf("unknown op err = %v, want ErrInvalidOp", err)
	}
}

func TestAdminStillWorksWhilePaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine
	if err := e.Pause(ctx, pauser); err != nil {
		t.Fatal(err)
	}
	if err := e.GrantRole(ctx, admin, access.RolePauser, bob); err != nil {
		t.Errorf("GrantRole while paused: %v", err)
	}
	if err := e.AuthorizeUpgrade(ctx, upgrader, "v2"); err != nil {
		t.Errorf("AuthorizeUpgrade while paused: %v", err)
	}
	if err := e.Mint(ctx, admin, alice, 1); !errors.Is(err, escrow.ErrPaused) {
		t.Errorf("mint err = %v, want ErrPaused", err)
	}
}

func TestSetTreasury(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.SetTreasury(ctx, admin, bob); err != nil {
		t.Fatal(err)
	}
	if e.Treasury() != bob {
		t.Errorf("treasury = %s, want bob", e.Treasury())
	}
	evt, _ := h.events.last(event.KindTreasuryChanged)
	if evt.Old != string(treasury) || evt.New != string(bob) {
		t.Errorf("treasury_changed = %+v", evt)
	}

	// Emergency penalties follow the new treasury.
	id, _ := e.Lock(ctx, alice, 100, time.Hour, "gpu")
	if err := e.EmergencyClose(ctx, alice, id); err != nil {
		t.Fatal(err)
	}
	if got := e.BalanceOf(bob); got != 1005 {
		t.Errorf("bob = %d, want 1005", got)
	}

	if err := e.SetTreasury(ctx, admin, types.ReserveAccount); !errors.Is(err, escrow.ErrEngineAccount) {
		t.Errorf("engine treasury err = %v, want ErrEngineAccount", err)
	}
	if err := e.SetTreasury(ctx, operator, alice); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Errorf("non-admin err = %v, want ErrUnauthorized", err)
	}
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.Mint(ctx, admin, alice, 250); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(ctx, admin, types.ReserveAccount, 50); err != nil {
		t.Fatalf("mint to reserve: %v", err)
	}
	if got := e.TotalSupply(); got != 12300 {
		t.Errorf("supply = %d, want 12300", got)
	}
	if err := e.Mint(ctx, admin, types.EscrowAccount, 1); !errors.Is(err, escrow.ErrEngineAccount) {
		t.Errorf("mint into escrow err = %v, want ErrEngineAccount", err)
	}
	if err := e.Mint(ctx, operator, alice, 1); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Errorf("non-admin err = %v, want ErrUnauthorized", err)
	}
	h.checkBook(t)
}

func TestAuthorizeUpgrade(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.engine

	if err := e.AuthorizeUpgrade(ctx, upgrader, " v1.2.0 "); err != nil {
		t.Fatal(err)
	}
	if e.Version() != "v1.2.0" {
		t.Errorf("version = %q", e.Version())
	}
	evt, _ := h.events.last(event.KindUpgradeAuthorized)
	if evt.Version != "v1.2.0" {
		t.Errorf("upgrade_authorized = %+v", evt)
	}
	if err := e.AuthorizeUpgrade(ctx, admin, "v2"); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Errorf("non-upgrader err = %v, want ErrUnauthorized", err)
	}
	if err := e.AuthorizeUpgrade(ctx, upgrader, "  "); !escrow.IsValidation(err) {
		t.Errorf("empty version err = %v, want validation error", err)
	}
}
