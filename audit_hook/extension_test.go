package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/escrow"
	audithook "github.com/xraph/escrow/audit_hook"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/types"
)

type capture struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *capture) record(_ context.Context, evt *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capture) find(action string) *audithook.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func quiet() audithook.Option {
	return audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAuditTrailFromEngine(t *testing.T) {
	ctx := context.Background()
	c := &capture{}
	hook := audithook.New(audithook.RecorderFunc(c.record), quiet())

	e := escrow.New(memory.New(),
		escrow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		escrow.WithPlugin(hook),
		escrow.WithGenesis(escrow.Genesis{
			Admin:    "admin",
			Treasury: "treasury",
			Balances: map[types.Address]types.Amount{"alice": 1000},
		}),
	)
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	id, err := e.Lock(ctx, "alice", 200, time.Hour, "gpu")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.EmergencyClose(ctx, "alice", id); err != nil {
		t.Fatal(err)
	}
	_ = e.Debit(ctx, "bob", "alice", 10, "llm")

	if got := c.find(audithook.ActionSupplyMinted); got == nil || got.ResourceID != "alice" {
		t.Errorf("genesis mint audit = %+v", got)
	}
	closed := c.find(audithook.ActionLockEmergencyClosed)
	if closed == nil {
		t.Fatal("missing emergency close audit event")
	}
	if closed.ResourceID != "alice/1" || closed.Severity != audithook.SeverityWarning ||
		closed.Category != audithook.CategoryEscrow {
		t.Errorf("emergency close audit = %+v", closed)
	}
	if closed.Metadata["fee"] != types.Amount(10) || closed.Metadata["treasury"] != types.Address("treasury") {
		t.Errorf("metadata = %v", closed.Metadata)
	}

	failed := c.find(audithook.ActionOperationFailed)
	if failed == nil {
		t.Fatal("missing operation failure audit event")
	}
	if failed.Outcome != audithook.OutcomeFailure || failed.Category != audithook.CategoryAccess ||
		failed.ResourceID != "debit" || failed.Reason == "" {
		t.Errorf("failure audit = %+v", failed)
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	spend := &event.Event{Kind: event.KindSpend, Account: "alice", Amount: 5}
	lock := &event.Event{Kind: event.KindLockOpened, Account: "alice", LockID: 1}

	tests := []struct {
		name string
		opt  audithook.Option
		want []string
	}{
		{"all by default", nil, []string{audithook.ActionSpendDebited, audithook.ActionLockOpened}},
		{"enabled only", audithook.WithEnabledActions(audithook.ActionLockOpened), []string{audithook.ActionLockOpened}},
		{"disabled", audithook.WithDisabledActions(audithook.ActionLockOpened), []string{audithook.ActionSpendDebited}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &capture{}
			opts := []audithook.Option{quiet()}
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			hook := audithook.New(audithook.RecorderFunc(c.record), opts...)
			_ = hook.OnSpend(ctx, spend)
			_ = hook.OnLockOpened(ctx, lock)

			if len(c.events) != len(tt.want) {
				t.Fatalf("recorded %d events, want %d", len(c.events), len(tt.want))
			}
			for i, action := range tt.want {
				if c.events[i].Action != action {
					t.Errorf("events[%d] = %s, want %s", i, c.events[i].Action, action)
				}
			}
		})
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	hook := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}), quiet())
	if err := hook.OnSpend(context.Background(), &event.Event{Kind: event.KindSpend}); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}
