package escrow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/oracle"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/swap"
	"github.com/xraph/escrow/types"
)

const (
	admin    types.Address = "admin"
	treasury types.Address = "treasury"
	operator types.Address = "operator"
	service  types.Address = "svc"
	pauser   types.Address = "pauser"
	upgrader types.Address = "upgrader"
	alice    types.Address = "alice"
	bob      types.Address = "bob"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testGenesis() escrow.Genesis {
	return escrow.Genesis{
		Admin:    admin,
		Treasury: treasury,
		Roles: map[access.Role][]types.Address{
			access.RoleOperator: {operator},
			access.RoleService:  {service},
			access.RolePauser:   {pauser},
			access.RoleUpgrader: {upgrader},
		},
		Balances: map[types.Address]types.Amount{
			alice:                1000,
			bob:                  1000,
			types.ReserveAccount: 10000,
		},
	}
}

type harness struct {
	engine  *escrow.Engine
	store   *memory.Store
	journal *failingStore
	clock   *fakeClock
	events  *eventLog
}

// failingStore wraps a memory store and fails appends on demand.
type failingStore struct {
	*memory.Store

	mu   sync.Mutex
	errs []error
}

// failNext makes the next len(errs) appends return errs in order. A nil
// entry lets that append through.
func (s *failingStore) failNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

func (s *failingStore) AppendEntry(ctx context.Context, e *journal.Entry) error {
	s.mu.Lock()
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.AppendEntry(ctx, e)
}

// eventLog is a plugin that keeps every event it sees.
type eventLog struct {
	mu       sync.Mutex
	events   []event.Event
	failures []error
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) OnEvent(_ context.Context, evt *event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *evt)
	return nil
}

func (l *eventLog) OnOperationFailed(_ context.Context, _ string, _ types.Address, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, err)
	return nil
}

func (l *eventLog) kinds() []event.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Kind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func (l *eventLog) last(kind event.Kind) (event.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Kind == kind {
			return l.events[i], true
		}
	}
	return event.Event{}, false
}

func (l *eventLog) count(kind event.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func newHarness(t *testing.T, opts ...escrow.Option) *harness {
	t.Helper()
	h := &harness{
		store:  memory.New(),
		clock:  &fakeClock{now: epoch},
		events: &eventLog{},
	}
	all := append([]escrow.Option{
		escrow.WithClock(h.clock.Now),
		escrow.WithGenesis(testGenesis()),
		escrow.WithPlugin(h.events),
	}, opts...)
	h.journal = &failingStore{Store: h.store}
	h.engine = escrow.New(h.journal, all...)
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.engine.Stop() })
	return h
}

// snapshot is the externally visible book of one account.
type snapshot struct {
	balance   types.Amount
	allowance types.Amount
	supply    types.Amount
	fees      types.Amount
	seq       uint64
}

func (h *harness) snapshot(account types.Address) snapshot {
	seq, _ := h.engine.Head()
	return snapshot{
		balance:   h.engine.BalanceOf(account),
		allowance: h.engine.AllowanceOf(account),
		supply:    h.engine.TotalSupply(),
		fees:      h.engine.AccruedFees(),
		seq:       seq,
	}
}

// checkBook fails the test if the book invariants do not hold.
func (h *harness) checkBook(t *testing.T) {
	t.Helper()
	if err := h.engine.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Swap collaborators
// ──────────────────────────────────────────────────

// fakeAsset keeps balances of an external asset.
type fakeAsset struct {
	mu          sync.Mutex
	balances    map[types.Address]types.Amount
	failPull    error
	failPush    error
	transferred []types.Amount
}

func newFakeAsset(balances map[types.Address]types.Amount) *fakeAsset {
	if balances == nil {
		balances = map[types.Address]types.Amount{}
	}
	return &fakeAsset{balances: balances}
}

func (a *fakeAsset) TransferFrom(_ context.Context, from, to types.Address, amount types.Amount) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failPull != nil {
		return a.failPull
	}
	if a.balances[from] < amount {
		return errors.New("fake asset: insufficient balance")
	}
	a.balances[from] -= amount
	a.balances[to] += amount
	return nil
}

func (a *fakeAsset) Transfer(_ context.Context, to types.Address, amount types.Amount) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failPush != nil {
		return a.failPush
	}
	a.balances[to] += amount
	a.transferred = append(a.transferred, amount)
	return nil
}

func (a *fakeAsset) balance(of types.Address) types.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[of]
}

// fakeVenue quotes amountIn * rate and optionally misbehaves on Exchange.
type fakeVenue struct {
	rate     types.Amount
	shortBy  types.Amount
	failWith error
	onQuote  func(ctx context.Context) error
	exchange func(ctx context.Context) error
}

func (v *fakeVenue) Quote(ctx context.Context, amountIn types.Amount) (swap.Quote, error) {
	if v.onQuote != nil {
		if err := v.onQuote(ctx); err != nil {
			return swap.Quote{}, err
		}
	}
	return swap.Quote{AmountIn: amountIn, AmountOut: amountIn * v.rate}, nil
}

func (v *fakeVenue) Exchange(ctx context.Context, amountIn, minOut types.Amount) (types.Amount, error) {
	if v.exchange != nil {
		if err := v.exchange(ctx); err != nil {
			return 0, err
		}
	}
	if v.failWith != nil {
		return 0, v.failWith
	}
	return amountIn*v.rate - v.shortBy, nil
}

type swapRig struct {
	base  *fakeAsset
	quote *fakeAsset
	venue *fakeVenue
	feed  *oracle.StaticFeed
}

func newSwapRig(t *testing.T, price string) *swapRig {
	t.Helper()
	feed, err := oracle.NewStaticFeed(price, epoch)
	if err != nil {
		t.Fatal(err)
	}
	return &swapRig{
		base:  newFakeAsset(map[types.Address]types.Amount{alice: 5000}),
		quote: newFakeAsset(nil),
		venue: &fakeVenue{rate: 1},
		feed:  feed,
	}
}

func (r *swapRig) option() escrow.Option {
	return escrow.WithSwap(escrow.SwapConfig{
		Feed:  r.feed,
		Venue: r.venue,
		Base:  r.base,
		Quote: r.quote,
	})
}

func (r *swapRig) setPrice(t *testing.T, price string, at time.Time) {
	t.Helper()
	r.feed.Reading = oracle.Reading{Value: decimal.RequireFromString(price), UpdatedAt: at}
}
