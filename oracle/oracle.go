// Package oracle reads external price feeds and rejects stale or
// non-positive readings. It performs no retries; a failed read aborts the
// operation that depends on it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStalenessWindow is the maximum accepted age of a reading.
const DefaultStalenessWindow = time.Hour

var (
	// ErrStalePrice is returned when a reading is older than the window.
	ErrStalePrice = errors.New("escrow: stale oracle price")
	// ErrInvalidPrice is returned for zero or negative readings.
	ErrInvalidPrice = errors.New("escrow: invalid oracle price")
)

// Reading is one observation from a feed. Value is the price of one whole
// ledger token expressed in quote-asset units.
type Reading struct {
	Value     decimal.Decimal `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Feed is an external price source for one asset pair. Latest is called
// while the engine holds its writer lock and must not block on the engine.
type Feed interface {
	Latest(ctx context.Context) (Reading, error)
}

// FeedFunc adapts a plain function to a Feed.
type FeedFunc func(ctx context.Context) (Reading, error)

// Latest implements Feed.
func (f FeedFunc) Latest(ctx context.Context) (Reading, error) { return f(ctx) }

// Gateway validates readings against a staleness window.
type Gateway struct {
	window time.Duration
	clock  func() time.Time
}

// NewGateway returns a Gateway. A non-positive window selects
// DefaultStalenessWindow and a nil clock selects time.Now.
func NewGateway(window time.Duration, clock func() time.Time) *Gateway {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{window: window, clock: clock}
}

// Window returns the configured staleness window.
func (g *Gateway) Window() time.Duration { return g.window }

// Price reads the latest value from feed.
func (g *Gateway) Price(ctx context.Context, feed Feed) (Reading, error) {
	if feed == nil {
		return Reading{}, fmt.Errorf("%w: no feed configured", ErrInvalidPrice)
	}
	r, err := feed.Latest(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("escrow: read oracle feed: %w", err)
	}
	if !r.Value.IsPositive() {
		return Reading{}, fmt.Errorf("%w: %s", ErrInvalidPrice, r.Value)
	}
	if age := g.clock().Sub(r.UpdatedAt); age > g.window {
		return Reading{}, fmt.Errorf("%w: reading is %s old", ErrStalePrice, age.Truncate(time.Second))
	}
	return r, nil
}

// StaticFeed is a Feed that always returns the same reading. It is useful for
// fixed-price deployments and tests.
type StaticFeed struct {
	Reading Reading
}

// NewStaticFeed parses value and stamps it at updatedAt.
func NewStaticFeed(value string, updatedAt time.Time) (*StaticFeed, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("escrow: parse static price %q: %w", value, err)
	}
	return &StaticFeed{Reading: Reading{Value: d, UpdatedAt: updatedAt}}, nil
}

// Latest implements Feed.
func (f *StaticFeed) Latest(context.Context) (Reading, error) { return f.Reading, nil }
