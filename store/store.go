package store

import (
	"context"

	"github.com/xraph/escrow/journal"
)

// Store is the persistence interface of the engine. The journal is the only
// durable record; balances, locks and roles are rebuilt from it.
type Store interface {
	journal.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
