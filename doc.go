// Package escrow provides an embeddable token ledger with spending
// allowances, time-locked resource reservations and an oracle-priced swap.
//
// Escrow is a library, not a service. It keeps the book in memory, writes
// every accepted operation to a hash-chained journal and rebuilds the book
// from that journal on Start. It provides:
//
//   - Service-initiated debits bounded by per-user allowances and a global ceiling
//   - Resource locks that settle after maturity or close early for a fee
//   - A swap path priced by a staleness-checked oracle with slippage protection
//   - Role-based administration with global and per-operation pause switches
//   - Typed plugin hooks for audit trails and metrics
//   - Journal stores for memory, SQLite, PostgreSQL and MongoDB
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/escrow"
//	    "github.com/xraph/escrow/store/memory"
//	)
//
//	e := escrow.New(memory.New(),
//	    escrow.WithGenesis(escrow.Genesis{
//	        Admin:    "admin",
//	        Treasury: "treasury",
//	        Balances: map[escrow.Address]escrow.Amount{"alice": 1000},
//	    }),
//	)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
//	id, err := e.Lock(ctx, "alice", 100, time.Hour, "gpu")
//
// # Atomicity
//
// An operation either commits completely or leaves no trace. Checks run
// against a copy-on-write view of the book, external collaborators (oracle
// feed, exchange venue, assets) are called before anything is applied and
// the single journal append is the commit point. Operations are serialized;
// queries read the last committed state.
//
// # Journal
//
// Each entry carries the events and absolute state changes of one operation
// together with the BLAKE3 hash of its predecessor. Start verifies the whole
// chain and refuses to run on a tampered journal.
package escrow
