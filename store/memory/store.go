// Package memory provides an in-process journal store for tests and
// single-process deployments that can afford to lose history on exit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps the journal in a slice ordered by sequence.
type Store struct {
	mu      sync.RWMutex
	entries []*journal.Entry
	closed  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// AppendEntry stores a copy of e. A sequence at or below the current head
// is rejected with escrow.ErrJournalConflict.
func (s *Store) AppendEntry(_ context.Context, e *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	if n := len(s.entries); n > 0 && e.Seq <= s.entries[n-1].Seq {
		return fmt.Errorf("%w: seq %d", escrow.ErrJournalConflict, e.Seq)
	}
	s.entries = append(s.entries, clone(e))
	return nil
}

// ListEntries returns copies of the entries after opts.AfterSeq.
func (s *Store) ListEntries(_ context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, escrow.ErrStoreClosed
	}
	result := make([]*journal.Entry, 0)
	for _, e := range s.entries {
		if e.Seq <= opts.AfterSeq {
			continue
		}
		result = append(result, clone(e))
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// LastEntry returns the head of the journal or escrow.ErrNotFound.
func (s *Store) LastEntry(_ context.Context) (*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, escrow.ErrStoreClosed
	}
	if len(s.entries) == 0 {
		return nil, escrow.ErrNotFound
	}
	return clone(s.entries[len(s.entries)-1]), nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Rewrite replaces the stored entry with the same Seq. It exists so tests
// can simulate tampering with durable history.
func (s *Store) Rewrite(e *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.entries {
		if cur.Seq == e.Seq {
			s.entries[i] = clone(e)
			return nil
		}
	}
	return escrow.ErrNotFound
}

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return escrow.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. The entries are kept so a test can reopen
// the same history with Reopen.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen makes a closed store usable again with its history intact.
func (s *Store) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

func clone(e *journal.Entry) *journal.Entry {
	c := *e
	if e.Events != nil {
		c.Events = append(c.Events[:0:0], e.Events...)
	}
	if e.Changes != nil {
		c.Changes = append(c.Changes[:0:0], e.Changes...)
	}
	return &c
}
