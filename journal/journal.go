// Package journal defines the append-only, hash-chained record of committed
// engine operations. Each entry stores the events an operation emitted and
// the final values it wrote, so replaying the journal in order rebuilds the
// engine state exactly.
//
// An entry's hash is BLAKE3 over the previous entry's hash followed by the
// core-deterministic CBOR encoding of the entry body. Any edit to a stored
// entry, or any gap in the sequence, is detected on replay.
package journal

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/state"
	"github.com/xraph/escrow/types"
)

// ErrCorrupt is returned when the chain does not verify.
var ErrCorrupt = errors.New("escrow: journal corrupt")

// encMode is core deterministic CBOR: the same entry always encodes to the
// same bytes.
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
}

// Entry is one committed operation.
type Entry struct {
	ID        id.EntryID     `json:"id"`
	Seq       uint64         `json:"seq"`
	Operation string         `json:"operation"`
	Caller    types.Address  `json:"caller"`
	Events    []event.Event  `json:"events,omitempty"`
	Changes   []state.Change `json:"changes,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListOpts selects a page of entries in sequence order.
type ListOpts struct {
	// AfterSeq skips entries with Seq <= AfterSeq.
	AfterSeq uint64
	// Limit caps the page size; zero means no limit.
	Limit int
}

// Store persists entries. AppendEntry must reject an entry whose Seq is
// already taken, which makes concurrent writers fail instead of forking the
// chain.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)
	LastEntry(ctx context.Context) (*Entry, error)
}

// New builds an unsealed entry following prev. A nil prev starts the chain.
func New(prev *Entry, operation string, caller types.Address, events []event.Event, changes []state.Change, now time.Time) *Entry {
	e := &Entry{
		ID:        id.NewEntryID(),
		Seq:       1,
		Operation: operation,
		Caller:    caller,
		Events:    events,
		Changes:   changes,
		CreatedAt: now.UTC(),
	}
	if prev != nil {
		e.Seq = prev.Seq + 1
		e.PrevHash = prev.Hash
	}
	for i := range e.Events {
		e.Events[i].Seq = e.Seq
	}
	return e
}

type body struct {
	ID        string         `cbor:"id"`
	Seq       uint64         `cbor:"seq"`
	Operation string         `cbor:"operation"`
	Caller    types.Address  `cbor:"caller"`
	Events    []event.Event  `cbor:"events"`
	Changes   []state.Change `cbor:"changes"`
	PrevHash  string         `cbor:"prev_hash"`
	CreatedAt time.Time      `cbor:"created_at"`
}

// ComputeHash returns the hex hash of e given its PrevHash.
func ComputeHash(e *Entry) (string, error) {
	b := body{
		ID:        e.ID.String(),
		Seq:       e.Seq,
		Operation: e.Operation,
		Caller:    e.Caller,
		Events:    e.Events,
		Changes:   e.Changes,
		PrevHash:  e.PrevHash,
		CreatedAt: e.CreatedAt.UTC(),
	}
	// Stores drop empty slices; hash them the same way either side of a
	// round trip.
	if len(b.Events) == 0 {
		b.Events = nil
	}
	if len(b.Changes) == 0 {
		b.Changes = nil
	}

	data, err := encMode.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("journal: encode entry %d: %w", e.Seq, err)
	}
	prev, err := hex.DecodeString(e.PrevHash)
	if err != nil {
		return "", fmt.Errorf("%w: entry %d has malformed prev hash", ErrCorrupt, e.Seq)
	}

	h := blake3.New()
	_, _ = h.Write(prev) //nolint:errcheck // hash writes never fail
	_, _ = h.Write(data) //nolint:errcheck // hash writes never fail
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal computes and stores e's hash.
func Seal(e *Entry) error {
	h, err := ComputeHash(e)
	if err != nil {
		return err
	}
	e.Hash = h
	return nil
}

// Verifier checks entries one at a time in sequence order.
type Verifier struct {
	seq  uint64
	hash string
}

// Head returns the sequence number and hash of the last verified entry.
func (v *Verifier) Head() (uint64, string) { return v.seq, v.hash }

// Next verifies that e directly follows the previously verified entry and
// that its hash matches its contents.
func (v *Verifier) Next(e *Entry) error {
	if e.Seq != v.seq+1 {
		return fmt.Errorf("%w: expected seq %d, got %d", ErrCorrupt, v.seq+1, e.Seq)
	}
	if e.PrevHash != v.hash {
		return fmt.Errorf("%w: entry %d does not link to its predecessor", ErrCorrupt, e.Seq)
	}
	h, err := ComputeHash(e)
	if err != nil {
		return err
	}
	if h != e.Hash {
		return fmt.Errorf("%w: entry %d hash mismatch", ErrCorrupt, e.Seq)
	}
	v.seq, v.hash = e.Seq, e.Hash
	return nil
}

// Payload is the part of an entry stores keep as a single JSON document.
// CreatedAt is kept here at full precision because SQL timestamp columns
// may truncate it.
type Payload struct {
	CreatedAt time.Time      `json:"created_at"`
	Events    []event.Event  `json:"events,omitempty"`
	Changes   []state.Change `json:"changes,omitempty"`
}

// EncodePayload renders e's payload as JSON.
func EncodePayload(e *Entry) (string, error) {
	data, err := json.Marshal(Payload{CreatedAt: e.CreatedAt.UTC(), Events: e.Events, Changes: e.Changes})
	if err != nil {
		return "", fmt.Errorf("journal: encode payload %d: %w", e.Seq, err)
	}
	return string(data), nil
}

// DecodePayload fills e from a JSON payload.
func DecodePayload(data string, e *Entry) error {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return fmt.Errorf("%w: entry %d payload: %v", ErrCorrupt, e.Seq, err)
	}
	e.CreatedAt = p.CreatedAt.UTC()
	e.Events = p.Events
	e.Changes = p.Changes
	return nil
}
