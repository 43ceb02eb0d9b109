package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/types"
)

// ==================== Journal models ====================

// entryModel keeps the payload as the same JSON text the SQL stores use so
// the entry hash survives the round trip unchanged.
type entryModel struct {
	grove.BaseModel `grove:"table:escrow_journal"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Seq       int64     `grove:"seq"        bson:"seq"`
	Operation string    `grove:"operation"  bson:"operation"`
	Caller    string    `grove:"caller"     bson:"caller"`
	PrevHash  string    `grove:"prev_hash"  bson:"prev_hash"`
	Hash      string    `grove:"hash"       bson:"hash"`
	Payload   string    `grove:"payload"    bson:"payload"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}

func toEntryModel(e *journal.Entry) (*entryModel, error) {
	payload, err := journal.EncodePayload(e)
	if err != nil {
		return nil, err
	}
	return &entryModel{
		ID:        e.ID.String(),
		Seq:       int64(e.Seq),
		Operation: e.Operation,
		Caller:    string(e.Caller),
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
		Payload:   payload,
		CreatedAt: e.CreatedAt,
	}, nil
}

func fromEntryModel(m *entryModel) (*journal.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("escrow/mongo: entry %d: %w", m.Seq, err)
	}
	e := &journal.Entry{
		ID:        entryID,
		Seq:       uint64(m.Seq),
		Operation: m.Operation,
		Caller:    types.Address(m.Caller),
		PrevHash:  m.PrevHash,
		Hash:      m.Hash,
	}
	if err := journal.DecodePayload(m.Payload, e); err != nil {
		return nil, fmt.Errorf("escrow/mongo: entry %d: %w", m.Seq, err)
	}
	return e, nil
}
