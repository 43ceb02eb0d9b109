package escrow

import "github.com/xraph/escrow/id"

// ID is the identifier type for journal entries, events and swaps.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
