package engine

import (
	"context"
	"encoding/json"
)

// Loc addresses one entity.
type Loc struct {
	Database  string
	Namespace string
	Entity    string
}

// Record is a stored key and its JSON payload.
type Record struct {
	Key     string
	Payload json.RawMessage
}

// Backend stores records for the engine. An entity exists while it holds at
// least one record.
type Backend interface {
	// Put inserts or replaces the record under key.
	Put(ctx context.Context, loc Loc, key string, payload json.RawMessage) error
	// Scan returns the records matching p ordered by key, and whether the
	// entity exists.
	Scan(ctx context.Context, loc Loc, p *Pattern) ([]Record, bool, error)
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, loc Loc, key string) (bool, error)
	// Entities lists the entities of a namespace in ascending order.
	Entities(ctx context.Context, database, namespace string) ([]string, error)
	Close() error
}
