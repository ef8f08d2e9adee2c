// Package storage holds the record store contract shared by every backend and
// the adapter that degrades from a remote backend to the local store.
package storage

import (
	"context"
	"errors"
)

// Table names a record collection.
type Table string

const (
	TableClients       Table = "clients"
	TableScripts       Table = "scripts"
	TableConversations Table = "conversations"
)

// Tables lists every collection known to the service.
var Tables = []Table{TableClients, TableScripts, TableConversations}

// FieldID is the row key every backend uses for the record identity.
const FieldID = "id"

// ErrNotFound is returned when no row with the requested id exists.
var ErrNotFound = errors.New("storage: record not found")

// Row is a record keyed by semantic field names.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the string value of key, or "" if absent or not a string.
func (r Row) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Store is the uniform CRUD contract over a record collection.
type Store interface {
	Create(ctx context.Context, table Table, row Row) (string, error)
	List(ctx context.Context, table Table) ([]Row, error)
	Get(ctx context.Context, table Table, id string) (Row, error)
	Update(ctx context.Context, table Table, id string, partial Row) error
	Delete(ctx context.Context, table Table, id string) error
}

// Remote is a Store that may only be configured for some tables.
type Remote interface {
	Store
	Configured(table Table) bool
}

// Pinger is implemented by remotes that can check their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
