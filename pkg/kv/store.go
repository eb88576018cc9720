// Package kv defines the storage contract the rest of the database is
// built against: opaque byte-addressed blobs, a single mutable metadata
// cell, and an append-only transaction log. Concrete backends (pagestore,
// memstore) implement Store.
package kv

import (
	"errors"

	"github.com/nainya/cliodb/pkg/fact"
)

// ErrNotFound is returned by Get and GetMetadata when the key/cell is
// absent. It is never returned for a scan past the end of the tx log;
// GetTxs simply returns an empty slice in that case.
var ErrNotFound = errors.New("cliodb/kv: not found")

// Store is the storage contract consumed by the durable tree, the
// transactor, and the connection. Implementations must be safe to call
// from multiple goroutines; Set, SetMetadata, and AddTx implementations
// synchronize writes internally — callers never hold a lock across a call.
type Store interface {
	// Get retrieves a content-addressed blob. Returns ErrNotFound if absent.
	Get(key string) ([]byte, error)

	// Set writes a content-addressed blob. Last-write-wins; no consistency
	// requirement beyond eventual (in practice blobs are written exactly
	// once, under a fresh UUID key, and never overwritten).
	Set(key string, value []byte) error

	// GetMetadata fetches the single well-known metadata cell. Returns
	// ErrNotFound if the database has never been bootstrapped.
	GetMetadata() (*fact.DbMetadata, error)

	// SetMetadata overwrites the metadata cell.
	SetMetadata(m *fact.DbMetadata) error

	// AddTx appends a transaction to the log, keyed by its id. Must be
	// called with strictly increasing, contiguous ids by the single
	// transactor.
	AddTx(tx fact.RawTx) error

	// GetTxs returns every transaction with id > fromID, ascending.
	GetTxs(fromID int64) ([]fact.RawTx, error)
}
