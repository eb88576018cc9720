package wal

import (
	"bytes"
	"encoding/gob"
	"time"
)

// MetadataKey is the fixed WAL key every metadata entry is written under.
// There is exactly one logical "row" this WAL ever guards.
const MetadataKey = "db_metadata"

// MetadataGuard fronts a kv.Store's metadata cell with a WAL so that a
// crash between "tx log appended" and "metadata persisted" can be
// detected and repaired at startup, instead of leaving the tx log and the
// index roots permanently out of sync (see SPEC_FULL.md's resolution of
// this gap). Guard must be called, and must successfully fsync, before
// the caller writes the same payload to the store's metadata cell.
type MetadataGuard struct {
	wal *WAL
	ckp *Checkpointer
}

// OpenMetadataGuard opens (or creates) the WAL file at path and starts a
// background checkpointer that periodically flushes the caller's metadata
// cell (via flush) and truncates log segments the flush has made
// redundant. Pass a flush that re-persists the current metadata cell,
// e.g. kv.Store.SetMetadata against whatever's already current; if flush
// is nil, checkpointing is disabled and the WAL simply grows, matching
// the original guard-only behavior.
func OpenMetadataGuard(path string, flush func() error) (*MetadataGuard, error) {
	w := &WAL{Path: path}
	if err := w.Open(); err != nil {
		return nil, err
	}
	g := &MetadataGuard{wal: w}
	if flush != nil {
		g.ckp = NewCheckpointer(w, flush)
		g.ckp.Start()
	}
	return g, nil
}

// Guard durably records encoded (a gob-encoded fact.DbMetadata) before the
// caller attempts the real write. Each call is its own single-entry
// transaction: an insert of the payload followed immediately by a commit
// marker, fsynced before returning.
func (g *MetadataGuard) Guard(encoded []byte) error {
	txnID := g.wal.NextLSN()
	insert := Entry{
		LSN:       txnID,
		TxnID:     txnID,
		OpType:    OpInsert,
		Key:       []byte(MetadataKey),
		Value:     encoded,
		Timestamp: time.Now(),
	}
	if err := g.wal.Write(insert); err != nil {
		return err
	}
	commit := Entry{
		LSN:       g.wal.NextLSN(),
		TxnID:     txnID,
		OpType:    OpCommit,
		Timestamp: time.Now(),
	}
	if err := g.wal.Write(commit); err != nil {
		return err
	}
	return g.wal.Fsync()
}

// Recover replays the WAL and returns the most recently committed
// metadata payload, or nil if the WAL is empty. Call this at startup,
// before trusting the store's own metadata cell: if the store's metadata
// is missing or older than what Recover returns, the store write was
// interrupted and must be redone with the recovered payload.
func (g *MetadataGuard) Recover() ([]byte, error) {
	recovery := NewRecovery(g.wal)
	var latest []byte
	err := recovery.Recover(func(op OpType, key, value []byte) error {
		if op == OpInsert && string(key) == MetadataKey {
			latest = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (g *MetadataGuard) Close() error {
	if g.ckp != nil {
		g.ckp.Stop()
	}
	return g.wal.Close()
}

// EncodeMetadata and DecodeMetadata are the gob codec used for the
// guarded payload, kept alongside the guard so pkg/tx never needs to pick
// its own encoding for this one cell.
func EncodeMetadata(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeMetadata(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
