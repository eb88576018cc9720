// Package memstore is an in-memory kv.Store, backing the "mem" URI scheme
// and the test suites for the packages built on top of kv.Store. It cannot
// survive a process restart — there is no disk behind it — mirroring the
// source implementation's HeapStore.
package memstore

import (
	"sync"

	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv"
)

type Store struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	metadata *fact.DbMetadata
	txs      []fact.RawTx
}

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

var _ kv.Store = (*Store)(nil)

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	// Return a copy: callers must not observe mutation of stored blobs.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.blobs[key] = cp
	return nil
}

func (s *Store) GetMetadata() (*fact.DbMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metadata == nil {
		return nil, kv.ErrNotFound
	}
	m := *s.metadata
	return &m, nil
}

func (s *Store) SetMetadata(m *fact.DbMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.metadata = &cp
	return nil
}

func (s *Store) AddTx(tx fact.RawTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}

func (s *Store) GetTxs(fromID int64) ([]fact.RawTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fact.RawTx, 0)
	for _, tx := range s.txs {
		if tx.ID > fromID {
			out = append(out, tx)
		}
	}
	return out, nil
}
