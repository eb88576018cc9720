// Package pagestore is the on-disk kv.Store backend: a single mmap'd file
// holding one B+Tree (pkg/btree), addressed with three key namespaces —
// content-addressed blobs, the metadata cell, and the transaction log.
// Everything below the namespace split (page allocation, the free list, the
// meta page, two-phase fsync) is the same copy-on-write update discipline
// the source storage engine uses for its own single KV file.
package pagestore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"sync"
	"syscall"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/nainya/cliodb/pkg/btree"
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv"
)

var msgpackHandle codec.MsgpackHandle

const (
	dbSignature   = "ClioDB01\x00\x00\x00\x00\x00\x00\x00\x00" // 16 bytes
	pageSize      = 4096                                       // must match pkg/btree's page size
	metaPageSize  = 80
)

// Key namespace prefixes, so blobs, the metadata cell, and the tx log can
// all share one underlying B+Tree without colliding.
const (
	nsBlob = byte(0x01) // prefix + content-addressed key string
	nsMeta = byte(0x02) // single fixed key
	nsTx   = byte(0x03) // prefix + big-endian tx id
)

var metaKey = []byte{nsMeta}

// Store is a disk-backed kv.Store. One Store owns one file; it must not be
// opened twice concurrently from the same or different processes.
type Store struct {
	mu   sync.Mutex
	path string
	fd   int
	tree btree.BTree
	free freeList

	mmap struct {
		total  int
		chunks [][]byte
	}

	page struct {
		flushed uint64
		temp    [][]byte
		updates map[uint64][]byte
	}

	failed bool
}

var _ kv.Store = (*Store)(nil)

// Open opens or creates the database file at filePath.
func Open(filePath string) (*Store, error) {
	s := &Store{path: filePath}

	fd, err := createFileSync(filePath)
	if err != nil {
		return nil, err
	}
	s.fd = fd

	var stat syscall.Stat_t
	if err := syscall.Fstat(s.fd, &stat); err != nil {
		return nil, fmt.Errorf("pagestore: fstat: %w", err)
	}

	if stat.Size == 0 {
		s.page.flushed = 1
	} else {
		mmapSize := 64 << 20
		if int(stat.Size) > mmapSize {
			mmapSize = int(stat.Size)
		}
		chunk, err := syscall.Mmap(s.fd, 0, mmapSize, syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			return nil, fmt.Errorf("pagestore: mmap: %w", err)
		}
		s.mmap.total = mmapSize
		s.mmap.chunks = append(s.mmap.chunks, chunk)
		if err := s.readMeta(); err != nil {
			return nil, err
		}
	}

	s.page.updates = make(map[uint64][]byte)

	s.free.get = s.pageRead
	s.free.new = s.pageAppend
	s.free.set = s.pageWrite
	if s.free.tailSeq > 0 {
		s.free.maxSeq = s.free.tailSeq
	}

	s.tree.SetCallbacks(s.pageRead, s.pageAlloc, s.pageFree)

	return s, nil
}

// Close unmaps the file and closes its descriptor.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range s.mmap.chunks {
		if err := syscall.Munmap(chunk); err != nil {
			return err
		}
	}
	return syscall.Close(s.fd)
}

// --- kv.Store ---

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tree.Get(blobKey(key))
	if !ok {
		return nil, kv.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withRollback(func() {
		s.tree.Insert(blobKey(key), value)
	})
}

func (s *Store) GetMetadata() (*fact.DbMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.tree.Get(metaKey)
	if !ok {
		return nil, kv.ErrNotFound
	}
	var m fact.DbMetadata
	dec := codec.NewDecoder(bytes.NewReader(raw), &msgpackHandle)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("pagestore: decoding metadata: %w", err)
	}
	return &m, nil
}

func (s *Store) SetMetadata(m *fact.DbMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, &msgpackHandle).Encode(m); err != nil {
		return fmt.Errorf("pagestore: encoding metadata: %w", err)
	}
	data := buf.Bytes()
	return s.withRollback(func() {
		s.tree.Insert(metaKey, data)
	})
}

func (s *Store) AddTx(tx fact.RawTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, &msgpackHandle).Encode(&tx); err != nil {
		return fmt.Errorf("pagestore: encoding tx %d: %w", tx.ID, err)
	}
	data := buf.Bytes()
	return s.withRollback(func() {
		s.tree.Insert(txKey(tx.ID), data)
	})
}

func (s *Store) GetTxs(fromID int64) ([]fact.RawTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fact.RawTx, 0)
	var decodeErr error
	s.tree.Scan(txKey(fromID+1), func(key, val []byte) bool {
		if len(key) == 0 || key[0] != nsTx {
			return false
		}
		var tx fact.RawTx
		dec := codec.NewDecoder(bytes.NewReader(val), &msgpackHandle)
		if err := dec.Decode(&tx); err != nil {
			decodeErr = err
			return false
		}
		out = append(out, tx)
		return true
	})
	if decodeErr != nil {
		return nil, fmt.Errorf("pagestore: decoding tx log: %w", decodeErr)
	}
	return out, nil
}

func blobKey(key string) []byte {
	b := make([]byte, 1+len(key))
	b[0] = nsBlob
	copy(b[1:], key)
	return b
}

func txKey(id int64) []byte {
	b := make([]byte, 9)
	b[0] = nsTx
	binary.BigEndian.PutUint64(b[1:], uint64(id))
	return b
}

// withRollback performs mutate against the B+Tree, then durably persists
// the result with a two-phase fsync; on failure the in-memory tree state is
// rolled back to what it was before mutate ran, matching the source
// engine's updateOrRevert discipline.
func (s *Store) withRollback(mutate func()) error {
	saved := s.saveMeta()
	mutate()
	if err := s.commitOrRevert(saved); err != nil {
		return err
	}
	return nil
}

func createFileSync(file string) (int, error) {
	fd, err := syscall.Open(file, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return -1, fmt.Errorf("pagestore: open file: %w", err)
	}
	dirfd, err := syscall.Open(path.Dir(file), os.O_RDONLY, 0)
	if err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("pagestore: open directory: %w", err)
	}
	defer syscall.Close(dirfd)
	if err := syscall.Fsync(dirfd); err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("pagestore: fsync directory: %w", err)
	}
	return fd, nil
}
