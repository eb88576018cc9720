package pagestore

import (
	"fmt"
	"os"
	"testing"

	"github.com/nainya/cliodb/pkg/fact"
)

func TestStoreBlobRoundTrip(t *testing.T) {
	path := "/tmp/test_pagestore_blob.db"
	defer os.Remove(path)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("abc123", []byte("hello world")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get("abc123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}

	if _, err := s.Get("missing"); err == nil {
		t.Fatal("expected ErrNotFound for missing key")
	}
}

func TestStoreMetadataRoundTrip(t *testing.T) {
	path := "/tmp/test_pagestore_meta.db"
	defer os.Remove(path)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.GetMetadata(); err == nil {
		t.Fatal("expected ErrNotFound before any metadata is set")
	}

	meta := &fact.DbMetadata{NextID: 42, LastIndexedTx: 7, EAVRoot: "eav-root"}
	if err := s.SetMetadata(meta); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	got, err := s.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got.NextID != 42 || got.LastIndexedTx != 7 || got.EAVRoot != "eav-root" {
		t.Errorf("got %+v, want NextID=42 LastIndexedTx=7 EAVRoot=eav-root", got)
	}
}

func TestStoreTxLogOrdering(t *testing.T) {
	path := "/tmp/test_pagestore_txlog.db"
	defer os.Remove(path)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i := int64(1); i <= 5; i++ {
		tx := fact.RawTx{ID: i, Records: []fact.Record{
			fact.Addition(fact.Entity(i), fact.Entity(1), fact.LongValue(i), fact.Entity(i)),
		}}
		if err := s.AddTx(tx); err != nil {
			t.Fatalf("AddTx(%d): %v", i, err)
		}
	}

	txs, err := s.GetTxs(2)
	if err != nil {
		t.Fatalf("GetTxs: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d txs, want 3", len(txs))
	}
	for i, tx := range txs {
		wantID := int64(3 + i)
		if tx.ID != wantID {
			t.Errorf("tx[%d].ID = %d, want %d", i, tx.ID, wantID)
		}
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := "/tmp/test_pagestore_persist.db"
	defer os.Remove(path)

	{
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("blob-%03d", i)
			if err := s.Set(key, []byte(key)); err != nil {
				t.Fatalf("Set: %v", err)
			}
		}
		if err := s.SetMetadata(&fact.DbMetadata{NextID: 50}); err != nil {
			t.Fatalf("SetMetadata: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	{
		s, err := Open(path)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer s.Close()

		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("blob-%03d", i)
			got, err := s.Get(key)
			if err != nil {
				t.Fatalf("Get(%s): %v", key, err)
			}
			if string(got) != key {
				t.Errorf("Get(%s) = %q, want %q", key, got, key)
			}
		}

		meta, err := s.GetMetadata()
		if err != nil {
			t.Fatalf("GetMetadata: %v", err)
		}
		if meta.NextID != 50 {
			t.Errorf("NextID = %d, want 50", meta.NextID)
		}
	}
}
