package index

import (
	"testing"

	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv/memstore"
)

func records(n int) []fact.Record {
	out := make([]fact.Record, n)
	for i := range out {
		out[i] = fact.Addition(fact.Entity(i), fact.Entity(1), fact.StringValue("v"), fact.Entity(100))
	}
	return out
}

func drain(t *testing.T, idx *Index) []fact.Record {
	t.Helper()
	it, err := idx.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	var out []fact.Record
	for {
		r, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

func TestInsertKeepsOverlaySorted(t *testing.T) {
	idx, err := Empty(memstore.New(), fact.CompareEAVT, 16)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}

	idx = idx.Insert(fact.Addition(fact.Entity(3), fact.Entity(1), fact.StringValue("v"), fact.Entity(100)))
	idx = idx.Insert(fact.Addition(fact.Entity(1), fact.Entity(1), fact.StringValue("v"), fact.Entity(100)))
	idx = idx.Insert(fact.Addition(fact.Entity(2), fact.Entity(1), fact.StringValue("v"), fact.Entity(100)))

	out := drain(t, idx)
	if len(out) != 3 {
		t.Fatalf("got %d records, want 3", len(out))
	}
	for i := 0; i < len(out)-1; i++ {
		if fact.CompareEAVT(out[i], out[i+1]) > 0 {
			t.Errorf("records out of order at %d: %v then %v", i, out[i], out[i+1])
		}
	}
}

func TestInsertDoesNotMutateReceiver(t *testing.T) {
	idx, err := Empty(memstore.New(), fact.CompareEAVT, 16)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	before := idx
	after := idx.Insert(records(1)[0])

	if before.MemSize() != 0 {
		t.Fatalf("expected receiver's overlay to stay empty, got MemSize=%d", before.MemSize())
	}
	if after.MemSize() != 1 {
		t.Fatalf("expected new index to carry the inserted record, got MemSize=%d", after.MemSize())
	}
}

func TestMemSizeTracksOverlayOnly(t *testing.T) {
	idx, err := Empty(memstore.New(), fact.CompareEAVT, 16)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if idx.MemSize() != 0 {
		t.Fatalf("got %d, want 0", idx.MemSize())
	}
	idx = idx.Insert(records(1)[0])
	if idx.MemSize() != 1 {
		t.Fatalf("got %d, want 1", idx.MemSize())
	}
}

func TestRebuildMergesOverlayIntoDurableAndResetsIt(t *testing.T) {
	store := memstore.New()
	idx, err := Empty(store, fact.CompareEAVT, 16)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	for _, r := range records(5) {
		idx = idx.Insert(r)
	}

	rebuilt, err := idx.Rebuild(store, 16)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if rebuilt.MemSize() != 0 {
		t.Errorf("expected rebuilt index to have an empty overlay, got %d", rebuilt.MemSize())
	}
	if idx.MemSize() != 5 {
		t.Errorf("expected Rebuild to leave the receiver unmodified, got MemSize=%d", idx.MemSize())
	}

	out := drain(t, rebuilt)
	if len(out) != 5 {
		t.Fatalf("got %d records after rebuild, want 5", len(out))
	}
}

func TestRangeFromOnlyReturnsRecordsAtOrAfterStart(t *testing.T) {
	store := memstore.New()
	idx, err := Empty(store, fact.CompareEAVT, 16)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	for _, r := range records(5) {
		idx = idx.Insert(r)
	}

	start := fact.Addition(fact.Entity(2), fact.Entity(1), fact.Value{}, fact.MinEntity)
	it, err := idx.RangeFrom(start)
	if err != nil {
		t.Fatalf("RangeFrom: %v", err)
	}
	var out []fact.Record
	for {
		r, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, r)
	}
	if len(out) != 3 {
		t.Fatalf("got %d records, want 3 (entities 2,3,4)", len(out))
	}
	if out[0].E != fact.Entity(2) {
		t.Errorf("got first entity %v, want 2", out[0].E)
	}
}
