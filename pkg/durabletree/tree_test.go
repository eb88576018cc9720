package durabletree

import (
	"testing"

	"github.com/nainya/cliodb/pkg/kv/memstore"
)

func intCmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func buildIntTree(t *testing.T, items []int) *Tree[int] {
	t.Helper()
	tree, err := BuildFromIter[int](memstore.New(), intCmp, 16, NewSliceIterator(items))
	if err != nil {
		t.Fatalf("BuildFromIter: %v", err)
	}
	return tree
}

func drainInts(t *testing.T, it Iterator[int]) []int {
	t.Helper()
	var out []int
	for {
		v, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

func TestBuildFromIterEmpty(t *testing.T) {
	tree := buildIntTree(t, nil)
	it, err := tree.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	got := drainInts(t, it)
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestBuildFromIterSingleLeaf(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tree := buildIntTree(t, items)

	it, err := tree.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	got := drainInts(t, it)
	if len(got) != len(items) {
		t.Fatalf("got %v, want %v", got, items)
	}
	for i, v := range items {
		if got[i] != v {
			t.Errorf("index %d: got %d, want %d", i, got[i], v)
		}
	}
}

func TestBuildFromIterSpansMultipleLeaves(t *testing.T) {
	n := NodeCapacity*3 + 7
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	tree := buildIntTree(t, items)

	it, err := tree.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	got := drainInts(t, it)
	if len(got) != n {
		t.Fatalf("got %d items, want %d", len(got), n)
	}
	for i := range got {
		if got[i] != i {
			t.Fatalf("index %d: got %d, want %d", i, got[i], i)
		}
	}
}

func TestRangeFromSkipsEarlierItems(t *testing.T) {
	items := []int{10, 20, 30, 40, 50}
	tree := buildIntTree(t, items)

	it, err := tree.RangeFrom(25)
	if err != nil {
		t.Fatalf("RangeFrom: %v", err)
	}
	got := drainInts(t, it)
	want := []int{30, 40, 50}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRangeFromOnEmptyTreeYieldsNothing(t *testing.T) {
	tree := buildIntTree(t, nil)
	it, err := tree.RangeFrom(0)
	if err != nil {
		t.Fatalf("RangeFrom: %v", err)
	}
	got := drainInts(t, it)
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestFromRootReattachesToPersistedTree(t *testing.T) {
	store := memstore.New()
	original, err := BuildFromIter[int](store, intCmp, 16, NewSliceIterator([]int{1, 2, 3}))
	if err != nil {
		t.Fatalf("BuildFromIter: %v", err)
	}

	reattached := FromRoot[int](store, intCmp, 16, original.Root())
	it, err := reattached.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	got := drainInts(t, it)
	if len(got) != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}
