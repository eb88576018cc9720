// Package index pairs a durable, disk-backed durabletree.Tree with a small
// in-memory accumulator of recently-written items, so that every write is
// visible to readers immediately without forcing a tree rebuild on every
// transaction. The accumulator is merged into the durable tree's output at
// read time; pkg/tx periodically folds it into a freshly built tree and
// resets it to empty (see pkg/tx's rebuild logic).
package index

import (
	"sort"

	"github.com/nainya/cliodb/pkg/durabletree"
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv"
)

// Index is one of the four canonical sort orders (EAVT, AEVT, AVET, VAET)
// over fact.Record.
type Index struct {
	cmp     fact.Comparator
	durable *durabletree.Tree[fact.Record]
	mem     []fact.Record // kept sorted under cmp
}

// New wraps an already-built durable tree with an empty in-memory overlay.
func New(cmp fact.Comparator, durable *durabletree.Tree[fact.Record]) *Index {
	return &Index{cmp: cmp, durable: durable}
}

// Empty builds a fresh, empty index of the given order directly against
// store, used once at database creation time.
func Empty(store kv.Store, cmp fact.Comparator, cacheSize int) (*Index, error) {
	durable, err := durabletree.BuildFromIter[fact.Record](store, durabletree.Comparator[fact.Record](cmp), cacheSize, durabletree.NewSliceIterator[fact.Record](nil))
	if err != nil {
		return nil, err
	}
	return New(cmp, durable), nil
}

// Insert returns a new Index with r folded into a copy of the in-memory
// overlay, keeping it sorted. It does not touch the durable tree, and
// leaves the receiver (and its overlay slice) untouched, so a Db snapshot
// built from the receiver keeps observing exactly what it always did.
func (idx *Index) Insert(r fact.Record) *Index {
	pos := sort.Search(len(idx.mem), func(i int) bool {
		return idx.cmp(idx.mem[i], r) >= 0
	})
	mem := make([]fact.Record, len(idx.mem)+1)
	copy(mem, idx.mem[:pos])
	mem[pos] = r
	copy(mem[pos+1:], idx.mem[pos:])
	return &Index{cmp: idx.cmp, durable: idx.durable, mem: mem}
}

// MemSize reports how many records are sitting in the overlay, unmerged
// into the durable tree. pkg/tx uses this to decide when to rebuild.
func (idx *Index) MemSize() int { return len(idx.mem) }

// DurableRoot is the kv.Store key of the durable tree's current root, for
// persisting into DbMetadata.
func (idx *Index) DurableRoot() string { return idx.durable.Root() }

// RangeFrom returns every record >= start across both the durable tree and
// the in-memory overlay, merged in ascending order under the index's
// comparator.
func (idx *Index) RangeFrom(start fact.Record) (durabletree.Iterator[fact.Record], error) {
	durableIter, err := idx.durable.RangeFrom(start)
	if err != nil {
		return nil, err
	}
	pos := sort.Search(len(idx.mem), func(i int) bool {
		return idx.cmp(idx.mem[i], start) >= 0
	})
	return newMergeIter(idx.cmp, durableIter, durabletree.NewSliceIterator(idx.mem[pos:])), nil
}

// Iter returns every record across both the durable tree and the overlay,
// in ascending order.
func (idx *Index) Iter() (durabletree.Iterator[fact.Record], error) {
	durableIter, err := idx.durable.Iter()
	if err != nil {
		return nil, err
	}
	return newMergeIter(idx.cmp, durableIter, durabletree.NewSliceIterator(idx.mem)), nil
}

// Rebuild folds the overlay into a freshly built durable tree (written
// against a possibly different store than the one the index was created
// with, since rebuilds may target a new backing file) and returns a new
// Index with an empty overlay. The receiver is left unmodified.
func (idx *Index) Rebuild(store kv.Store, cacheSize int) (*Index, error) {
	merged, err := idx.Iter()
	if err != nil {
		return nil, err
	}
	var items []fact.Record
	for {
		item, ok, err := merged.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		items = append(items, item)
	}
	durable, err := durabletree.BuildFromIter[fact.Record](store, durabletree.Comparator[fact.Record](idx.cmp), cacheSize, durabletree.NewSliceIterator(items))
	if err != nil {
		return nil, err
	}
	return New(idx.cmp, durable), nil
}

// mergeIter merges two already-sorted record iterators, preferring the
// overlay's copy on exact ties (it is always at least as fresh).
type mergeIter struct {
	cmp       fact.Comparator
	durable   durabletree.Iterator[fact.Record]
	overlay   durabletree.Iterator[fact.Record]
	dItem     fact.Record
	dOk       bool
	dFetched  bool
	oItem     fact.Record
	oOk       bool
	oFetched  bool
}

func newMergeIter(cmp fact.Comparator, durable, overlay durabletree.Iterator[fact.Record]) *mergeIter {
	return &mergeIter{cmp: cmp, durable: durable, overlay: overlay}
}

func (m *mergeIter) fetchDurable() error {
	if m.dFetched {
		return nil
	}
	item, ok, err := m.durable.Next()
	if err != nil {
		return err
	}
	m.dItem, m.dOk, m.dFetched = item, ok, true
	return nil
}

func (m *mergeIter) fetchOverlay() error {
	if m.oFetched {
		return nil
	}
	item, ok, err := m.overlay.Next()
	if err != nil {
		return err
	}
	m.oItem, m.oOk, m.oFetched = item, ok, true
	return nil
}

func (m *mergeIter) Next() (fact.Record, bool, error) {
	if err := m.fetchDurable(); err != nil {
		return fact.Record{}, false, err
	}
	if err := m.fetchOverlay(); err != nil {
		return fact.Record{}, false, err
	}

	switch {
	case !m.dOk && !m.oOk:
		return fact.Record{}, false, nil
	case !m.dOk:
		item := m.oItem
		m.oFetched = false
		return item, true, nil
	case !m.oOk:
		item := m.dItem
		m.dFetched = false
		return item, true, nil
	}

	if c := m.cmp(m.oItem, m.dItem); c <= 0 {
		item := m.oItem
		m.oFetched = false
		if c == 0 {
			m.dFetched = false
		}
		return item, true, nil
	}
	item := m.dItem
	m.dFetched = false
	return item, true, nil
}
