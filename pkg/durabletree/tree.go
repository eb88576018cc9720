package durabletree

import (
	"sort"

	"github.com/nainya/cliodb/pkg/kv"
)

// Comparator imposes the total order the tree's leaves are sorted under.
type Comparator[T any] func(a, b T) int

// Iterator is a simple pull-based sequence, used both as the input to
// BuildFromIter and as the output of Iter/RangeFrom. A single non-nil error
// terminates the sequence.
type Iterator[T any] interface {
	Next() (item T, ok bool, err error)
}

// SliceIterator adapts an in-memory, already-sorted slice to Iterator.
type SliceIterator[T any] struct {
	items []T
	pos   int
}

func NewSliceIterator[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (s *SliceIterator[T]) Next() (T, bool, error) {
	var zero T
	if s.pos >= len(s.items) {
		return zero, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// Tree is a copy-on-write B+ tree over items of type T. It is immutable:
// there is no Insert; a Tree is produced once by BuildFromIter and
// consumed via Iter/RangeFrom until the owner decides to rebuild (see
// pkg/index, which pairs a Tree with a mutable in-memory accumulator).
type Tree[T any] struct {
	root  string
	store *nodeStore[T]
	cmp   Comparator[T]
}

// BuildFromIter consumes src (which must already be sorted under cmp) in
// chunks of NodeCapacity, writing one leaf per chunk and building interior
// levels bottom-up until a single root remains.
func BuildFromIter[T any](store kv.Store, cmp Comparator[T], cacheSize int, src Iterator[T]) (*Tree[T], error) {
	ns := newNodeStore[T](store, cacheSize)

	var leafLinks []string
	var leafKeys []T
	var chunk []T

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if len(leafLinks) > 0 {
			leafKeys = append(leafKeys, chunk[0])
		}
		key, err := ns.addNode(leafNode(chunk))
		if err != nil {
			return err
		}
		leafLinks = append(leafLinks, key)
		chunk = nil
		return nil
	}

	for {
		item, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		chunk = append(chunk, item)
		if len(chunk) == NodeCapacity {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	rootKey, err := buildInteriorLevel(ns, leafKeys, leafLinks)
	if err != nil {
		return nil, err
	}
	return &Tree[T]{root: rootKey, store: ns, cmp: cmp}, nil
}

// buildInteriorLevel writes one or more interior nodes over links (with the
// given separator keys, len(keys) == len(links)-1), recursing until a
// single root key remains. An empty links slice produces the degenerate
// empty-tree root: a single interior node with zero keys and zero links.
func buildInteriorLevel[T any](ns *nodeStore[T], keys []T, links []string) (string, error) {
	if len(links) == 0 {
		return ns.addNode(interiorNode[T](nil, nil))
	}
	if len(links) <= NodeCapacity {
		return ns.addNode(interiorNode(keys, links))
	}

	var parentKeys []T
	var parentLinks []string
	i := 0
	for i < len(links) {
		end := i + NodeCapacity
		if end > len(links) {
			end = len(links)
		}
		var chunkKeys []T
		if end-1 > i {
			chunkKeys = keys[i : end-1]
		}
		key, err := ns.addNode(interiorNode(chunkKeys, links[i:end]))
		if err != nil {
			return "", err
		}
		if len(parentLinks) > 0 {
			// keys[i-1] separates links[i-1] and links[i]; since links[i] is
			// the first child of this chunk, it is exactly the separator
			// for the chunk as a whole at the parent level.
			parentKeys = append(parentKeys, keys[i-1])
		}
		parentLinks = append(parentLinks, key)
		i = end
	}
	return buildInteriorLevel(ns, parentKeys, parentLinks)
}

// FromRoot reattaches to a tree whose root is already persisted, e.g. after
// loading DbMetadata at startup.
func FromRoot[T any](store kv.Store, cmp Comparator[T], cacheSize int, root string) *Tree[T] {
	return &Tree[T]{root: root, store: newNodeStore[T](store, cacheSize), cmp: cmp}
}

// Root returns the kv.Store key of the current root, for persisting into
// DbMetadata.
func (t *Tree[T]) Root() string { return t.root }

// Iter returns every item in the tree, in ascending order.
func (t *Tree[T]) Iter() (Iterator[T], error) {
	return newItemIter(t.leafIter())
}

func (t *Tree[T]) leafIter() *leafIter[T] {
	return &leafIter[T]{
		store: t.store,
		stack: []leafFrame{{nodeKey: t.root, linkIdx: 0}},
	}
}

// RangeFrom returns every item >= start, in ascending order.
func (t *Tree[T]) RangeFrom(start T) (Iterator[T], error) {
	var stack []leafFrame
	stack = append(stack, leafFrame{nodeKey: t.root, linkIdx: 0})

	for {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := t.store.getNode(frame.nodeKey)
		if err != nil {
			return nil, err
		}

		if n.Leaf {
			idx := sort.Search(len(n.Items), func(i int) bool {
				return t.cmp(n.Items[i], start) >= 0
			})
			return newItemIterAt(&leafIter[T]{store: t.store, stack: stack}, n, idx)
		}

		if len(n.Links) == 0 {
			// Degenerate empty root.
			return newItemIterAt(&leafIter[T]{store: t.store, stack: stack}, nil, 0)
		}

		idx := sort.Search(len(n.Keys), func(i int) bool {
			return t.cmp(n.Keys[i], start) > 0
		})
		// idx is the index of the first key > start, so the child covering
		// start is links[idx]. A frame for links[idx+1] is left beneath it so
		// the scan continues into the following subtrees.
		if idx+1 < len(n.Links) {
			stack = append(stack, leafFrame{nodeKey: frame.nodeKey, linkIdx: idx + 1})
		}
		stack = append(stack, leafFrame{nodeKey: n.Links[idx], linkIdx: 0})
	}
}

type leafFrame struct {
	nodeKey string
	linkIdx int
}

// leafIter walks leaves left to right via an explicit stack, mirroring the
// source's LeafIter.
type leafIter[T any] struct {
	store *nodeStore[T]
	stack []leafFrame
}

func (li *leafIter[T]) nextLeaf() (*node[T], bool, error) {
	for {
		if len(li.stack) == 0 {
			return nil, false, nil
		}
		frame := li.stack[len(li.stack)-1]
		li.stack = li.stack[:len(li.stack)-1]

		n, err := li.store.getNode(frame.nodeKey)
		if err != nil {
			return nil, false, err
		}

		if n.Leaf {
			return n, true, nil
		}

		if len(n.Links) == 0 {
			// Degenerate empty root.
			return nil, false, nil
		}

		nextIdx := frame.linkIdx + 1
		if nextIdx < len(n.Links) {
			li.stack = append(li.stack, leafFrame{nodeKey: frame.nodeKey, linkIdx: nextIdx})
		}
		li.stack = append(li.stack, leafFrame{nodeKey: n.Links[frame.linkIdx], linkIdx: 0})
	}
}

// itemIter walks items within the leaf sequence produced by leafIter.
type itemIter[T any] struct {
	leaves  *leafIter[T]
	current *node[T]
	idx     int
}

func newItemIter[T any](leaves *leafIter[T]) (*itemIter[T], error) {
	first, ok, err := leaves.nextLeaf()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &itemIter[T]{leaves: leaves}, nil
	}
	return &itemIter[T]{leaves: leaves, current: first}, nil
}

func newItemIterAt[T any](leaves *leafIter[T], first *node[T], idx int) (*itemIter[T], error) {
	if first == nil {
		next, ok, err := leaves.nextLeaf()
		if err != nil {
			return nil, err
		}
		if !ok {
			return &itemIter[T]{leaves: leaves}, nil
		}
		first = next
		idx = 0
	}
	return &itemIter[T]{leaves: leaves, current: first, idx: idx}, nil
}

func (it *itemIter[T]) Next() (T, bool, error) {
	var zero T
	for {
		if it.current == nil {
			return zero, false, nil
		}
		if it.idx < len(it.current.Items) {
			item := it.current.Items[it.idx]
			it.idx++
			return item, true, nil
		}
		next, ok, err := it.leaves.nextLeaf()
		if err != nil {
			return zero, false, err
		}
		if !ok {
			it.current = nil
			return zero, false, nil
		}
		it.current = next
		it.idx = 0
	}
}
