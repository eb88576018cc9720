package durabletree

import (
	"bytes"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/nainya/cliodb/pkg/kv"
)

var msgpackHandle codec.MsgpackHandle

// nodeStore caches deserialized nodes, keyed by their kv.Store key,
// avoiding repeated deserialization across scans. It is cheap to clone
// (the cache and the store handle are both shared by reference), matching
// the source's Arc<Mutex<LruCache>> + Arc<KVStore> pairing.
type nodeStore[T any] struct {
	store kv.Store
	cache *lru.Cache[string, *node[T]]
}

// DefaultCacheSize is the LRU capacity, in nodes, used when a tree is built
// without an explicit override.
const DefaultCacheSize = 1024

func newNodeStore[T any](store kv.Store, cacheSize int) *nodeStore[T] {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	c, err := lru.New[string, *node[T]](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which we've
		// already guarded against.
		panic("cliodb/durabletree: " + err.Error())
	}
	return &nodeStore[T]{store: store, cache: c}
}

func (ns *nodeStore[T]) addNode(n node[T]) (string, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(n); err != nil {
		return "", err
	}
	key := uuid.NewString()
	if err := ns.store.Set(key, buf.Bytes()); err != nil {
		return "", err
	}
	cp := n
	ns.cache.Add(key, &cp)
	return key, nil
}

func (ns *nodeStore[T]) getNode(key string) (*node[T], error) {
	if n, ok := ns.cache.Get(key); ok {
		return n, nil
	}
	raw, err := ns.store.Get(key)
	if err != nil {
		return nil, err
	}
	var n node[T]
	dec := codec.NewDecoder(bytes.NewReader(raw), &msgpackHandle)
	if err := dec.Decode(&n); err != nil {
		return nil, err
	}
	ns.cache.Add(key, &n)
	return &n, nil
}
