// Package conn is the client-side entry point: a cached handle onto the
// database that avoids rebuilding a Db from scratch on every call by
// remembering the last metadata it saw and replaying only the transactions
// committed since, mirroring the source implementation's Conn.
package conn

import (
	"reflect"
	"sync"

	"github.com/nainya/cliodb/pkg/db"
	"github.com/nainya/cliodb/pkg/durabletree"
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/index"
	"github.com/nainya/cliodb/pkg/kv"
	"github.com/nainya/cliodb/pkg/tx"
)

// Conn is a cached read handle plus a write handle onto one database.
// A Conn is safe for concurrent use: a single mutex guards the cached
// snapshot and metadata below for the duration of each Db call.
type Conn struct {
	store     kv.Store
	transactor *tx.Handle
	cacheSize int

	mu sync.Mutex

	latestDB       *db.Db
	lastKnownTx    int64
	haveLastKnown  bool
	lastSeenMeta   *fact.DbMetadata
}

// New wraps store and transactor into a Conn. cacheSize bounds the node
// cache of any index this Conn builds from scratch after a cache miss.
func New(store kv.Store, transactor *tx.Handle, cacheSize int) *Conn {
	return &Conn{store: store, transactor: transactor, cacheSize: cacheSize}
}

// Db returns the current database snapshot, rebuilding or catching up the
// cached one as needed: if the store's metadata cell has changed since the
// last call, the cache is invalidated outright; otherwise only the
// transactions committed after lastKnownTx are replayed on top of it.
func (c *Conn) Db() (*db.Db, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.store.GetMetadata()
	if err != nil {
		return nil, err
	}

	if c.lastSeenMeta == nil || !reflect.DeepEqual(meta, c.lastSeenMeta) {
		c.latestDB = nil
		c.haveLastKnown = false
		cp := *meta
		c.lastSeenMeta = &cp
	}

	lastKnownTx := meta.LastIndexedTx
	if c.haveLastKnown {
		lastKnownTx = c.lastKnownTx
	}

	current := c.latestDB
	if current == nil {
		current, err = fromMetadata(c.store, meta, c.cacheSize)
		if err != nil {
			return nil, err
		}
	}

	novelty, err := c.store.GetTxs(lastKnownTx)
	if err != nil {
		return nil, err
	}
	for _, raw := range novelty {
		for _, r := range raw.Records {
			current = current.AddRecord(r)
		}
		lastKnownTx = raw.ID
	}

	c.lastKnownTx = lastKnownTx
	c.haveLastKnown = true
	c.latestDB = current

	return current, nil
}

// Transact submits tx to the transactor and blocks for its reply. A
// successful reply does not itself update this Conn's cache; the next Db()
// call picks up the new transaction from the log like any other.
func (c *Conn) Transact(req fact.Tx) fact.TxReport {
	return c.transactor.Transact(req)
}

func fromMetadata(store kv.Store, meta *fact.DbMetadata, cacheSize int) (*db.Db, error) {
	schema := fact.DeserializeSchema(meta.Schema)
	eav := indexFromRoot(store, fact.CompareEAVT, meta.EAVRoot, cacheSize)
	aev := indexFromRoot(store, fact.CompareAEVT, meta.AEVRoot, cacheSize)
	ave := indexFromRoot(store, fact.CompareAVET, meta.AVETRoot, cacheSize)
	vae := indexFromRoot(store, fact.CompareVAET, meta.VAETRoot, cacheSize)
	return db.New(store, schema, eav, aev, ave, vae), nil
}

func indexFromRoot(store kv.Store, cmp fact.Comparator, root string, cacheSize int) *index.Index {
	tree := durabletree.FromRoot[fact.Record](store, durabletree.Comparator[fact.Record](cmp), cacheSize, root)
	return index.New(cmp, tree)
}
