package tx

import (
	"time"

	"github.com/nainya/cliodb/pkg/db"
	"github.com/nainya/cliodb/pkg/durabletree"
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/index"
	"github.com/nainya/cliodb/pkg/kv"
)

// indexFromRoot reattaches to an already-persisted durable tree root,
// wrapping it with a fresh (empty) in-memory overlay — the overlay only
// ever exists in the transactor's live currentDB, never on disk.
func indexFromRoot(store kv.Store, cmp fact.Comparator, root string, cacheSize int) *index.Index {
	tree := durabletree.FromRoot[fact.Record](store, durabletree.Comparator[fact.Record](cmp), cacheSize, root)
	return index.New(cmp, tree)
}

// bootstrapDB creates the four empty durable indices, allocates entities
// for the core reserved idents, and commits the initial bootstrap
// transaction declaring them — mirroring the source implementation's
// create_db: one entity for the bootstrap transaction itself, then one per
// ident, then db:ident/db:valueType facts for all of them.
func bootstrapDB(store kv.Store, cacheSize int) (*db.Db, int64, error) {
	current, err := db.Bootstrap(store, cacheSize)
	if err != nil {
		return nil, 0, err
	}

	nextID := int64(0)
	getID := func() fact.Entity {
		id := nextID
		nextID++
		return fact.Entity(id)
	}

	txEntity := getID()

	idents := fact.BootstrapIdents()
	entities := make(map[string]fact.Entity, len(idents))
	for _, name := range idents {
		entities[name] = getID()
	}

	schema := current.Schema()
	for name, e := range entities {
		schema.Idents.Add(name, e)
	}

	for _, vt := range fact.BootstrapValueTypeFacts() {
		attr := entities[vt.Attribute]
		schema.AddValueType(attr, mustValueType(vt.Type))
		// db:valueType's own declared type is db:type:ident, so the fact
		// names the type tag by ident, not by a ref to its entity.
		current = current.AddRecord(fact.Addition(attr, entities[fact.IdentValueType], fact.IdentValue(vt.Type), txEntity))
	}
	for _, name := range idents {
		current = current.AddRecord(fact.Addition(entities[name], entities[fact.IdentDbIdent], fact.IdentValue(name), txEntity))
	}

	current = current.AddRecord(fact.Addition(txEntity, entities[fact.IdentTxTimestamp], fact.TimestampValue(time.Now().UTC()), txEntity))
	current = current.WithSchema(schema)

	return current, nextID, nil
}

func mustValueType(ident string) fact.ValueType {
	t, ok := fact.IdentToValueType(ident)
	if !ok {
		panic("cliodb/tx: unknown bootstrap value type ident " + ident)
	}
	return t
}
