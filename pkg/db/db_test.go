package db

import (
	"testing"

	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv/memstore"
	"github.com/nainya/cliodb/pkg/query"
)

func newTestDb(t *testing.T) *Db {
	t.Helper()
	d, err := Bootstrap(memstore.New(), 64)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return d
}

func TestAddRecordPopulatesEAVAEVAVE(t *testing.T) {
	d := newTestDb(t)
	r := fact.Addition(fact.Entity(1), fact.Entity(2), fact.StringValue("hi"), fact.Entity(100))
	next := d.AddRecord(r)

	if next.EAV.MemSize() != 1 {
		t.Errorf("EAV mem size = %d, want 1", next.EAV.MemSize())
	}
	if next.AEV.MemSize() != 1 {
		t.Errorf("AEV mem size = %d, want 1", next.AEV.MemSize())
	}
	if next.AVE.MemSize() != 1 {
		t.Errorf("AVE mem size = %d, want 1", next.AVE.MemSize())
	}
	if next.VAE.MemSize() != 0 {
		t.Errorf("VAE mem size = %d, want 0 for a non-ref value", next.VAE.MemSize())
	}
}

func TestAddRecordPopulatesVAEOnlyForRefValues(t *testing.T) {
	d := newTestDb(t)
	r := fact.Addition(fact.Entity(1), fact.Entity(2), fact.RefValue(fact.Entity(9)), fact.Entity(100))
	next := d.AddRecord(r)

	if next.VAE.MemSize() != 1 {
		t.Errorf("VAE mem size = %d, want 1 for a ref value", next.VAE.MemSize())
	}
}

func TestAddRecordDoesNotMutateReceiver(t *testing.T) {
	d := newTestDb(t)
	before := d.MemIndexSize()
	_ = d.AddRecord(fact.Addition(fact.Entity(1), fact.Entity(2), fact.StringValue("hi"), fact.Entity(100)))

	if d.MemIndexSize() != before {
		t.Errorf("AddRecord mutated the receiver: before=%d after=%d", before, d.MemIndexSize())
	}
}

func TestWithSchemaDoesNotMutateReceiver(t *testing.T) {
	d := newTestDb(t)
	original := d.Schema()

	grown := original.Clone()
	grown.Idents.Add("person/name", fact.Entity(123))
	next := d.WithSchema(grown)

	if _, ok := d.Schema().Idents.GetEntity("person/name"); ok {
		t.Error("WithSchema mutated the receiver's schema")
	}
	if _, ok := next.Schema().Idents.GetEntity("person/name"); !ok {
		t.Error("expected the new Db to carry the grown schema")
	}
}

func TestQueryFindsMatchingEntity(t *testing.T) {
	d := newTestDb(t)
	schema := d.Schema()
	nameAttr, ok := schema.Idents.GetEntity("db:ident")
	if !ok {
		t.Fatal("db:ident should be bootstrapped")
	}

	e := fact.Entity(500)
	d = d.AddRecord(fact.Addition(e, nameAttr, fact.IdentValue("widget/gear"), fact.Entity(100)))

	v := query.NewVar("e")
	q := query.Query{
		Find: []query.Var{v},
		Clauses: []query.Clause{
			{
				Entity:    query.Unbound(v),
				Attribute: query.BoundIdent("db:ident"),
				Value:     query.Bound(fact.IdentValue("widget/gear")),
			},
		},
	}

	rel, err := d.Query(q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rel.Tuples) != 1 {
		t.Fatalf("got %d tuples, want 1", len(rel.Tuples))
	}
	if rel.Tuples[0][0].Ref != e {
		t.Errorf("got entity %v, want %v", rel.Tuples[0][0].Ref, e)
	}
}

func TestQueryDoesNotReturnRetractedFacts(t *testing.T) {
	d := newTestDb(t)
	d.Schema().Idents.Add("db:ident", fact.Entity(1))
	nameAttr, _ := d.Schema().Idents.GetEntity("db:ident")

	e := fact.Entity(501)
	d = d.AddRecord(fact.Addition(e, nameAttr, fact.IdentValue("widget/bolt"), fact.Entity(100)))
	d = d.AddRecord(fact.Retraction(e, nameAttr, fact.IdentValue("widget/bolt"), fact.Entity(101)))

	v := query.NewVar("e")
	q := query.Query{
		Find: []query.Var{v},
		Clauses: []query.Clause{
			{
				Entity:    query.Unbound(v),
				Attribute: query.BoundIdent("db:ident"),
				Value:     query.Bound(fact.IdentValue("widget/bolt")),
			},
		},
	}

	rel, err := d.Query(q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rel.Tuples) != 0 {
		t.Fatalf("got %d tuples, want 0 after retraction", len(rel.Tuples))
	}
}
