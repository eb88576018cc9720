// Package db implements Db, an immutable snapshot of the database used for
// querying, and the index-selection logic that picks which of the four
// canonical orders to scan for a given clause.
package db

import (
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/index"
	"github.com/nainya/cliodb/pkg/kv"
	"github.com/nainya/cliodb/pkg/query"
)

// Db is a read-only view of the database at a point in time. It is cheap
// to hold onto: every mutation produces a new Db value (see pkg/tx) built
// by layering one more record onto the prior snapshot's indices, so
// concurrent readers never observe a partial write.
type Db struct {
	store  kv.Store
	schema *fact.Schema

	EAV *index.Index
	AEV *index.Index
	AVE *index.Index
	VAE *index.Index
}

var _ query.Fetcher = (*Db)(nil)

// New assembles a Db from its four index handles and schema.
func New(store kv.Store, schema *fact.Schema, eav, aev, ave, vae *index.Index) *Db {
	return &Db{store: store, schema: schema, EAV: eav, AEV: aev, AVE: ave, VAE: vae}
}

// Bootstrap builds the four empty indices directly against store and an
// empty schema, for use only when creating a brand new database.
func Bootstrap(store kv.Store, cacheSize int) (*Db, error) {
	eav, err := index.Empty(store, fact.CompareEAVT, cacheSize)
	if err != nil {
		return nil, err
	}
	aev, err := index.Empty(store, fact.CompareAEVT, cacheSize)
	if err != nil {
		return nil, err
	}
	ave, err := index.Empty(store, fact.CompareAVET, cacheSize)
	if err != nil {
		return nil, err
	}
	vae, err := index.Empty(store, fact.CompareVAET, cacheSize)
	if err != nil {
		return nil, err
	}
	return New(store, fact.NewSchema(), eav, aev, ave, vae), nil
}

// Schema implements query.Fetcher.
func (d *Db) Schema() *fact.Schema { return d.schema }

// Query plans and executes q against this snapshot.
func (d *Db) Query(q query.Query) (*query.Relation, error) {
	plan := query.PlanForQuery(q)
	return query.Execute(plan, d)
}

// MemIndexSize reports the size of the EAV index's unmerged overlay, which
// pkg/tx uses (alongside the other three, which always grow in lockstep)
// to decide when to trigger a rebuild.
func (d *Db) MemIndexSize() int { return d.EAV.MemSize() }

// AddRecord returns a new Db with r layered into EAV, AEV and AVE, plus VAE
// when r's value is itself an entity reference (VAET only makes sense as a
// reverse-reference index; a non-Ref value has nothing to reverse-look-up
// from). It does not touch the store; pkg/tx is responsible for appending r
// to the transaction log and persisting updated metadata.
func (d *Db) AddRecord(r fact.Record) *Db {
	next := &Db{
		store:  d.store,
		schema: d.schema,
		EAV:    d.EAV.Insert(r),
		AEV:    d.AEV.Insert(r),
		AVE:    d.AVE.Insert(r),
		VAE:    d.VAE,
	}
	if r.V.Type == fact.TypeRef {
		next.VAE = d.VAE.Insert(r)
	}
	return next
}

// WithSchema returns a Db using a replaced schema, for when a transaction
// introduces new idents or attribute value-types.
func (d *Db) WithSchema(s *fact.Schema) *Db {
	return &Db{store: d.store, schema: s, EAV: d.EAV, AEV: d.AEV, AVE: d.AVE, VAE: d.VAE}
}

// RecordsMatching implements query.Fetcher: it picks whichever index best
// fits clause's bound terms (after substituting binding) and returns the
// records that index's range scan yields. The result is a candidate set,
// not a final answer — unify still validates every field.
func (d *Db) RecordsMatching(clause query.Clause, binding query.Binding) ([]fact.Record, error) {
	e, eBound := substituteEntity(clause.Entity, binding)
	a, aBound := substituteAttribute(clause.Attribute, binding, d.schema)
	v, vBound := substituteValue(clause.Value, binding)

	switch {
	// ?e a v: attribute and value both known, entity unknown — scan AVET
	// from (a, v, min entity) while attribute and value stay fixed.
	case !eBound && aBound && vBound:
		start := fact.Addition(fact.MinEntity, a, v, fact.MinEntity)
		return scanWhile(d.AVE, start, func(r fact.Record) bool {
			return r.A == a && r.V.Equal(v)
		})

	// e a ?v: entity and attribute both known, value unknown — scan EAVT
	// from (e, a, lowest value) while entity and attribute stay fixed.
	case eBound && aBound && !vBound:
		start := fact.Addition(e, a, fact.Value{}, fact.MinEntity)
		return scanWhile(d.EAV, start, func(r fact.Record) bool {
			return r.E == e && r.A == a
		})

	// e a v: everything bound — same EAVT scan, narrowed further by value.
	case eBound && aBound && vBound:
		start := fact.Addition(e, a, v, fact.MinEntity)
		return scanWhile(d.EAV, start, func(r fact.Record) bool {
			return r.E == e && r.A == a && r.V.Equal(v)
		})

	// ?e a ?v: only the attribute is known — scan AEVT from (a, min
	// entity) while attribute stays fixed.
	case !eBound && aBound && !vBound:
		start := fact.Addition(fact.MinEntity, a, fact.Value{}, fact.MinEntity)
		return scanWhile(d.AEV, start, func(r fact.Record) bool {
			return r.A == a
		})

	// ?e ?a v: only a ref value is known, both entity and attribute are
	// unbound — the reverse-reference lookup ("who points at this
	// entity?"). VAET is the only index sorted value-first, so it's the
	// only one that can satisfy this without a full scan.
	case !eBound && !aBound && vBound && v.Type == fact.TypeRef:
		start := fact.Addition(fact.MinEntity, fact.MinEntity, v, fact.MinEntity)
		return scanWhile(d.VAE, start, func(r fact.Record) bool {
			return r.V.Equal(v)
		})

	// Fallthrough: nothing usable bound yet, or an unusual combination —
	// a full EAV scan is always correct, just not always fast.
	default:
		return fullScan(d.EAV)
	}
}

func scanWhile(idx *index.Index, start fact.Record, keep func(fact.Record) bool) ([]fact.Record, error) {
	it, err := idx.RangeFrom(start)
	if err != nil {
		return nil, err
	}
	var out []fact.Record
	for {
		r, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok || !keep(r) {
			break
		}
		out = append(out, r)
	}
	return fact.CancelRetractions(out), nil
}

func fullScan(idx *index.Index) ([]fact.Record, error) {
	it, err := idx.Iter()
	if err != nil {
		return nil, err
	}
	var out []fact.Record
	for {
		r, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, r)
	}
	return fact.CancelRetractions(out), nil
}

// substituteEntity resolves a term known to hold an Entity reference (the
// clause's entity or attribute position) against the current binding.
func substituteEntity(t query.Term, binding query.Binding) (fact.Entity, bool) {
	val, ok := substituteValue(t, binding)
	if !ok || val.Type != fact.TypeRef {
		return 0, false
	}
	return val.Ref, true
}

func substituteAttribute(t query.Term, binding query.Binding, schema *fact.Schema) (fact.Entity, bool) {
	if name, isIdent := t.Ident(); isIdent {
		return schema.Idents.GetEntity(name)
	}
	return substituteEntity(t, binding)
}

// substituteValue resolves the value position, which (unlike entity and
// attribute) is never required to be an Entity — it's whatever fact.Value
// the clause or binding holds.
func substituteValue(t query.Term, binding query.Binding) (fact.Value, bool) {
	if t.IsBound() {
		return t.Value(), true
	}
	return binding.Get(t.Var())
}
