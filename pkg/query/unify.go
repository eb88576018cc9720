package query

import "github.com/nainya/cliodb/pkg/fact"

// Binding maps variable names to the value they've been unified with so
// far during plan execution.
type Binding map[string]fact.Value

func (b Binding) clone() Binding {
	nb := make(Binding, len(b)+1)
	for k, v := range b {
		nb[k] = v
	}
	return nb
}

// Get returns the value currently bound to v, if any.
func (b Binding) Get(v Var) (fact.Value, bool) {
	val, ok := b[v.Name]
	return val, ok
}

// unify attempts to extend binding with the entity/attribute/value
// variables of clause against a candidate record, failing if any bound
// term (or any variable already bound to a different value) conflicts
// with the record's fields. The attribute position additionally accepts a
// symbolic ident name, resolved against schema.
func unify(binding Binding, schema *fact.Schema, clause Clause, r fact.Record) (Binding, bool) {
	b := binding
	var ok bool

	b, ok = unifyTerm(b, clause.Entity, fact.RefValue(r.E))
	if !ok {
		return nil, false
	}

	if identName, isIdent := clause.Attribute.Ident(); isIdent {
		resolved, found := schema.Idents.GetEntity(identName)
		if !found || resolved != r.A {
			return nil, false
		}
	} else {
		b, ok = unifyTerm(b, clause.Attribute, fact.RefValue(r.A))
		if !ok {
			return nil, false
		}
	}

	b, ok = unifyTerm(b, clause.Value, r.V)
	if !ok {
		return nil, false
	}

	return b, true
}

func unifyTerm(b Binding, term Term, val fact.Value) (Binding, bool) {
	if term.IsBound() {
		if term.Value().Equal(val) {
			return b, true
		}
		return nil, false
	}
	v := term.Var()
	if existing, ok := b[v.Name]; ok {
		if existing.Equal(val) {
			return b, true
		}
		return nil, false
	}
	nb := b.clone()
	nb[v.Name] = val
	return nb, true
}
