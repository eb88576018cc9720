// Package query implements the Datalog-style query language: clauses over
// entity/attribute/value terms, a planner that turns a conjunction of
// clauses into an executable plan tree, and an executor that runs that
// plan against a snapshot of the database.
package query

import "github.com/nainya/cliodb/pkg/fact"

// Var is a logic variable name, e.g. "?e".
type Var struct {
	Name string
}

func NewVar(name string) Var { return Var{Name: name} }

func (v Var) String() string { return v.Name }

// Term is either a bound value or an unbound variable. Entity and value
// terms both use Term, parameterized by what "bound" means for that
// position.
type Term struct {
	bound bool
	value fact.Value
	ident string // unresolved symbolic attribute/ident reference, e.g. "person/name"
	v     Var
}

func Bound(v fact.Value) Term { return Term{bound: true, value: v} }

// BoundIdent marks a term bound to a symbolic name that must be resolved
// against the schema's ident map before use (e.g. an attribute position
// written as a bare keyword in the query).
func BoundIdent(name string) Term { return Term{bound: true, ident: name} }

func Unbound(v Var) Term { return Term{bound: false, v: v} }

func (t Term) IsBound() bool     { return t.bound }
func (t Term) Var() Var          { return t.v }
func (t Term) Value() fact.Value { return t.value }
func (t Term) Ident() (string, bool) {
	if t.bound && t.ident != "" {
		return t.ident, true
	}
	return "", false
}

// Clause is one (entity, attribute, value) pattern in a query's body.
type Clause struct {
	Entity    Term
	Attribute Term
	Value     Term
}

// UnboundVars returns the variables this clause introduces, in
// entity/attribute/value order.
func (c Clause) UnboundVars() []Var {
	var vars []Var
	if !c.Entity.IsBound() {
		vars = append(vars, c.Entity.Var())
	}
	if !c.Attribute.IsBound() {
		vars = append(vars, c.Attribute.Var())
	}
	if !c.Value.IsBound() {
		vars = append(vars, c.Value.Var())
	}
	return vars
}

// Comparator is a constraint's relational operator.
type Comparator int

const (
	GreaterThan Comparator = iota
	LessThan
	NotEqualTo
)

// Constraint filters rows of an already-computed relation; it is applied
// after all clauses have been joined (see Plan's Constrain node).
type Constraint struct {
	Comparator Comparator
	LHS        Term
	RHS        Term
}

// Query is a complete Datalog query: find these variables, subject to
// these clauses and constraints.
type Query struct {
	Find        []Var
	Clauses     []Clause
	Constraints []Constraint
}

// Relation is a tabular result: Vars names the columns, Tuples its rows.
// Every tuple has len(Vars) values, in column order.
type Relation struct {
	Vars   []Var
	Tuples [][]fact.Value
}
