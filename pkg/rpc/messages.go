package rpc

import "github.com/nainya/cliodb/pkg/fact"

// The types below are the wire shape of query.Var/Term/Clause/Constraint:
// query.Term deliberately keeps its fields unexported (it's a small tagged
// union with constructors), so gob — which only ever sees exported fields
// — needs its own mirror. convert.go maps between the two.

// WireVar names an unbound query variable.
type WireVar struct {
	Name string
}

// WireTerm mirrors query.Term: exactly one of Bound, HasIdent should be
// meaningful depending on which flag is set; Var is only meaningful when
// neither is.
type WireTerm struct {
	Bound    bool
	Value    fact.Value
	HasIdent bool
	Ident    string
	Var      WireVar
}

// WireClause mirrors query.Clause.
type WireClause struct {
	Entity    WireTerm
	Attribute WireTerm
	Value     WireTerm
}

// WireConstraint mirrors query.Constraint.
type WireConstraint struct {
	Comparator int
	LHS, RHS   WireTerm
}

// TxRequest carries a client-submitted transaction.
type TxRequest struct {
	Tx fact.Tx
}

// TxReply carries the transactor's reply.
type TxReply struct {
	Success        bool
	NewEntities    []fact.Entity
	FailureMessage string
}

// QueryRequest carries a find/where/constraints query.
type QueryRequest struct {
	Find        []WireVar
	Clauses     []WireClause
	Constraints []WireConstraint
}

// QueryReply carries the resulting relation: Vars names each column,
// Tuples holds one row per result.
type QueryReply struct {
	Vars   []WireVar
	Tuples [][]fact.Value
}
