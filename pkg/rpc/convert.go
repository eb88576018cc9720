package rpc

import "github.com/nainya/cliodb/pkg/query"

func toWireVar(v query.Var) WireVar { return WireVar{Name: v.String()} }

func fromWireVar(v WireVar) query.Var { return query.NewVar(v.Name) }

func toWireTerm(t query.Term) WireTerm {
	if ident, ok := t.Ident(); ok {
		return WireTerm{Bound: true, HasIdent: true, Ident: ident}
	}
	if t.IsBound() {
		return WireTerm{Bound: true, Value: t.Value()}
	}
	return WireTerm{Var: toWireVar(t.Var())}
}

func fromWireTerm(t WireTerm) query.Term {
	if t.HasIdent {
		return query.BoundIdent(t.Ident)
	}
	if t.Bound {
		return query.Bound(t.Value)
	}
	return query.Unbound(fromWireVar(t.Var))
}

func toWireClause(c query.Clause) WireClause {
	return WireClause{
		Entity:    toWireTerm(c.Entity),
		Attribute: toWireTerm(c.Attribute),
		Value:     toWireTerm(c.Value),
	}
}

func fromWireClause(c WireClause) query.Clause {
	return query.Clause{
		Entity:    fromWireTerm(c.Entity),
		Attribute: fromWireTerm(c.Attribute),
		Value:     fromWireTerm(c.Value),
	}
}

func toWireConstraint(c query.Constraint) WireConstraint {
	return WireConstraint{Comparator: int(c.Comparator), LHS: toWireTerm(c.LHS), RHS: toWireTerm(c.RHS)}
}

func fromWireConstraint(c WireConstraint) query.Constraint {
	return query.Constraint{
		Comparator: query.Comparator(c.Comparator),
		LHS:        fromWireTerm(c.LHS),
		RHS:        fromWireTerm(c.RHS),
	}
}

func ToQueryRequest(q query.Query) *QueryRequest {
	req := &QueryRequest{}
	for _, v := range q.Find {
		req.Find = append(req.Find, toWireVar(v))
	}
	for _, c := range q.Clauses {
		req.Clauses = append(req.Clauses, toWireClause(c))
	}
	for _, c := range q.Constraints {
		req.Constraints = append(req.Constraints, toWireConstraint(c))
	}
	return req
}

func FromQueryRequest(req *QueryRequest) query.Query {
	q := query.Query{}
	for _, v := range req.Find {
		q.Find = append(q.Find, fromWireVar(v))
	}
	for _, c := range req.Clauses {
		q.Clauses = append(q.Clauses, fromWireClause(c))
	}
	for _, c := range req.Constraints {
		q.Constraints = append(q.Constraints, fromWireConstraint(c))
	}
	return q
}

func ToQueryReply(rel *query.Relation) *QueryReply {
	reply := &QueryReply{Tuples: rel.Tuples}
	for _, v := range rel.Vars {
		reply.Vars = append(reply.Vars, toWireVar(v))
	}
	return reply
}

func FromQueryReply(reply *QueryReply) *query.Relation {
	rel := &query.Relation{Tuples: reply.Tuples}
	for _, v := range reply.Vars {
		rel.Vars = append(rel.Vars, fromWireVar(v))
	}
	return rel
}
