package query

import (
	"fmt"
	"strings"

	"github.com/nainya/cliodb/pkg/fact"
)

// Fetcher is the read side of a database snapshot that the executor needs:
// enough to resolve a clause's attribute idents and to pull the set of
// records that might satisfy a clause given what's already bound. The
// returned records are a candidate set (chosen by whichever index best
// fits the clause's bound terms); unify still re-checks every field.
type Fetcher interface {
	Schema() *fact.Schema
	RecordsMatching(clause Clause, binding Binding) ([]fact.Record, error)
}

// Execute runs plan against db and returns the resulting relation,
// projected to the columns the originating query asked to find.
func Execute(plan Plan, db Fetcher) (*Relation, error) {
	return executePlan(plan, db, Binding{})
}

func executePlan(plan Plan, db Fetcher, binding Binding) (*Relation, error) {
	switch p := plan.(type) {
	case *FetchPlan:
		return fetchRelation(db, p.Clause, binding)
	case *LookupEachPlan:
		return executeLookupEach(p, db, binding)
	case *JoinPlan:
		left, err := executePlan(p.Left, db, binding)
		if err != nil {
			return nil, err
		}
		right, err := executePlan(p.Right, db, binding)
		if err != nil {
			return nil, err
		}
		return joinRelations(left, right)
	case *CartesianProductPlan:
		return executeCartesianProduct(p, db, binding)
	case *ConstrainPlan:
		inner, err := executePlan(p.Inner, db, binding)
		if err != nil {
			return nil, err
		}
		return constrainRelation(inner, p.Constraints)
	case *ProjectPlan:
		inner, err := executePlan(p.Inner, db, binding)
		if err != nil {
			return nil, err
		}
		return projectRelation(inner, p.Vars), nil
	default:
		return nil, fmt.Errorf("query: unhandled plan node %T", plan)
	}
}

func fetchRelation(db Fetcher, clause Clause, binding Binding) (*Relation, error) {
	candidates, err := db.RecordsMatching(clause, binding)
	if err != nil {
		return nil, err
	}
	vars := clause.UnboundVars()
	rel := &Relation{Vars: vars}
	for _, r := range candidates {
		if b, ok := unify(binding, db.Schema(), clause, r); ok {
			rel.Tuples = append(rel.Tuples, rowFromBinding(b, vars))
		}
	}
	return rel, nil
}

// executeLookupEach re-evaluates Clause once per row of Inner's relation,
// substituting that row's bindings in before looking up candidates. This
// is what makes a clause that shares a variable with a prior relation a
// point lookup (e.g. per-entity) instead of a full scan.
func executeLookupEach(p *LookupEachPlan, db Fetcher, binding Binding) (*Relation, error) {
	inner, err := executePlan(p.Inner, db, binding)
	if err != nil {
		return nil, err
	}
	outputs := p.Outputs()
	rel := &Relation{Vars: outputs}

	for _, row := range inner.Tuples {
		subBinding := bindingFromRow(inner.Vars, row, binding)
		candidates, err := db.RecordsMatching(p.Clause, subBinding)
		if err != nil {
			return nil, err
		}
		for _, r := range candidates {
			if b, ok := unify(subBinding, db.Schema(), p.Clause, r); ok {
				rel.Tuples = append(rel.Tuples, rowFromBinding(b, outputs))
			}
		}
	}
	return rel, nil
}

func executeCartesianProduct(p *CartesianProductPlan, db Fetcher, binding Binding) (*Relation, error) {
	if len(p.Relations) == 0 {
		return &Relation{}, nil
	}
	result, err := executePlan(p.Relations[0], db, binding)
	if err != nil {
		return nil, err
	}
	for _, r := range p.Relations[1:] {
		next, err := executePlan(r, db, binding)
		if err != nil {
			return nil, err
		}
		result = cartesianProduct(result, next)
	}
	return result, nil
}

func cartesianProduct(a, b *Relation) *Relation {
	vars := append(append([]Var{}, a.Vars...), b.Vars...)
	rel := &Relation{Vars: vars}
	for _, ra := range a.Tuples {
		for _, rb := range b.Tuples {
			row := append(append([]fact.Value{}, ra...), rb...)
			rel.Tuples = append(rel.Tuples, row)
		}
	}
	return rel
}

// joinRelations performs a hash join on the variables common to both
// relations' columns, producing a's columns followed by b's non-shared
// columns.
func joinRelations(a, b *Relation) (*Relation, error) {
	joinIdxA, joinIdxB := commonColumns(a.Vars, b.Vars)
	if len(joinIdxA) == 0 {
		return cartesianProduct(a, b), nil
	}

	bOnly := exclusiveColumns(b.Vars, joinIdxB)
	outVars := append(append([]Var{}, a.Vars...), columnsAt(b.Vars, bOnly)...)

	index := make(map[string][][]fact.Value, len(b.Tuples))
	for _, row := range b.Tuples {
		key := rowKey(columnsAt(row, joinIdxB))
		index[key] = append(index[key], row)
	}

	rel := &Relation{Vars: outVars}
	for _, rowA := range a.Tuples {
		key := rowKey(columnsAt(rowA, joinIdxA))
		for _, rowB := range index[key] {
			combined := append(append([]fact.Value{}, rowA...), columnsAt(rowB, bOnly)...)
			rel.Tuples = append(rel.Tuples, combined)
		}
	}
	return rel, nil
}

// commonColumns returns, for each variable present in both va and vb, its
// index within va and within vb, in the order it appears in va.
func commonColumns(va, vb []Var) (idxA, idxB []int) {
	posB := make(map[string]int, len(vb))
	for i, v := range vb {
		posB[v.Name] = i
	}
	for i, v := range va {
		if j, ok := posB[v.Name]; ok {
			idxA = append(idxA, i)
			idxB = append(idxB, j)
		}
	}
	return idxA, idxB
}

// exclusiveColumns returns every index into vars not present in used.
func exclusiveColumns(vars []Var, used []int) []int {
	usedSet := make(map[int]bool, len(used))
	for _, i := range used {
		usedSet[i] = true
	}
	var out []int
	for i := range vars {
		if !usedSet[i] {
			out = append(out, i)
		}
	}
	return out
}

func columnsAt[T any](row []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}

func rowKey(row []fact.Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = fmt.Sprintf("%d|%s", v.Type, v.String())
	}
	return strings.Join(parts, "\x00")
}

func constrainRelation(rel *Relation, constraints []Constraint) (*Relation, error) {
	out := &Relation{Vars: rel.Vars}
	for _, row := range rel.Tuples {
		binding := bindingFromRow(rel.Vars, row, Binding{})
		ok, err := satisfiesAll(binding, constraints)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Tuples = append(out.Tuples, row)
		}
	}
	return out, nil
}

func satisfiesAll(binding Binding, constraints []Constraint) (bool, error) {
	for _, c := range constraints {
		ok, err := satisfies(binding, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func satisfies(binding Binding, c Constraint) (bool, error) {
	// A constraint with an unbound side is satisfied trivially.
	lhs, ok := resolveTerm(binding, c.LHS)
	if !ok {
		return true, nil
	}
	rhs, ok := resolveTerm(binding, c.RHS)
	if !ok {
		return true, nil
	}
	cmp := lhs.Compare(rhs)
	switch c.Comparator {
	case GreaterThan:
		return cmp > 0, nil
	case LessThan:
		return cmp < 0, nil
	case NotEqualTo:
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("query: unknown comparator %d", c.Comparator)
	}
}

func resolveTerm(binding Binding, t Term) (fact.Value, bool) {
	if t.IsBound() {
		return t.Value(), true
	}
	return binding.Get(t.Var())
}

func projectRelation(rel *Relation, vars []Var) *Relation {
	idx := make([]int, len(vars))
	pos := make(map[string]int, len(rel.Vars))
	for i, v := range rel.Vars {
		pos[v.Name] = i
	}
	for i, v := range vars {
		idx[i] = pos[v.Name]
	}
	out := &Relation{Vars: vars}
	for _, row := range rel.Tuples {
		out.Tuples = append(out.Tuples, columnsAt(row, idx))
	}
	return out
}

func rowFromBinding(b Binding, vars []Var) []fact.Value {
	row := make([]fact.Value, len(vars))
	for i, v := range vars {
		row[i] = b[v.Name]
	}
	return row
}

func bindingFromRow(vars []Var, row []fact.Value, base Binding) Binding {
	b := base.clone()
	for i, v := range vars {
		b[v.Name] = row[i]
	}
	return b
}
