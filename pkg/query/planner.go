package query

// PlanForQuery compiles a query's clauses into an executable Plan tree.
//
// Clauses are folded left to right, maintaining a list of relations built
// so far. For each clause, relations whose output variables overlap the
// clause's unbound variables are pulled out; if any are found, the first
// becomes a LookupEach re-evaluating the clause per bound row, joined
// against any further overlapping relations, and the result replaces them
// in the relation list. If none overlap, the clause starts a fresh Fetch.
// Once every clause is folded in, the remaining relations are combined by a
// CartesianProduct if more than one survives (clauses that never shared a
// variable have nothing to join on), any constraints are applied to the
// result, and it is projected down to the query's find variables.
func PlanForQuery(q Query) Plan {
	var relations []Plan

	for _, clause := range q.Clauses {
		var overlapping, nonOverlapping []Plan
		for _, rel := range relations {
			if overlaps(clause, rel) {
				overlapping = append(overlapping, rel)
			} else {
				nonOverlapping = append(nonOverlapping, rel)
			}
		}

		var next Plan
		if len(overlapping) == 0 {
			next = &FetchPlan{Clause: clause}
		} else {
			next = &LookupEachPlan{Inner: overlapping[0], Clause: clause}
			if len(overlapping) > 1 {
				next = joinAll(append([]Plan{next}, overlapping[1:]...))
			}
		}
		relations = append(nonOverlapping, next)
	}

	var combined Plan
	switch len(relations) {
	case 0:
		combined = &CartesianProductPlan{}
	case 1:
		combined = relations[0]
	default:
		combined = &CartesianProductPlan{Relations: relations}
	}

	if len(q.Constraints) > 0 {
		combined = &ConstrainPlan{Inner: combined, Constraints: q.Constraints}
	}

	return &ProjectPlan{Inner: combined, Vars: q.Find}
}

// overlaps reports whether clause shares an unbound variable with rel's
// current outputs.
func overlaps(clause Clause, rel Plan) bool {
	outputs := make(map[string]bool)
	for _, v := range rel.Outputs() {
		outputs[v.Name] = true
	}
	for _, v := range clause.UnboundVars() {
		if outputs[v.Name] {
			return true
		}
	}
	return false
}

// joinAll folds a list of relations pairwise into a single Join tree.
func joinAll(relations []Plan) Plan {
	result := relations[0]
	for _, rel := range relations[1:] {
		result = &JoinPlan{Left: result, Right: rel}
	}
	return result
}
