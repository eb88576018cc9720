package fact

import "math"

// Record is a single committed fact: a quadruple of entity, attribute,
// value and the transaction that produced it, plus a retraction flag.
// Records are never mutated or deleted once committed; a retraction is a
// brand new Record with Retracted set, pointing at the same (E, A, V).
type Record struct {
	E         Entity
	A         Entity
	V         Value
	Tx        Entity
	Retracted bool
}

// Addition builds a non-retracting record.
func Addition(e, a Entity, v Value, tx Entity) Record {
	return Record{E: e, A: a, V: v, Tx: tx, Retracted: false}
}

// Retraction builds a record that cancels a previously-added (e, a, v).
func Retraction(e, a Entity, v Value, tx Entity) Record {
	return Record{E: e, A: a, V: v, Tx: tx, Retracted: true}
}

// SameFact reports whether two records refer to the same (entity,
// attribute, value) triple, ignoring tx and retraction status. Used to
// detect whether a retraction cancels a preceding addition.
func (r Record) SameFact(other Record) bool {
	return r.E == other.E && r.A == other.A && r.V.Equal(other.V)
}

// Comparator orders two records; used to parameterize the four canonical
// index sort orders (EAVT, AEVT, AVET, VAET). Retracted is always the
// least-significant tie-breaker so that an addition sorts immediately
// before the retraction that supersedes it.
type Comparator func(a, b Record) int

func compareEntity(a, b Entity) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareRetracted(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// CompareEAVT orders by entity, attribute, value, tx, retracted.
func CompareEAVT(a, b Record) int {
	if c := compareEntity(a.E, b.E); c != 0 {
		return c
	}
	if c := compareEntity(a.A, b.A); c != 0 {
		return c
	}
	if c := a.V.Compare(b.V); c != 0 {
		return c
	}
	if c := compareEntity(a.Tx, b.Tx); c != 0 {
		return c
	}
	return compareRetracted(a.Retracted, b.Retracted)
}

// CompareAEVT orders by attribute, entity, value, tx, retracted.
func CompareAEVT(a, b Record) int {
	if c := compareEntity(a.A, b.A); c != 0 {
		return c
	}
	if c := compareEntity(a.E, b.E); c != 0 {
		return c
	}
	if c := a.V.Compare(b.V); c != 0 {
		return c
	}
	if c := compareEntity(a.Tx, b.Tx); c != 0 {
		return c
	}
	return compareRetracted(a.Retracted, b.Retracted)
}

// CompareAVET orders by attribute, value, entity, tx, retracted.
func CompareAVET(a, b Record) int {
	if c := compareEntity(a.A, b.A); c != 0 {
		return c
	}
	if c := a.V.Compare(b.V); c != 0 {
		return c
	}
	if c := compareEntity(a.E, b.E); c != 0 {
		return c
	}
	if c := compareEntity(a.Tx, b.Tx); c != 0 {
		return c
	}
	return compareRetracted(a.Retracted, b.Retracted)
}

// CompareVAET orders by value, attribute, entity, tx, retracted. Only
// populated for records whose value is an entity reference (used for
// reverse-reference lookups).
func CompareVAET(a, b Record) int {
	if c := a.V.Compare(b.V); c != 0 {
		return c
	}
	if c := compareEntity(a.A, b.A); c != 0 {
		return c
	}
	if c := compareEntity(a.E, b.E); c != 0 {
		return c
	}
	if c := compareEntity(a.Tx, b.Tx); c != 0 {
		return c
	}
	return compareRetracted(a.Retracted, b.Retracted)
}

// CancelRetractions collapses a run of records already grouped by
// (entity, attribute, value) — as any of the four canonical orders
// guarantee, since each groups by that triple before Tx — down to the
// current fact for each group: the fact is live only if the
// latest-by-tx record in its group is an addition. A fact added once and
// never retracted counts as live regardless of how many times it was
// re-asserted; a fact retracted after its last addition is dropped
// entirely.
func CancelRetractions(records []Record) []Record {
	var out []Record
	i := 0
	for i < len(records) {
		j := i
		for j < len(records) && records[j].SameFact(records[i]) {
			j++
		}
		if last := records[j-1]; !last.Retracted {
			out = append(out, last)
		}
		i = j
	}
	return out
}

// MinEntity and MaxEntity bound index range scans.
var (
	MinEntity = Entity(math.MinInt64)
	MaxEntity = Entity(math.MaxInt64)
)
