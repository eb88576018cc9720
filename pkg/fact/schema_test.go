package fact

import "testing"

func TestSchemaAddAndResolveValueType(t *testing.T) {
	s := NewSchema()
	attr := Entity(1)
	s.AddValueType(attr, TypeLong)

	got, ok := s.ValueTypeOf(attr)
	if !ok || got != TypeLong {
		t.Fatalf("got (%v, %v), want (TypeLong, true)", got, ok)
	}
}

func TestSchemaCloneIsIndependent(t *testing.T) {
	s := NewSchema()
	s.Idents.Add("person/name", Entity(1))
	s.AddValueType(Entity(1), TypeString)

	clone := s.Clone()
	clone.Idents.Add("person/age", Entity(2))
	clone.AddValueType(Entity(2), TypeLong)

	if _, ok := s.Idents.GetEntity("person/age"); ok {
		t.Error("mutating the clone's idents should not affect the original")
	}
	if _, ok := s.ValueTypeOf(Entity(2)); ok {
		t.Error("mutating the clone's value types should not affect the original")
	}
	if _, ok := clone.Idents.GetEntity("person/name"); !ok {
		t.Error("expected the clone to retain idents present at clone time")
	}
}

func TestResolveAttributeFromIdentAndRef(t *testing.T) {
	s := NewSchema()
	s.Idents.Add("person/name", Entity(7))

	e, ok := s.ResolveAttribute(IdentValue("person/name"))
	if !ok || e != Entity(7) {
		t.Fatalf("got (%v, %v), want (7, true)", e, ok)
	}

	e, ok = s.ResolveAttribute(RefValue(Entity(9)))
	if !ok || e != Entity(9) {
		t.Fatalf("got (%v, %v), want (9, true)", e, ok)
	}

	if _, ok := s.ResolveAttribute(LongValue(3)); ok {
		t.Error("expected a non-ident, non-ref value to fail to resolve as an attribute")
	}
}

func TestValueTypeIdentRoundTrip(t *testing.T) {
	for _, vt := range []ValueType{TypeString, TypeRef, TypeIdent, TypeTimestamp, TypeBoolean, TypeLong} {
		ident := ValueTypeToIdent(vt)
		got, ok := IdentToValueType(ident)
		if !ok || got != vt {
			t.Errorf("round trip for %v failed: ident=%q got=%v ok=%v", vt, ident, got, ok)
		}
	}
}

func TestIdentMapAddOverwritesPriorMapping(t *testing.T) {
	m := NewIdentMap()
	m.Add("color", Entity(1))
	m.Add("color", Entity(2))

	e, ok := m.GetEntity("color")
	if !ok || e != Entity(2) {
		t.Fatalf("got (%v, %v), want (2, true)", e, ok)
	}
	if _, ok := m.GetIdent(Entity(1)); ok {
		t.Error("expected the old entity's reverse mapping to be cleared on overwrite")
	}
	name, ok := m.GetIdent(Entity(2))
	if !ok || name != "color" {
		t.Fatalf("got (%q, %v), want (color, true)", name, ok)
	}
}

func TestIdentMapRetract(t *testing.T) {
	m := NewIdentMap()
	m.Add("color", Entity(1))
	m.Retract("color")

	if _, ok := m.GetEntity("color"); ok {
		t.Error("expected retracted ident to no longer resolve")
	}
}
