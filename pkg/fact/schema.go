package fact

// Reserved ident names used by the bootstrap sequence and by schema
// validation. These mirror the source implementation's bootstrap facts.
const (
	IdentDbIdent       = "db:ident"
	IdentTxTimestamp   = "db:txTimestamp"
	IdentValueType     = "db:valueType"
	IdentIndexed       = "db:indexed"
	IdentTypeIdent     = "db:type:ident"
	IdentTypeString    = "db:type:string"
	IdentTypeTimestamp = "db:type:timestamp"
	IdentTypeRef       = "db:type:ref"
	IdentTypeBoolean   = "db:type:boolean"
	IdentTypeLong      = "db:type:long"
)

// bootstrapIdents lists every ident entity created during bootstrap, in
// allocation order. initial_tx_entity is allocated before all of them.
var bootstrapIdents = []string{
	IdentDbIdent,
	IdentTxTimestamp,
	IdentValueType,
	IdentIndexed,
	IdentTypeIdent,
	IdentTypeString,
	IdentTypeTimestamp,
	IdentTypeRef,
	IdentTypeBoolean,
	IdentTypeLong,
}

// BootstrapIdents returns the ordered list of idents the transactor must
// allocate entities for during bootstrap.
func BootstrapIdents() []string {
	out := make([]string, len(bootstrapIdents))
	copy(out, bootstrapIdents)
	return out
}

// bootstrapValueTypes pairs each attribute ident that needs a declared
// value type with the ident of its type tag.
var bootstrapValueTypes = []struct{ Attribute, Type string }{
	{IdentDbIdent, IdentTypeIdent},
	{IdentValueType, IdentTypeIdent},
	{IdentTxTimestamp, IdentTypeTimestamp},
	{IdentIndexed, IdentTypeBoolean},
}

// Schema maps attribute entities to their declared value type and holds
// the ident map. It grows monotonically: once an attribute has a
// db:valueType fact, re-declaring it with a different type is a schema
// violation (not checked at this layer; the transactor enforces it).
type Schema struct {
	Idents     *IdentMap
	ValueTypes map[Entity]ValueType
}

func NewSchema() *Schema {
	return &Schema{
		Idents:     NewIdentMap(),
		ValueTypes: make(map[Entity]ValueType),
	}
}

// Clone returns a schema that can be mutated independently of the
// receiver, sharing nothing.
func (s *Schema) Clone() *Schema {
	n := &Schema{
		Idents:     s.Idents.Clone(),
		ValueTypes: make(map[Entity]ValueType, len(s.ValueTypes)),
	}
	for k, v := range s.ValueTypes {
		n.ValueTypes[k] = v
	}
	return n
}

// AddValueType records that attribute a has the given declared type.
func (s *Schema) AddValueType(a Entity, t ValueType) {
	s.ValueTypes[a] = t
}

// ValueTypeOf returns the declared type for attribute a, if known.
func (s *Schema) ValueTypeOf(a Entity) (ValueType, bool) {
	t, ok := s.ValueTypes[a]
	return t, ok
}

// ResolveAttribute resolves an attribute term, which may be given either as
// an already-bound Entity or as an Ident value naming it, to the
// attribute's Entity.
func (s *Schema) ResolveAttribute(v Value) (Entity, bool) {
	switch v.Type {
	case TypeRef:
		return v.Ref, true
	case TypeIdent:
		return s.Idents.GetEntity(v.Str)
	default:
		return 0, false
	}
}

// ValueTypeToIdent maps a ValueType to the ident naming its type tag, for
// recording db:valueType facts.
func ValueTypeToIdent(t ValueType) string {
	switch t {
	case TypeString:
		return IdentTypeString
	case TypeRef:
		return IdentTypeRef
	case TypeIdent:
		return IdentTypeIdent
	case TypeTimestamp:
		return IdentTypeTimestamp
	case TypeBoolean:
		return IdentTypeBoolean
	case TypeLong:
		return IdentTypeLong
	default:
		return ""
	}
}

// IdentToValueType is the inverse of ValueTypeToIdent.
func IdentToValueType(ident string) (ValueType, bool) {
	switch ident {
	case IdentTypeString:
		return TypeString, true
	case IdentTypeRef:
		return TypeRef, true
	case IdentTypeIdent:
		return TypeIdent, true
	case IdentTypeTimestamp:
		return TypeTimestamp, true
	case IdentTypeBoolean:
		return TypeBoolean, true
	case IdentTypeLong:
		return TypeLong, true
	default:
		return 0, false
	}
}

// BootstrapValueTypeFacts returns the (attribute ident, type ident) pairs
// that must be committed as db:valueType facts during bootstrap.
func BootstrapValueTypeFacts() []struct{ Attribute, Type string } {
	out := make([]struct{ Attribute, Type string }, len(bootstrapValueTypes))
	copy(out, bootstrapValueTypes)
	return out
}
