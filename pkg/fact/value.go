// Package fact defines the core data model: entities, values, records,
// idents and schema. Values and records are immutable once constructed; a
// Schema and its IdentMap are grown in place (Add, AddValueType), so holders
// that share one Clone it before growing it.
package fact

import (
	"fmt"
	"time"
)

// Entity is a 64-bit monotonic identifier. Entities are allocated by the
// transactor and never reused.
type Entity int64

func (e Entity) String() string {
	return fmt.Sprintf("#%d", int64(e))
}

// ValueType tags the shape of a Value, and doubles as the `db:valueType`
// tag recorded in the schema for each attribute.
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeRef              // a reference to another Entity
	TypeIdent             // a symbolic name, resolved via the IdentMap
	TypeTimestamp
	TypeBoolean
	TypeLong
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "db:type:string"
	case TypeRef:
		return "db:type:ref"
	case TypeIdent:
		return "db:type:ident"
	case TypeTimestamp:
		return "db:type:timestamp"
	case TypeBoolean:
		return "db:type:boolean"
	case TypeLong:
		return "db:type:long"
	default:
		return "db:type:unknown"
	}
}

// Value is a tagged union over the types a fact may hold. It is totally
// ordered (by Type first, then by contents) so it can participate in index
// keys; see Compare.
type Value struct {
	Type ValueType
	Str  string    // String, Ident
	Ref  Entity    // Ref
	Ts   time.Time // Timestamp
	Bool bool      // Boolean
	Long int64     // Long
}

func StringValue(s string) Value { return Value{Type: TypeString, Str: s} }
func RefValue(e Entity) Value    { return Value{Type: TypeRef, Ref: e} }
func IdentValue(name string) Value { return Value{Type: TypeIdent, Str: name} }
func TimestampValue(t time.Time) Value { return Value{Type: TypeTimestamp, Ts: t} }
func BoolValue(b bool) Value     { return Value{Type: TypeBoolean, Bool: b} }
func LongValue(i int64) Value    { return Value{Type: TypeLong, Long: i} }

// Compare returns <0, 0, >0 in the total order used to sort index keys:
// first by Type, then by the type's natural ordering.
func (v Value) Compare(other Value) int {
	if v.Type != other.Type {
		if v.Type < other.Type {
			return -1
		}
		return 1
	}
	switch v.Type {
	case TypeString, TypeIdent:
		return compareString(v.Str, other.Str)
	case TypeRef:
		return compareInt64(int64(v.Ref), int64(other.Ref))
	case TypeTimestamp:
		return compareInt64(v.Ts.UnixNano(), other.Ts.UnixNano())
	case TypeBoolean:
		return compareBool(v.Bool, other.Bool)
	case TypeLong:
		return compareInt64(v.Long, other.Long)
	default:
		return 0
	}
}

func (v Value) Equal(other Value) bool { return v.Compare(other) == 0 }

func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return fmt.Sprintf("%q", v.Str)
	case TypeIdent:
		return v.Str
	case TypeRef:
		return v.Ref.String()
	case TypeTimestamp:
		return v.Ts.Format(time.RFC3339Nano)
	case TypeBoolean:
		return fmt.Sprintf("%v", v.Bool)
	case TypeLong:
		return fmt.Sprintf("%d", v.Long)
	default:
		return "<invalid value>"
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
