package fact

// TxItem is one effect requested within a transaction: add a fact, retract
// a fact, or mint a new entity carrying a map of attribute/value pairs.
type TxItem struct {
	Kind      TxItemKind
	Entity    Entity            // Addition, Retraction
	Attribute string            // Addition, Retraction: ident name
	Value     Value             // Addition, Retraction
	NewEntity map[string]Value  // NewEntity: attribute ident -> value
}

type TxItemKind uint8

const (
	ItemAddition TxItemKind = iota
	ItemRetraction
	ItemNewEntity
)

func Add(e Entity, attribute string, v Value) TxItem {
	return TxItem{Kind: ItemAddition, Entity: e, Attribute: attribute, Value: v}
}

func Retract(e Entity, attribute string, v Value) TxItem {
	return TxItem{Kind: ItemRetraction, Entity: e, Attribute: attribute, Value: v}
}

func NewEntityItem(attrs map[string]Value) TxItem {
	return TxItem{Kind: ItemNewEntity, NewEntity: attrs}
}

// Tx is a client-submitted transaction request: an ordered batch of items
// to apply atomically.
type Tx struct {
	Items []TxItem
}

// TxReport is the transactor's reply to a submitted Tx.
type TxReport struct {
	Success      bool
	NewEntities  []Entity
	FailureMessage string
}

// RawTx is what actually gets appended to the transaction log: the
// finished, fully-resolved records produced while processing a Tx,
// including the synthetic db:txTimestamp record.
type RawTx struct {
	ID      int64
	Records []Record
}

// DbMetadata is the single mutable cell held by the KV store: the root
// pointer of each of the four durable indices, the schema, and allocator
// bookkeeping.
type DbMetadata struct {
	NextID        int64
	LastIndexedTx int64
	Schema        SerializedSchema
	EAVRoot       string
	AEVRoot       string
	AVETRoot      string
	VAETRoot      string
}

// SerializedSchema is the wire/disk representation of a Schema: plain maps
// instead of the IdentMap's two-way index, since that index is rebuilt
// cheaply on load.
type SerializedSchema struct {
	Idents     map[string]Entity
	ValueTypes map[Entity]ValueType
}

// Serialize flattens a Schema for persistence.
func (s *Schema) Serialize() SerializedSchema {
	idents := make(map[string]Entity, len(s.Idents.byName))
	for name, e := range s.Idents.byName {
		idents[name] = e
	}
	valueTypes := make(map[Entity]ValueType, len(s.ValueTypes))
	for e, t := range s.ValueTypes {
		valueTypes[e] = t
	}
	return SerializedSchema{Idents: idents, ValueTypes: valueTypes}
}

// DeserializeSchema rebuilds a Schema from its serialized form.
func DeserializeSchema(s SerializedSchema) *Schema {
	out := NewSchema()
	for name, e := range s.Idents {
		out.Idents.Add(name, e)
	}
	for e, t := range s.ValueTypes {
		out.ValueTypes[e] = t
	}
	return out
}
