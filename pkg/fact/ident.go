package fact

// IdentMap resolves symbolic names (e.g. "db:ident", "name") to the Entity
// that carries that name, and back. It grows only by ordinary facts using
// the reserved "db:ident" attribute; retraction of an ident removes the
// mapping but never the underlying entity.
//
// Persistent by convention: callers that want copy-on-write semantics call
// Clone before mutating via Add/Retract, matching the source's
// "IdentMap{mappings: Vec<(String,Entity)>}" grown via full-clone on add.
type IdentMap struct {
	byName   map[string]Entity
	byEntity map[Entity]string
}

func NewIdentMap() *IdentMap {
	return &IdentMap{
		byName:   make(map[string]Entity),
		byEntity: make(map[Entity]string),
	}
}

// Clone returns a copy that can be mutated independently.
func (m *IdentMap) Clone() *IdentMap {
	n := NewIdentMap()
	for k, v := range m.byName {
		n.byName[k] = v
	}
	for k, v := range m.byEntity {
		n.byEntity[k] = v
	}
	return n
}

// Add records that name refers to e. Idempotent overwrite: a later Add for
// the same name re-points it (used when replaying ident renames).
func (m *IdentMap) Add(name string, e Entity) {
	if old, ok := m.byName[name]; ok {
		delete(m.byEntity, old)
	}
	m.byName[name] = e
	m.byEntity[e] = name
}

// Retract removes the mapping for name, if any.
func (m *IdentMap) Retract(name string) {
	if e, ok := m.byName[name]; ok {
		delete(m.byName, name)
		delete(m.byEntity, e)
	}
}

// GetEntity resolves a symbolic name to its Entity.
func (m *IdentMap) GetEntity(name string) (Entity, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// GetIdent resolves an Entity back to its symbolic name, if it has one.
func (m *IdentMap) GetIdent(e Entity) (string, bool) {
	name, ok := m.byEntity[e]
	return name, ok
}

// MustGetEntity panics if name is unresolvable; reserved for bootstrap code
// paths where the ident is known to exist by construction.
func (m *IdentMap) MustGetEntity(name string) Entity {
	e, ok := m.GetEntity(name)
	if !ok {
		panic("cliodb: unresolved bootstrap ident " + name)
	}
	return e
}
