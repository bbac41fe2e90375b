package mode

// Store exposes persona lookup for the orchestrator and HTTP handlers.
type Store interface {
	List() []Persona
	Find(m Mode) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the persona catalogue in declaration order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// Find looks up the persona bound to m.
func (s *MemoryStore) Find(m Mode) (Persona, bool) {
	for _, item := range s.items {
		if item.Mode == m {
			return item, true
		}
	}
	return Persona{}, false
}
