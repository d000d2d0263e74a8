package ecs

// Removable is implemented by every component store so World can strip an
// entity's data from all stores when the entity is flushed.
type Removable interface {
	Remove(id EntityID)
}

// Store is a typed component table keyed by EntityID. Pointers handed out by
// Get stay valid until the entity is removed from the store.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{data: make(map[EntityID]*T, 64)}
}

// Attach allocates a zero component for id (or returns the existing one).
func (s *Store[T]) Attach(id EntityID) *T {
	if c, ok := s.data[id]; ok {
		return c
	}
	c := new(T)
	s.data[id] = c
	return c
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

// Lookup is Get without the ok flag; absent components come back nil.
func (s *Store[T]) Lookup(id EntityID) *T { return s.data[id] }

func (s *Store[T]) Remove(id EntityID) { delete(s.data, id) }

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int { return len(s.data) }
