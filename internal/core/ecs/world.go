package ecs

// World owns the entity pool, the registered component stores and a deferred
// destruction queue. Entities queued with MarkForDestruction keep their
// components until Flush runs at the end of the tick, so handlers later in the
// same tick can still read them through a stale-safe lookup.
type World struct {
	pool   *Pool
	stores []Removable
	queue  []EntityID
}

func NewWorld() *World {
	return &World{
		pool:   NewPool(),
		stores: make([]Removable, 0, 8),
		queue:  make([]EntityID, 0, 32),
	}
}

// Register adds a component store to the cleanup set.
func (w *World) Register(store Removable) {
	w.stores = append(w.stores, store)
}

func (w *World) Create() EntityID { return w.pool.Create() }

func (w *World) Alive(id EntityID) bool { return w.pool.Alive(id) }

func (w *World) Live() int { return w.pool.Live() }

// MarkForDestruction queues id for the next Flush. Queuing twice is harmless.
func (w *World) MarkForDestruction(id EntityID) {
	w.queue = append(w.queue, id)
}

// Pending reports how many entities are waiting for Flush.
func (w *World) Pending() int { return len(w.queue) }

// Flush strips queued entities from every store and releases their slots.
// Returns how many entities were actually destroyed.
func (w *World) Flush() int {
	n := 0
	for _, id := range w.queue {
		if !w.pool.Alive(id) {
			continue
		}
		for _, s := range w.stores {
			s.Remove(id)
		}
		w.pool.Destroy(id)
		n++
	}
	w.queue = w.queue[:0]
	return n
}
