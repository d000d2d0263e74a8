package ecs

// EntityID packs a 32-bit slot index (low bits) and a 32-bit generation (high
// bits). Destroying a slot bumps its generation, so a stale EntityID held by a
// deferred action never resolves to the slot's next occupant.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }

// Pool allocates entity slots with generational indices and a free list.
// Generations start at 1 so the zero EntityID is never handed out.
type Pool struct {
	generations []uint32
	free        []uint32
	live        int
}

func NewPool() *Pool {
	return &Pool{
		generations: make([]uint32, 0, 256),
		free:        make([]uint32, 0, 64),
	}
}

func (p *Pool) Create() EntityID {
	p.live++
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := uint32(len(p.generations))
	p.generations = append(p.generations, 1)
	return NewEntityID(idx, 1)
}

func (p *Pool) Alive(id EntityID) bool {
	idx := id.Index()
	if int(idx) >= len(p.generations) {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Destroy releases the slot. Destroying a stale id is a no-op.
func (p *Pool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false
	}
	idx := id.Index()
	p.generations[idx]++
	p.free = append(p.free, idx)
	p.live--
	return true
}

// Live returns the number of allocated, not yet destroyed entities.
func (p *Pool) Live() int { return p.live }
