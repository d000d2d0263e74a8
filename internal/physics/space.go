package physics

import (
	"math"
	"sort"
	"time"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/geom"
)

// Body is a moving circle in the simulation. Positions are in tile units,
// y-up.
type Body struct {
	ID       ident.NetID
	Pos      geom.Vec2
	Vel      geom.Vec2
	Radius   float64
	Layer    Layer
	Gravity  bool
	Grounded bool
}

// Impulse adds an instantaneous velocity change.
func (b *Body) Impulse(v geom.Vec2) { b.Vel = b.Vel.Add(v) }

// bucket size for the overlap index, in tiles.
const bucket = 4

type cellKey struct{ cx, cy int32 }

func toBucket(v float64) int32 { return int32(math.Floor(v / bucket)) }

// Space holds every body and answers overlap queries against a bucketed
// index. Game loop only; no locks.
type Space struct {
	tiles   *Tiles
	gravity float64
	bodies  map[ident.NetID]*Body
	cells   map[cellKey]map[ident.NetID]struct{}
	at      map[ident.NetID]cellKey
}

func NewSpace(tiles *Tiles, gravity float64) *Space {
	return &Space{
		tiles:   tiles,
		gravity: gravity,
		bodies:  make(map[ident.NetID]*Body),
		cells:   make(map[cellKey]map[ident.NetID]struct{}),
		at:      make(map[ident.NetID]cellKey),
	}
}

func (s *Space) Tiles() *Tiles { return s.tiles }

// Add inserts a body. A body with the same ID is replaced.
func (s *Space) Add(b *Body) {
	s.Remove(b.ID)
	s.bodies[b.ID] = b
	s.index(b)
}

func (s *Space) Remove(id ident.NetID) {
	if _, ok := s.bodies[id]; !ok {
		return
	}
	s.unindex(id)
	delete(s.bodies, id)
}

func (s *Space) Get(id ident.NetID) (*Body, bool) {
	b, ok := s.bodies[id]
	return b, ok
}

func (s *Space) Len() int { return len(s.bodies) }

// Teleport moves a body without collision, e.g. for a mirrored position.
func (s *Space) Teleport(id ident.NetID, pos geom.Vec2) {
	b, ok := s.bodies[id]
	if !ok {
		return
	}
	b.Pos = pos
	s.reindex(b)
}

func (s *Space) index(b *Body) {
	k := cellKey{toBucket(b.Pos.X), toBucket(b.Pos.Y)}
	cell := s.cells[k]
	if cell == nil {
		cell = make(map[ident.NetID]struct{})
		s.cells[k] = cell
	}
	cell[b.ID] = struct{}{}
	s.at[b.ID] = k
}

func (s *Space) unindex(id ident.NetID) {
	k, ok := s.at[id]
	if !ok {
		return
	}
	if cell := s.cells[k]; cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(s.cells, k)
		}
	}
	delete(s.at, id)
}

func (s *Space) reindex(b *Body) {
	k := cellKey{toBucket(b.Pos.X), toBucket(b.Pos.Y)}
	if s.at[b.ID] == k {
		return
	}
	s.unindex(b.ID)
	s.index(b)
}

// OverlapCircle returns the IDs of bodies on mask whose circle intersects
// the query circle, in ascending ID order.
func (s *Space) OverlapCircle(center geom.Vec2, r float64, mask Layer) []ident.NetID {
	reach := r + 1
	x0, x1 := toBucket(center.X-reach), toBucket(center.X+reach)
	y0, y1 := toBucket(center.Y-reach), toBucket(center.Y+reach)
	var out []ident.NetID
	for cx := x0; cx <= x1; cx++ {
		for cy := y0; cy <= y1; cy++ {
			for id := range s.cells[cellKey{cx, cy}] {
				b := s.bodies[id]
				if !b.Layer.Has(mask) {
					continue
				}
				if b.Pos.Dist(center) <= r+b.Radius {
					out = append(out, id)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Step integrates one body over dt against the tile map. Axes are resolved
// separately; a blocked axis has its velocity zeroed. Landing on a tile
// sets Grounded.
func (s *Space) Step(b *Body, dt time.Duration) {
	sec := dt.Seconds()
	if b.Gravity {
		b.Vel.Y -= s.gravity * sec
	}
	b.Grounded = false

	nx := geom.V(b.Pos.X+b.Vel.X*sec, b.Pos.Y)
	if s.tiles.IsFree(nx, b.Radius) {
		b.Pos = nx
	} else {
		b.Vel.X = 0
	}
	ny := geom.V(b.Pos.X, b.Pos.Y+b.Vel.Y*sec)
	if s.tiles.IsFree(ny, b.Radius) {
		b.Pos = ny
	} else {
		if b.Vel.Y < 0 {
			b.Grounded = true
		}
		b.Vel.Y = 0
	}
	if b.Gravity && !b.Grounded && b.Vel.Y <= 0 {
		below := geom.V(b.Pos.X, b.Pos.Y-0.05)
		b.Grounded = !s.tiles.IsFree(below, b.Radius)
	}
	s.reindex(b)
}
