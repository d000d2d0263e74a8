package physics

import (
	"math"

	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/geom"
)

// Tiles is the static occupancy map. Tile (col, row) is a square of side
// Size centred on (col*Size, row*Size). Read-only after construction.
type Tiles struct {
	size  float64
	w, h  int
	solid []bool
}

// NewTiles rasterises an arena's tile rows.
func NewTiles(a *data.Arena) *Tiles {
	t := &Tiles{size: a.TileSize, w: a.Width(), h: a.Height()}
	t.solid = make([]bool, t.w*t.h)
	for row := 0; row < t.h; row++ {
		for col := 0; col < t.w; col++ {
			t.solid[row*t.w+col] = a.Solid(col, row)
		}
	}
	return t
}

func (t *Tiles) Size() float64 { return t.size }
func (t *Tiles) Width() int     { return t.w }
func (t *Tiles) Height() int    { return t.h }

// Cell converts a world position to the tile that contains it.
func (t *Tiles) Cell(p geom.Vec2) (col, row int) {
	return int(math.Floor(p.X/t.size + 0.5)), int(math.Floor(p.Y/t.size + 0.5))
}

// Center is the world-space centre of a tile.
func (t *Tiles) Center(col, row int) geom.Vec2 {
	return geom.V(float64(col)*t.size, float64(row)*t.size)
}

// Solid reports whether a tile blocks movement. Out of bounds is solid.
func (t *Tiles) Solid(col, row int) bool {
	if col < 0 || row < 0 || col >= t.w || row >= t.h {
		return true
	}
	return t.solid[row*t.w+col]
}

func (t *Tiles) SolidAt(p geom.Vec2) bool {
	return t.Solid(t.Cell(p))
}

// IsFree reports whether a circle of radius r at p touches no solid tile.
func (t *Tiles) IsFree(p geom.Vec2, r float64) bool {
	c0, r0 := t.Cell(geom.V(p.X-r, p.Y-r))
	c1, r1 := t.Cell(geom.V(p.X+r, p.Y+r))
	half := t.size / 2
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if !t.Solid(col, row) {
				continue
			}
			c := t.Center(col, row)
			dx := math.Max(math.Abs(p.X-c.X)-half, 0)
			dy := math.Max(math.Abs(p.Y-c.Y)-half, 0)
			if dx*dx+dy*dy < r*r {
				return false
			}
		}
	}
	return true
}

// GroundAhead reports whether there is a solid tile under the point one tile
// ahead of p in direction facing.
func (t *Tiles) GroundAhead(p geom.Vec2, facing float64) bool {
	ahead := geom.V(p.X+facing*t.size, p.Y-t.size)
	return t.SolidAt(ahead)
}

// WallAhead reports whether a body of radius r would collide one tile ahead.
func (t *Tiles) WallAhead(p geom.Vec2, r, facing float64) bool {
	return !t.IsFree(geom.V(p.X+facing*t.size*0.5, p.Y), r)
}
