// Package pathfind finds walkable routes over a virtual occupancy grid with
// breadth-first search and follows them toward a moving target.
package pathfind

import (
	"math"

	"github.com/skirmish/server/internal/geom"
)

// Point is an integer grid cell.
type Point struct {
	X, Y int
}

// expansion order: up, down, left, right.
var neighbours = [4]Point{{0, 1}, {0, -1}, {-1, 0}, {1, 0}}

// Occupancy answers whether a circle of radius r centred at p is free.
type Occupancy interface {
	IsFree(p geom.Vec2, r float64) bool
}

// Grid overlays fixed-size cells on world space. The occupancy source is
// never mutated at runtime, so a Grid may be shared by every NPC.
type Grid struct {
	occ         Occupancy
	cellSize    float64
	probeRadius float64
	maxSteps    int
}

func NewGrid(occ Occupancy, cellSize, probeRadius float64, maxSteps int) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{occ: occ, cellSize: cellSize, probeRadius: probeRadius, maxSteps: maxSteps}
}

// Cell rounds a world position to its grid cell.
func (g *Grid) Cell(p geom.Vec2) Point {
	return Point{
		X: int(math.Floor(p.X/g.cellSize + 0.5)),
		Y: int(math.Floor(p.Y/g.cellSize + 0.5)),
	}
}

// Center is the world position of a cell's centre.
func (g *Grid) Center(c Point) geom.Vec2 {
	return geom.V(float64(c.X)*g.cellSize, float64(c.Y)*g.cellSize)
}

// Find returns the cells from (excluding) the start cell to (including) the
// target cell. Same start and target cell yields an empty path with ok=true.
// ok=false means no path within the step budget; callers pursue the target
// directly.
func (g *Grid) Find(from, to geom.Vec2) (path []Point, ok bool) {
	start, goal := g.Cell(from), g.Cell(to)
	if start == goal {
		return nil, true
	}

	prev := map[Point]Point{}
	visited := map[Point]bool{start: true}
	queue := []Point{start}
	steps := 0
	found := false

	for len(queue) > 0 && steps < g.maxSteps {
		cur := queue[0]
		queue = queue[1:]
		steps++
		if cur == goal {
			found = true
			break
		}
		for _, d := range neighbours {
			n := Point{cur.X + d.X, cur.Y + d.Y}
			if visited[n] {
				continue
			}
			if !g.occ.IsFree(g.Center(n), g.probeRadius) {
				continue
			}
			visited[n] = true
			prev[n] = cur
			queue = append(queue, n)
		}
	}
	if !found {
		return nil, false
	}

	for c := goal; c != start; c = prev[c] {
		path = append(path, c)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}
