package pathfind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skirmish/server/internal/geom"
)

// charGrid is an occupancy map drawn with '#' for walls; row 0 is the
// bottom line of the picture.
type charGrid []string

func (c charGrid) IsFree(p geom.Vec2, _ float64) bool {
	x, y := int(p.X), int(p.Y)
	if y < 0 || y >= len(c) {
		return false
	}
	line := c[len(c)-1-y]
	if x < 0 || x >= len(line) {
		return false
	}
	return line[x] != '#'
}

var maze = charGrid{
	"#######",
	"#.....#",
	"#.###.#",
	"#...#.#",
	"#######",
}

func TestFindSameCellIsEmpty(t *testing.T) {
	g := NewGrid(maze, 1, 0.3, 100)
	path, ok := g.Find(geom.V(1.2, 1.1), geom.V(0.8, 0.9))
	assert.True(t, ok)
	assert.Empty(t, path)
}

func TestFindRoutesAroundWall(t *testing.T) {
	g := NewGrid(maze, 1, 0.3, 100)
	path, ok := g.Find(geom.V(3, 1), geom.V(5, 1))
	require.True(t, ok)
	assert.Equal(t, []Point{
		{2, 1}, {1, 1}, {1, 2}, {1, 3}, {2, 3}, {3, 3}, {4, 3}, {5, 3}, {5, 2}, {5, 1},
	}, path)
}

func TestFindIsDeterministic(t *testing.T) {
	open := charGrid{
		"......",
		"......",
		"......",
		"......",
	}
	g := NewGrid(open, 1, 0.3, 1000)
	first, ok := g.Find(geom.V(0, 0), geom.V(3, 3))
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		again, _ := g.Find(geom.V(0, 0), geom.V(3, 3))
		assert.Equal(t, first, again)
	}
	// up is expanded first, so the route climbs before it turns right
	assert.Equal(t, Point{0, 1}, first[0])
	assert.Len(t, first, 6)
}

func TestFindGivesUpAfterBudget(t *testing.T) {
	g := NewGrid(maze, 1, 0.3, 3)
	path, ok := g.Find(geom.V(3, 1), geom.V(5, 1))
	assert.False(t, ok)
	assert.Nil(t, path)
}

func TestFindUnreachable(t *testing.T) {
	walled := charGrid{
		"#####",
		"#.#.#",
		"#####",
	}
	g := NewGrid(walled, 1, 0.3, 100)
	_, ok := g.Find(geom.V(1, 1), geom.V(3, 1))
	assert.False(t, ok)
}

func TestFollowerAdvancesThenSteersAtTarget(t *testing.T) {
	g := NewGrid(maze, 1, 0.3, 100)
	var f Follower
	f.Replace([]Point{{2, 1}, {1, 1}})

	dir := f.Steer(g, geom.V(3, 1), geom.V(9, 9), 0.2)
	assert.Equal(t, geom.V(-1, 0), dir)
	assert.Zero(t, f.Cursor())

	f.Steer(g, geom.V(2.1, 1), geom.V(9, 9), 0.2)
	assert.Equal(t, 1, f.Cursor())

	dir = f.Steer(g, geom.V(1, 1), geom.V(1, 5), 0.2)
	assert.True(t, f.Exhausted())
	assert.Equal(t, 2, f.Cursor())
	assert.Equal(t, geom.V(0, 1), dir)
}

func TestFollowerWithoutPathPursuesDirectly(t *testing.T) {
	g := NewGrid(maze, 1, 0.3, 100)
	var f Follower
	f.Replace(nil)
	dir := f.Steer(g, geom.V(1, 1), geom.V(4, 1), 0.2)
	assert.False(t, dir.IsZero())
	assert.Equal(t, geom.V(1, 0), dir)
}

func TestFollowerRenewCadence(t *testing.T) {
	base := time.Unix(100, 0)
	var f Follower
	assert.True(t, f.Due(base))
	f.Renewed(base, 500*time.Millisecond)
	assert.False(t, f.Due(base.Add(499*time.Millisecond)))
	assert.True(t, f.Due(base.Add(500*time.Millisecond)))
}
