package pathfind

import (
	"time"

	"github.com/skirmish/server/internal/geom"
)

// Follower walks an NPC along the last computed path. Paths are replaced
// wholesale; the cursor never exceeds the path length, and once the path
// is exhausted the follower steers at the live target.
type Follower struct {
	path      []Point
	cursor    int
	nextRenew time.Time
}

// Replace installs a new path and resets the cursor.
func (f *Follower) Replace(path []Point) {
	f.path = path
	f.cursor = 0
}

func (f *Follower) Path() []Point { return f.path }
func (f *Follower) Cursor() int    { return f.cursor }

// Exhausted reports whether every waypoint has been passed.
func (f *Follower) Exhausted() bool { return f.cursor >= len(f.path) }

// Due reports whether the path should be recomputed at now.
func (f *Follower) Due(now time.Time) bool { return !now.Before(f.nextRenew) }

// Renewed records a recomputation and arms the next one after every.
func (f *Follower) Renewed(now time.Time, every time.Duration) {
	f.nextRenew = now.Add(every)
}

// Steer returns the unit direction from pos toward the current waypoint,
// advancing past waypoints within tolerance. With no waypoints left it
// points straight at target.
func (f *Follower) Steer(g *Grid, pos, target geom.Vec2, tolerance float64) geom.Vec2 {
	for f.cursor < len(f.path) && pos.Dist(g.Center(f.path[f.cursor])) <= tolerance {
		f.cursor++
	}
	if f.cursor > len(f.path) {
		f.cursor = len(f.path)
	}
	if f.Exhausted() {
		return target.Sub(pos).Normalize()
	}
	return g.Center(f.path[f.cursor]).Sub(pos).Normalize()
}
