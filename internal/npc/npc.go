// Package npc runs the NPC state machine on the coordinator: Patrol,
// Chase, Attack and Stunned. Other participants only see the results.
package npc

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/core/sched"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/pathfind"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

// Config holds the [npc] tunables.
type Config struct {
	ChaseHysteresis   float64       // leave Chase beyond chase_range times this
	PathUpdateRate    time.Duration // grid path recompute cadence
	WaypointTolerance float64
	PostAttackDelay   time.Duration // used when the archetype sets none
}

// Attacker fires an entity's attack; *combat.Engine implements it.
type Attacker interface {
	Attack(id ident.NetID) bool
}

// Brain drives every NPC this participant owns while it coordinates.
type Brain struct {
	cfg    Config
	world  *world.State
	sess   *authority.Session
	combat Attacker
	grid   *pathfind.Grid
	sched  *sched.Scheduler
	bus    *event.Bus
	now    func() time.Time
	log    *zap.Logger
}

func New(cfg Config, w *world.State, sess *authority.Session, combat Attacker, grid *pathfind.Grid, sc *sched.Scheduler, bus *event.Bus, log *zap.Logger) *Brain {
	if cfg.ChaseHysteresis < 1 {
		cfg.ChaseHysteresis = 1
	}
	return &Brain{
		cfg:    cfg,
		world:  w,
		sess:   sess,
		combat: combat,
		grid:   grid,
		sched:  sc,
		bus:    bus,
		now:    time.Now,
		log:    log,
	}
}

func (b *Brain) SetClock(now func() time.Time) { b.now = now }

// Tick evaluates every owned NPC once. No-op unless coordinating.
func (b *Brain) Tick() {
	if !b.sess.IsCoordinator() {
		return
	}
	for _, id := range b.world.IDs() {
		r, ok := b.world.Resolve(id)
		if !ok || r.Brain == nil || r.Health.Dead || !b.sess.IsOwner(id) {
			continue
		}
		b.step(r)
	}
}

func (b *Brain) step(r world.Refs) {
	target, dist, found := b.nearestOpponent(r)
	switch r.Brain.State {
	case world.NpcPatrol:
		b.patrol(r, dist, found)
	case world.NpcChase:
		b.chase(r, target, dist, found)
	case world.NpcAttack:
		b.attack(r, target, found)
	case world.NpcStunned:
		r.Motor.Move = geom.Vec2{}
	}
}

// ==================== States ====================

func (b *Brain) patrol(r world.Refs, dist float64, found bool) {
	if found && dist < r.Brain.ChaseRange {
		b.setState(r, world.NpcChase)
		return
	}
	tiles := b.world.Space().Tiles()
	m, body := r.Motor, r.Body
	wall := tiles.WallAhead(body.Pos, body.Radius, m.Facing)
	edge := body.Gravity && body.Grounded && !tiles.GroundAhead(body.Pos, m.Facing)
	if wall || edge {
		m.Facing = -m.Facing
	}
	m.Speed = r.Brain.PatrolSpeed
	m.Move = geom.V(m.Facing, 0)
	m.Jump = false
}

func (b *Brain) chase(r world.Refs, target world.Refs, dist float64, found bool) {
	if !found {
		b.setState(r, world.NpcPatrol)
		return
	}
	if dist <= r.Attacker.Range {
		r.Motor.Move = geom.Vec2{}
		b.setState(r, world.NpcAttack)
		return
	}
	if dist > r.Brain.ChaseRange*b.cfg.ChaseHysteresis {
		b.setState(r, world.NpcPatrol)
		return
	}
	r.Brain.Target = target.NetID()
	m := r.Motor
	m.Speed = r.Brain.ChaseSpeed
	m.Face(target.Body.Pos.X - r.Body.Pos.X)

	var dir geom.Vec2
	switch r.Brain.Strategy {
	case world.StrategyGrid:
		dir = b.gridDirection(r, target.Body.Pos)
	default:
		dir = target.Body.Pos.Sub(r.Body.Pos).Normalize()
	}
	b.drive(r, dir)
}

// gridDirection steers along the cached BFS path, recomputing it on the
// configured cadence. No path means straight pursuit.
func (b *Brain) gridDirection(r world.Refs, goal geom.Vec2) geom.Vec2 {
	f := &r.Brain.Follower
	now := b.now()
	if f.Due(now) {
		path, ok := b.grid.Find(r.Body.Pos, goal)
		if !ok {
			b.log.Debug("no path, pursuing directly", zap.Int32("net_id", int32(r.NetID())))
		}
		f.Replace(path)
		f.Renewed(now, b.cfg.PathUpdateRate)
	}
	dir := f.Steer(b.grid, r.Body.Pos, goal, b.cfg.WaypointTolerance)
	if dir.IsZero() {
		dir = goal.Sub(r.Body.Pos).Normalize()
	}
	return dir
}

// drive converts a direction into motor input. Grounded bodies only move
// horizontally and jump over walls or toward higher waypoints.
func (b *Brain) drive(r world.Refs, dir geom.Vec2) {
	m, body := r.Motor, r.Body
	if !body.Gravity {
		m.Move = dir
		return
	}
	sx := geom.Sign(dir.X, 1e-3)
	if sx == 0 {
		sx = m.Facing
	}
	m.Move = geom.V(sx, 0)
	tiles := b.world.Space().Tiles()
	m.Jump = body.Grounded && (tiles.WallAhead(body.Pos, body.Radius, sx) || dir.Y > 0.5)
}

func (b *Brain) attack(r world.Refs, target world.Refs, found bool) {
	r.Motor.Move = geom.Vec2{}
	r.Motor.Jump = false
	if found {
		r.Motor.Face(target.Body.Pos.X - r.Body.Pos.X)
	}
	if b.sched.Pending(r.NetID(), sched.TagPostAttack) {
		return
	}
	if !b.combat.Attack(r.NetID()) {
		return
	}
	delay := r.ID.Archetype.PostAttackDelay
	if delay <= 0 {
		delay = b.cfg.PostAttackDelay
	}
	id := r.NetID()
	b.sched.At(b.now().Add(delay), id, sched.TagPostAttack, func() {
		if cur, ok := b.world.Resolve(id); ok && cur.Brain.State == world.NpcAttack {
			b.setState(cur, world.NpcChase)
		}
	})
}

// ==================== Knockback ====================

// ApplyKnockback stuns an NPC. Only the coordinator applies it, so the
// impulse lands exactly once.
func (b *Brain) ApplyKnockback(target ident.NetID, m protocol.Knockback) {
	if !b.sess.IsCoordinator() {
		b.log.Debug("knockback rejected: not coordinator", zap.Int32("net_id", int32(target)))
		return
	}
	r, ok := b.world.Resolve(target)
	if !ok || r.Brain == nil || r.Health.Dead {
		return
	}
	r.Body.Vel = geom.Vec2{}
	r.Body.Impulse(geom.V(m.DirX, m.DirY).Normalize().Scale(m.Force))
	r.Motor.Move = geom.Vec2{}
	r.Motor.SetKnockbackLock(true)
	b.setState(r, world.NpcStunned)

	b.sched.At(b.now().Add(m.Duration), target, sched.TagStunRecover, func() {
		cur, ok := b.world.Resolve(target)
		if !ok {
			return
		}
		cur.Motor.SetKnockbackLock(false)
		if cur.Brain.State == world.NpcStunned {
			b.setState(cur, world.NpcChase)
		}
	})
}

// ==================== Helpers ====================

func (b *Brain) setState(r world.Refs, s world.NpcState) {
	if r.Brain.State == s {
		return
	}
	b.log.Debug("npc state",
		zap.Int32("net_id", int32(r.NetID())),
		zap.Stringer("from", r.Brain.State),
		zap.Stringer("to", s),
	)
	r.Brain.State = s
	event.Emit(b.bus, event.NpcStateChanged{NetID: r.NetID(), State: s.String()})
}

// nearestOpponent finds the closest living entity on the NPC's target
// mask. Ties go to the lower NetID.
func (b *Brain) nearestOpponent(r world.Refs) (world.Refs, float64, bool) {
	var best world.Refs
	bestDist := math.Inf(1)
	found := false
	for _, id := range b.world.IDs() {
		if id == r.NetID() {
			continue
		}
		o, ok := b.world.Resolve(id)
		if !ok || o.Body == nil || o.Health == nil || o.Health.Dead || !o.Body.Layer.Has(r.Attacker.Mask) {
			continue
		}
		if d := o.Body.Pos.Dist(r.Body.Pos); d < bestDist {
			best, bestDist, found = o, d, true
		}
	}
	return best, bestDist, found
}
