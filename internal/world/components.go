package world

import (
	"time"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/pathfind"
	"github.com/skirmish/server/internal/physics"
)

type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindNpc
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNpc:
		return "npc"
	default:
		return "unknown"
	}
}

// Identity is attached to every entity.
type Identity struct {
	NetID     ident.NetID
	Kind      Kind
	Owner     ident.ParticipantID
	Archetype *data.Archetype
	Slot      int32 // spawn slot, used to pick a respawn point
}

// Health is written only by the owner; other participants copy the owner's
// HealthSync.
type Health struct {
	HP    int32
	MaxHP int32
	Dead  bool
}

func (h *Health) Alive() bool { return !h.Dead }

type GuardState uint8

const (
	GuardIdle GuardState = iota
	GuardDefending
	GuardCooldown
)

func (s GuardState) String() string {
	switch s {
	case GuardIdle:
		return "idle"
	case GuardDefending:
		return "defending"
	case GuardCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Guard is the defense window. Defending is mirrored to every participant;
// State and CooldownUntil only advance on the owner.
type Guard struct {
	State         GuardState
	Defending     bool
	CooldownUntil time.Time
}

// Motor turns movement input into body velocity. Defending and the
// knockback lock both suppress horizontal input.
type Motor struct {
	Move          geom.Vec2 // desired direction, x only for grounded bodies
	Jump          bool
	Speed         float64
	JumpSpeed     float64
	Facing        float64 // -1 or +1
	KnockbackLock bool
}

func (m *Motor) SetKnockbackLock(v bool) { m.KnockbackLock = v }

// Face turns toward dx's sign; zero keeps the current facing.
func (m *Motor) Face(dx float64) {
	if s := geom.Sign(dx, 1e-6); s != 0 {
		m.Facing = s
	}
}

// Attacker holds offensive stats and the per-attacker cooldown.
type Attacker struct {
	Damage            int32
	Range             float64
	Cooldown          time.Duration
	NextAttackTime    time.Time
	Origin            data.Offset
	Mask              physics.Layer
	KnockbackForce    float64
	KnockbackDuration time.Duration

	// victims already credited to this attacker
	Credited map[ident.NetID]struct{}
}

// OriginFrom returns the attack origin for a body at pos facing facing.
func (a *Attacker) OriginFrom(pos geom.Vec2, facing float64) geom.Vec2 {
	if facing == 0 {
		facing = 1
	}
	return geom.V(pos.X+a.Origin.X*facing, pos.Y+a.Origin.Y)
}

type NpcState uint8

const (
	NpcPatrol NpcState = iota
	NpcChase
	NpcAttack
	NpcStunned
)

func (s NpcState) String() string {
	switch s {
	case NpcPatrol:
		return "patrol"
	case NpcChase:
		return "chase"
	case NpcAttack:
		return "attack"
	case NpcStunned:
		return "stunned"
	default:
		return "unknown"
	}
}

type Strategy uint8

const (
	StrategyDirect Strategy = iota
	StrategyGrid
)

func ParseStrategy(s string) Strategy {
	if s == data.StrategyGrid {
		return StrategyGrid
	}
	return StrategyDirect
}

// Brain is the NPC decision state. Only the coordinator advances it.
type Brain struct {
	State       NpcState
	Strategy    Strategy
	Target      ident.NetID
	PatrolSpeed float64
	ChaseSpeed  float64
	ChaseRange  float64
	Follower    pathfind.Follower
}
