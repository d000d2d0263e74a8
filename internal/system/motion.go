package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/ident"
	coresys "github.com/skirmish/server/internal/core/system"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

// Invoker is the routing primitive; *authority.Router implements it.
type Invoker interface {
	Invoke(target ident.NetID, msg protocol.Message, mode protocol.AddressMode)
}

// MotionSystem turns motor input into velocity, integrates owned bodies and
// mirrors them to everyone else. Phase 3 (PostUpdate).
type MotionSystem struct {
	world     *world.State
	sess      *authority.Session
	inv       Invoker
	syncEvery time.Duration
	sinceSync time.Duration
	log       *zap.Logger
}

func NewMotionSystem(ws *world.State, sess *authority.Session, inv Invoker, syncEvery time.Duration, log *zap.Logger) *MotionSystem {
	return &MotionSystem{world: ws, sess: sess, inv: inv, syncEvery: syncEvery, log: log}
}

func (s *MotionSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *MotionSystem) Update(dt time.Duration) {
	s.sinceSync += dt
	sync := s.sinceSync >= s.syncEvery
	if sync {
		s.sinceSync = 0
	}
	space := s.world.Space()
	for _, id := range s.world.IDs() {
		r, ok := s.world.Resolve(id)
		if !ok || r.Body == nil || r.Health.Dead || !s.sess.IsOwner(id) {
			continue
		}
		Drive(r)
		space.Step(r.Body, dt)
		if sync {
			b := r.Body
			s.inv.Invoke(id, protocol.MotionSync{
				X: b.Pos.X, Y: b.Pos.Y,
				VX: b.Vel.X, VY: b.Vel.Y,
				Facing: int8(r.Motor.Facing),
			}, protocol.ModeAll)
		}
	}
}

// Drive writes motor input into the body's velocity. While knocked back the
// velocity belongs to the impulse; while defending the body holds still.
// Jump is consumed.
func Drive(r world.Refs) {
	m, b := r.Motor, r.Body
	if m.KnockbackLock {
		m.Jump = false
		return
	}
	if r.Guard != nil && r.Guard.Defending {
		b.Vel.X = 0
		if !b.Gravity {
			b.Vel = geom.Vec2{}
		}
		m.Jump = false
		return
	}
	m.Face(m.Move.X)
	if !b.Gravity {
		b.Vel = m.Move.Scale(m.Speed)
		return
	}
	b.Vel.X = m.Move.X * m.Speed
	if m.Jump && b.Grounded {
		b.Vel.Y = m.JumpSpeed
	}
	m.Jump = false
}

// Apply copies an owner's MotionSync. The owner ignores its own mirror and
// nobody else may move the entity.
func (s *MotionSystem) Apply(sender ident.ParticipantID, target ident.NetID, m protocol.MotionSync) {
	r, ok := s.world.Resolve(target)
	if !ok || r.Body == nil || s.sess.IsOwner(target) {
		return
	}
	if sender != r.ID.Owner {
		s.log.Debug("motion rejected: sender is not owner",
			zap.Int32("net_id", int32(target)), zap.Uint64("participant", uint64(sender)))
		return
	}
	s.world.Space().Teleport(target, geom.V(m.X, m.Y))
	r.Body.Vel = geom.V(m.VX, m.VY)
	if m.Facing != 0 {
		r.Motor.Facing = float64(m.Facing)
	}
}
