package system

import (
	"time"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/ident"
	coresys "github.com/skirmish/server/internal/core/system"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

// RegenSystem restores health on owned entities whose archetype regenerates.
// Phase 3 (PostUpdate). Elapsed time accumulates per entity while it is
// hurt; each full regen_interval routes one Heal to the owner, which is us.
type RegenSystem struct {
	world *world.State
	sess  *authority.Session
	inv   Invoker
	acc   map[ident.NetID]time.Duration
}

func NewRegenSystem(ws *world.State, sess *authority.Session, inv Invoker) *RegenSystem {
	return &RegenSystem{world: ws, sess: sess, inv: inv, acc: make(map[ident.NetID]time.Duration)}
}

func (s *RegenSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *RegenSystem) Update(dt time.Duration) {
	for id := range s.acc {
		if !s.world.Exists(id) {
			delete(s.acc, id)
		}
	}
	for _, id := range s.world.OwnedBy(s.sess.Local()) {
		r, ok := s.world.Resolve(id)
		if !ok || r.Health == nil || r.Health.Dead {
			continue
		}
		a := r.ID.Archetype
		if a == nil || a.RegenAmount <= 0 || r.Health.HP >= r.Health.MaxHP {
			delete(s.acc, id)
			continue
		}
		s.acc[id] += dt
		if s.acc[id] < a.RegenInterval {
			continue
		}
		s.acc[id] -= a.RegenInterval
		s.inv.Invoke(id, protocol.Heal{Amount: a.RegenAmount}, protocol.ModeOwner)
	}
}
