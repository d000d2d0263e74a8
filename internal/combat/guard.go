package combat

import (
	"time"

	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

// Defend raises (active) or lowers the guard of an entity owned here.
// Raising is refused while the cooldown runs; lowering starts it. Returns
// whether the state changed.
func (e *Engine) Defend(id ident.NetID, active bool) bool {
	r, ok := e.world.Resolve(id)
	if !ok || r.Guard == nil || !e.sess.IsOwner(id) {
		return false
	}
	g := r.Guard
	now := e.now()
	if active {
		if r.Health.Dead || g.State == world.GuardDefending {
			return false
		}
		if g.State == world.GuardCooldown && now.Before(g.CooldownUntil) {
			return false
		}
		g.State = world.GuardDefending
		e.inv.Invoke(id, protocol.Defend{Active: true}, protocol.ModeAll)
		return true
	}
	if g.State != world.GuardDefending {
		return false
	}
	g.State = world.GuardCooldown
	g.CooldownUntil = now.Add(e.cfg.DefenseCooldown)
	e.inv.Invoke(id, protocol.Defend{Active: false}, protocol.ModeAll)
	return true
}

// OnDefend mirrors the defending flag on every participant.
func (e *Engine) OnDefend(target ident.NetID, m protocol.Defend) {
	r, ok := e.world.Resolve(target)
	if !ok || r.Guard == nil {
		return
	}
	r.Guard.Defending = m.Active
	event.Emit(e.bus, event.DefendCue{NetID: target, Active: m.Active})
}

// TickGuards advances cooldowns of owned entities and reports the time
// left on each running one.
func (e *Engine) TickGuards() {
	now := e.now()
	for _, id := range e.world.IDs() {
		r, ok := e.world.Resolve(id)
		if !ok || r.Guard == nil || r.Guard.State != world.GuardCooldown || !e.sess.IsOwner(id) {
			continue
		}
		left := r.Guard.CooldownUntil.Sub(now)
		if left <= 0 {
			r.Guard.State = world.GuardIdle
			left = 0
		}
		event.Emit(e.bus, event.CooldownRemaining{NetID: id, Remaining: left.Round(time.Millisecond)})
	}
}
