package game

import (
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/protocol"
)

// Handle is the router's dispatch target: one switch over every message
// variant. Authority checks that depend on the sender live here; checks on
// the local participant's role live in the handlers.
func (g *Game) Handle(env protocol.Envelope) {
	switch m := env.Msg.(type) {
	case protocol.Spawn:
		if env.Sender != g.sess.Coordinator() {
			g.reject(env, "spawn from non-coordinator")
			return
		}
		g.spawner.OnSpawn(m)
	case protocol.AttackIntent:
		if owner, ok := g.world.OwnerOf(m.Attacker); !ok || owner != env.Sender {
			g.reject(env, "attack from non-owner")
			return
		}
		g.combat.OnAttackIntent(m)
	case protocol.Damage:
		g.combat.OnDamage(env.Target, m)
	case protocol.KillConfirmed:
		// The victim's Destroy follows from the same sender, so the victim
		// still resolves here.
		if owner, ok := g.world.OwnerOf(m.Victim); !ok || owner != env.Sender {
			g.reject(env, "kill credit from non-owner of victim")
			return
		}
		g.combat.OnKillConfirmed(env.Target, m)
	case protocol.Knockback:
		if !g.fromOwner(env) {
			g.reject(env, "knockback from non-owner")
			return
		}
		g.brain.ApplyKnockback(env.Target, m)
	case protocol.Heal:
		g.combat.OnHeal(env.Target, m)
	case protocol.Defend:
		if !g.fromOwner(env) {
			g.reject(env, "defend from non-owner")
			return
		}
		g.combat.OnDefend(env.Target, m)
	case protocol.HealthSync:
		if !g.fromOwner(env) {
			g.reject(env, "health from non-owner")
			return
		}
		g.combat.OnHealthSync(env.Target, m)
	case protocol.Destroy:
		g.combat.OnDestroy(env.Sender, env.Target)
	case protocol.MotionSync:
		g.motion.Apply(env.Sender, env.Target, m)
	case protocol.RespawnRequest:
		g.spawner.OnRespawnRequest(env.Sender, m)
	default:
		g.log.Warn("unhandled message", zap.Stringer("op", env.Msg.Op()))
	}
}

func (g *Game) fromOwner(env protocol.Envelope) bool {
	owner, ok := g.world.OwnerOf(env.Target)
	return ok && owner == env.Sender
}

func (g *Game) reject(env protocol.Envelope, why string) {
	g.log.Debug("message rejected",
		zap.String("reason", why),
		zap.Stringer("op", env.Msg.Op()),
		zap.Int32("net_id", int32(env.Target)),
		zap.Uint64("participant", uint64(env.Sender)))
}
