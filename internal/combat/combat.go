// Package combat resolves attacks, damage, knockback, death and kill credit.
// Every mutation happens on the owning participant; everyone else applies
// the owner's mirrors.
package combat

import (
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/core/sched"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/physics"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

const (
	CounterKills  = "kills"
	CounterDeaths = "deaths"
)

// Config holds the tunables loaded from [combat] and [defense].
type Config struct {
	HitScore                  int32
	KillScore                 int32
	FallbackKnockbackForce    float64
	FallbackKnockbackDuration time.Duration
	MinVerticalKnockback      float64
	DefenseCooldown           time.Duration
}

// Stats is the score/stat collaborator.
type Stats interface {
	AddScore(p ident.ParticipantID, amount int32)
	SetCounter(p ident.ParticipantID, name string, value int32)
	Counter(p ident.ParticipantID, name string) int32
}

// Respawner receives dead entities that should come back.
type Respawner interface {
	RequestRespawn(r world.Refs)
}

// Invoker is the routing primitive; *authority.Router implements it.
type Invoker interface {
	Invoke(target ident.NetID, msg protocol.Message, mode protocol.AddressMode)
}

// Engine is owned by the tick loop.
type Engine struct {
	cfg     Config
	world   *world.State
	sess    *authority.Session
	inv     Invoker
	sched   *sched.Scheduler
	stats   Stats
	respawn Respawner
	bus     *event.Bus
	now     func() time.Time
	log     *zap.Logger
}

func New(cfg Config, w *world.State, sess *authority.Session, inv Invoker, sc *sched.Scheduler, stats Stats, bus *event.Bus, log *zap.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		world: w,
		sess:  sess,
		inv:   inv,
		sched: sc,
		stats: stats,
		bus:   bus,
		now:   time.Now,
		log:   log,
	}
}

func (e *Engine) SetRespawner(r Respawner)      { e.respawn = r }
func (e *Engine) SetClock(now func() time.Time) { e.now = now }
func (e *Engine) Now() time.Time                { return e.now() }

// Mitigate applies the defense rule: a defending target takes a quarter,
// rounded down. Negative damage counts as none.
func Mitigate(damage int32, defending bool) int32 {
	if damage < 0 {
		return 0
	}
	if defending {
		return damage / 4
	}
	return damage
}

// ==================== Attack ====================

// Attack starts an attack by id if its cooldown has elapsed and it is not
// defending. Only the owner may attack with an entity. Returns whether the
// attack fired.
func (e *Engine) Attack(id ident.NetID) bool {
	r, ok := e.world.Resolve(id)
	if !ok || r.Attacker == nil || r.Body == nil {
		return false
	}
	if !e.sess.IsOwner(id) || r.Health.Dead {
		return false
	}
	now := e.now()
	if now.Before(r.Attacker.NextAttackTime) || r.Guard.Defending {
		return false
	}
	at := r.Attacker
	at.NextAttackTime = now.Add(at.Cooldown)

	origin := at.OriginFrom(r.Body.Pos, r.Motor.Facing)
	e.inv.Invoke(id, protocol.AttackIntent{
		Attacker:          id,
		X:                 origin.X,
		Y:                 origin.Y,
		Range:             at.Range,
		Damage:            at.Damage,
		Mask:              uint8(at.Mask),
		KnockbackForce:    at.KnockbackForce,
		KnockbackDuration: at.KnockbackDuration,
	}, protocol.ModeAll)
	return true
}

// OnAttackIntent plays the attack cue everywhere; the attacker's owner also
// runs hit detection.
func (e *Engine) OnAttackIntent(m protocol.AttackIntent) {
	event.Emit(e.bus, event.AttackCue{Attacker: m.Attacker, X: m.X, Y: m.Y, Range: m.Range})
	if !e.sess.IsOwner(m.Attacker) {
		return
	}
	attacker, ok := e.world.Resolve(m.Attacker)
	if !ok {
		return
	}
	hits := e.world.Space().OverlapCircle(geom.V(m.X, m.Y), m.Range, physics.Layer(m.Mask))
	for _, id := range hits {
		if id == m.Attacker {
			continue
		}
		target, ok := e.world.Resolve(id)
		if !ok || target.Health == nil || target.Health.Dead {
			continue
		}
		final := Mitigate(m.Damage, target.Guard != nil && target.Guard.Defending)
		e.inv.Invoke(id, protocol.Damage{
			Amount:            final,
			Attacker:          m.Attacker,
			KnockbackForce:    m.KnockbackForce,
			KnockbackDuration: m.KnockbackDuration,
		}, protocol.ModeOwner)
		if !attacker.IsNpc() {
			e.stats.AddScore(attacker.ID.Owner, e.cfg.HitScore)
		}
	}
}

// ==================== Damage ====================

// OnDamage applies a routed Damage on the target's owner.
func (e *Engine) OnDamage(target ident.NetID, m protocol.Damage) {
	r, ok := e.world.Resolve(target)
	if !ok {
		e.log.Debug("damage for stale entity", zap.Int32("net_id", int32(target)))
		return
	}
	e.TakeDamage(r, m.Amount, m.Attacker, m.KnockbackForce, m.KnockbackDuration)
}

// TakeDamage subtracts damage from a live entity owned here, applies
// knockback while it survives and runs the death sequence at zero.
func (e *Engine) TakeDamage(r world.Refs, damage int32, attacker ident.NetID, kbForce float64, kbDuration time.Duration) {
	if r.Health == nil || r.Health.Dead {
		return
	}
	if !e.sess.IsOwner(r.NetID()) {
		e.log.Debug("damage rejected: not owner", zap.Int32("net_id", int32(r.NetID())))
		return
	}
	if damage < 0 {
		damage = 0
	}
	h := r.Health
	h.HP -= damage
	if h.HP < 0 {
		h.HP = 0
	}
	if h.HP > 0 {
		e.publishHealth(r)
		e.knockback(r, attacker, kbForce, kbDuration)
		return
	}
	e.die(r, attacker)
}

func (e *Engine) knockback(r world.Refs, attacker ident.NetID, force float64, dur time.Duration) {
	if force == 0 {
		force = e.cfg.FallbackKnockbackForce
	}
	if dur == 0 {
		dur = e.cfg.FallbackKnockbackDuration
	}
	if force <= 0 || r.Body == nil {
		return
	}
	from := r.Body.Pos
	if a, ok := e.world.Resolve(attacker); ok && a.Body != nil {
		from = a.Body.Pos
	}
	dir := KnockbackDirection(from, r.Body.Pos, e.cfg.MinVerticalKnockback)

	if r.IsNpc() {
		e.inv.Invoke(r.NetID(), protocol.Knockback{DirX: dir.X, DirY: dir.Y, Force: force, Duration: dur}, protocol.ModeCoordinator)
		return
	}
	r.Body.Impulse(dir.Scale(force))
	r.Motor.SetKnockbackLock(true)
	id := r.NetID()
	e.sched.At(e.now().Add(dur), id, sched.TagKnockbackRecover, func() {
		if cur, ok := e.world.Resolve(id); ok {
			cur.Motor.SetKnockbackLock(false)
		}
	})
}

// KnockbackDirection points from attacker to self with at least minUp of
// vertical component. Coincident positions knock straight up.
func KnockbackDirection(attacker, self geom.Vec2, minUp float64) geom.Vec2 {
	d := self.Sub(attacker).Normalize()
	if d.IsZero() {
		return geom.V(0, 1)
	}
	if d.Y < minUp {
		d.Y = minUp
	}
	return d.Normalize()
}

func (e *Engine) die(r world.Refs, attacker ident.NetID) {
	h := r.Health
	if h.Dead {
		return
	}
	h.Dead = true
	e.publishHealth(r)
	id := r.NetID()
	owner := r.ID.Owner
	event.Emit(e.bus, event.EntityDied{NetID: id, Attacker: attacker})

	if !r.IsNpc() {
		e.stats.SetCounter(owner, CounterDeaths, e.stats.Counter(owner, CounterDeaths)+1)
	}
	if !attacker.IsZero() && e.world.Exists(attacker) {
		e.inv.Invoke(attacker, protocol.KillConfirmed{Victim: id}, protocol.ModeOwner)
	}
	if e.respawn != nil {
		e.respawn.RequestRespawn(r)
	}
	e.log.Debug("entity died", zap.Int32("net_id", int32(id)), zap.Int32("attacker", int32(attacker)))
	e.inv.Invoke(id, protocol.Destroy{}, protocol.ModeAll)
}

// ==================== Kill credit ====================

// OnKillConfirmed credits the attacker's owner once per victim.
func (e *Engine) OnKillConfirmed(attacker ident.NetID, m protocol.KillConfirmed) {
	r, ok := e.world.Resolve(attacker)
	if !ok {
		return
	}
	if !e.sess.IsOwner(attacker) {
		e.log.Debug("kill credit rejected: not owner", zap.Int32("net_id", int32(attacker)))
		return
	}
	if _, dup := r.Attacker.Credited[m.Victim]; dup {
		return
	}
	r.Attacker.Credited[m.Victim] = struct{}{}
	if r.IsNpc() {
		return
	}
	owner := r.ID.Owner
	e.stats.SetCounter(owner, CounterKills, e.stats.Counter(owner, CounterKills)+1)
	e.stats.AddScore(owner, e.cfg.KillScore)
}

// ==================== Heal ====================

// Heal raises health on the owner, clamped to max. Dead entities stay dead.
func (e *Engine) Heal(r world.Refs, amount int32) {
	if r.Health == nil || r.Health.Dead || !e.sess.IsOwner(r.NetID()) {
		return
	}
	h := r.Health
	hp := int64(h.HP) + int64(amount)
	switch {
	case hp < 0:
		hp = 0
	case hp > int64(h.MaxHP):
		hp = int64(h.MaxHP)
	}
	h.HP = int32(hp)
	e.publishHealth(r)
}

func (e *Engine) OnHeal(target ident.NetID, m protocol.Heal) {
	if r, ok := e.world.Resolve(target); ok {
		e.Heal(r, m.Amount)
	}
}

// ==================== Mirrors ====================

func (e *Engine) publishHealth(r world.Refs) {
	h := r.Health
	event.Emit(e.bus, event.HealthChanged{NetID: r.NetID(), HP: h.HP, MaxHP: h.MaxHP})
	e.inv.Invoke(r.NetID(), protocol.HealthSync{HP: h.HP, MaxHP: h.MaxHP, Dead: h.Dead}, protocol.ModeAll)
}

// OnHealthSync copies the owner's health. The owner ignores its own mirror.
func (e *Engine) OnHealthSync(target ident.NetID, m protocol.HealthSync) {
	r, ok := e.world.Resolve(target)
	if !ok || e.sess.IsOwner(target) {
		return
	}
	r.Health.HP = m.HP
	r.Health.MaxHP = m.MaxHP
	r.Health.Dead = m.Dead
	event.Emit(e.bus, event.HealthChanged{NetID: target, HP: m.HP, MaxHP: m.MaxHP})
}

// OnDestroy removes an entity when its owner says so.
func (e *Engine) OnDestroy(sender ident.ParticipantID, target ident.NetID) {
	owner, ok := e.world.OwnerOf(target)
	if !ok {
		return
	}
	if owner != sender {
		e.log.Debug("destroy rejected: sender is not owner",
			zap.Int32("net_id", int32(target)), zap.Uint64("participant", uint64(sender)))
		return
	}
	e.world.Remove(target)
	event.Emit(e.bus, event.EntityDestroyed{NetID: target})
}
