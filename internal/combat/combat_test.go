package combat

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/core/sched"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/protocol"
)

func TestMitigateQuartersWhenDefending(t *testing.T) {
	for d := int32(0); d <= 400; d++ {
		assert.Equal(t, d, Mitigate(d, false))
		assert.Equal(t, d/4, Mitigate(d, true))
	}
	assert.Equal(t, int32(7), Mitigate(30, true))
	assert.Zero(t, Mitigate(-5, false))
}

func TestDefendingTargetTakesQuarterDamage(t *testing.T) {
	h := newHarness(t)
	h.spawn(1, local, knight, 2)
	target := h.spawn(2, local, knight, 2.8)
	require.True(t, h.eng.Defend(2, true))
	require.True(t, target.Guard.Defending)

	require.True(t, h.eng.Attack(1))
	assert.Equal(t, int32(93), target.Health.HP)

	dmg := h.find(protocol.OpDamage)
	require.Len(t, dmg, 1)
	assert.Equal(t, protocol.ModeOwner, dmg[0].mode)
	assert.Equal(t, int32(7), dmg[0].msg.(protocol.Damage).Amount)
}

func TestLethalDamageClampsAndDestroysOnce(t *testing.T) {
	h := newHarness(t)
	r := h.spawn(3, local, knight, 2)
	r.Health.HP = 10

	h.eng.TakeDamage(r, 15, 0, 0, 0)
	assert.Equal(t, int32(0), r.Health.HP)
	assert.True(t, r.Health.Dead)
	assert.Equal(t, 1, h.count(protocol.OpDestroy))
	assert.False(t, h.w.Exists(3))
	assert.Equal(t, []ident.NetID{3}, h.respawned)
	assert.Equal(t, int32(1), h.stats.Counter(local, CounterDeaths))

	before := len(h.calls)
	for i := 0; i < 5; i++ {
		h.eng.TakeDamage(r, 15, 0, 0, 0)
	}
	assert.Len(t, h.calls, before, "no further effects after death")
	assert.Equal(t, int32(0), r.Health.HP)
}

func TestFinalHealthSyncCarriesDeath(t *testing.T) {
	h := newHarness(t)
	r := h.spawn(3, local, knight, 2)
	r.Health.HP = 10

	h.eng.TakeDamage(r, 4, 0, 0, 0)
	h.eng.TakeDamage(r, 20, 0, 0, 0)

	syncs := h.find(protocol.OpHealthSync)
	require.Len(t, syncs, 2)
	assert.Equal(t, protocol.HealthSync{HP: 6, MaxHP: 100}, syncs[0].msg)
	assert.Equal(t, protocol.HealthSync{HP: 0, MaxHP: 100, Dead: true}, syncs[1].msg)

	var ops []protocol.Op
	for _, c := range h.calls {
		ops = append(ops, c.msg.Op())
	}
	assert.Less(t, indexOf(ops, protocol.OpHealthSync, 2), indexOf(ops, protocol.OpDestroy, 1),
		"observers see the death before the destroy")
}

// indexOf returns the position of the nth occurrence of op, or -1.
func indexOf(ops []protocol.Op, op protocol.Op, nth int) int {
	for i, o := range ops {
		if o == op {
			nth--
			if nth == 0 {
				return i
			}
		}
	}
	return -1
}

func TestKillCreditSentOnceToAttackerOwner(t *testing.T) {
	h := newHarness(t)
	h.spawn(7, remote, knight, 5)
	victim := h.spawn(8, local, knight, 2)

	h.eng.TakeDamage(victim, 60, 7, 0, 0)
	h.eng.TakeDamage(victim, 60, 7, 0, 0)
	h.eng.TakeDamage(victim, 60, 7, 0, 0)

	kills := h.find(protocol.OpKillConfirmed)
	require.Len(t, kills, 1)
	assert.Equal(t, ident.NetID(7), kills[0].target)
	assert.Equal(t, protocol.ModeOwner, kills[0].mode)
	assert.Equal(t, protocol.KillConfirmed{Victim: 8}, kills[0].msg)
	assert.Equal(t, 1, h.count(protocol.OpDestroy))

	destroyIdx, killIdx := -1, -1
	for i, c := range h.calls {
		switch c.msg.Op() {
		case protocol.OpDestroy:
			destroyIdx = i
		case protocol.OpKillConfirmed:
			killIdx = i
		}
	}
	assert.Less(t, killIdx, destroyIdx, "bookkeeping precedes destroy")
}

func TestDeathWithVanishedAttackerSkipsCredit(t *testing.T) {
	h := newHarness(t)
	victim := h.spawn(8, local, knight, 2)
	h.eng.TakeDamage(victim, 500, 99, 0, 0)
	assert.Zero(t, h.count(protocol.OpKillConfirmed))
	assert.Equal(t, 1, h.count(protocol.OpDestroy))
}

func TestHealthIsMonotoneUnderDamage(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		id := ident.NetID(100 + trial)
		r := h.spawn(id, local, knight, 2)
		prev := r.Health.HP
		for i := 0; i < 30; i++ {
			h.eng.TakeDamage(r, int32(rng.Intn(25)), 0, 0, 0)
			assert.LessOrEqual(t, r.Health.HP, prev)
			assert.GreaterOrEqual(t, r.Health.HP, int32(0))
			prev = r.Health.HP
		}
	}
}

func TestKillConfirmedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.spawn(1, local, knight, 2)
	h.eng.OnKillConfirmed(1, protocol.KillConfirmed{Victim: 9})
	h.eng.OnKillConfirmed(1, protocol.KillConfirmed{Victim: 9})
	assert.Equal(t, int32(1), h.stats.Counter(local, CounterKills))
	assert.Equal(t, int32(100), h.stats.score[local])

	h.eng.OnKillConfirmed(1, protocol.KillConfirmed{Victim: 10})
	assert.Equal(t, int32(2), h.stats.Counter(local, CounterKills))
}

func TestKillConfirmedForRemoteAttackerIsRejected(t *testing.T) {
	h := newHarness(t)
	h.spawn(1, remote, knight, 2)
	h.eng.OnKillConfirmed(1, protocol.KillConfirmed{Victim: 9})
	assert.Zero(t, h.stats.Counter(remote, CounterKills))
}

func TestAttackGates(t *testing.T) {
	h := newHarness(t)
	h.spawn(1, local, knight, 2)
	h.spawn(2, remote, knight, 2.8)
	h.spawn(5, remote, knight, 9)

	require.True(t, h.eng.Attack(1))
	assert.False(t, h.eng.Attack(1), "cooldown running")
	assert.Equal(t, 1, h.count(protocol.OpAttackIntent))

	dmg := h.find(protocol.OpDamage)
	require.Len(t, dmg, 1, "only the entity in range is hit, never self")
	assert.Equal(t, ident.NetID(2), dmg[0].target)
	assert.Equal(t, int32(10), h.stats.score[local], "hit score is awarded on send")

	h.now = h.now.Add(500 * time.Millisecond)
	require.True(t, h.eng.Defend(1, true))
	assert.False(t, h.eng.Attack(1), "defending blocks attacks")

	assert.False(t, h.eng.Attack(2), "remote entities cannot be driven here")
}

func TestPlayerKnockbackLocksUntilRecovery(t *testing.T) {
	h := newHarness(t)
	h.spawn(1, remote, knight, 1)
	r := h.spawn(2, local, knight, 2)

	h.eng.TakeDamage(r, 5, 1, 0, 0)
	assert.True(t, r.Motor.KnockbackLock)
	assert.Greater(t, r.Body.Vel.X, 0.0, "pushed away from the attacker")
	assert.Greater(t, r.Body.Vel.Y, 0.0, "always arcs upward")
	assert.True(t, h.sc.Pending(2, sched.TagKnockbackRecover))

	h.sc.Process(h.now.Add(199 * time.Millisecond))
	assert.True(t, r.Motor.KnockbackLock)
	h.sc.Process(h.now.Add(200 * time.Millisecond))
	assert.False(t, r.Motor.KnockbackLock)
}

func TestNpcKnockbackGoesToCoordinator(t *testing.T) {
	h := newHarness(t)
	h.spawn(1, remote, knight, 1)
	n := h.spawn(3, local, goblin, 2)
	h.eng.TakeDamage(n, 5, 1, 6, 300*time.Millisecond)

	kb := h.find(protocol.OpKnockback)
	require.Len(t, kb, 1)
	assert.Equal(t, protocol.ModeCoordinator, kb[0].mode)
	m := kb[0].msg.(protocol.Knockback)
	assert.Equal(t, 6.0, m.Force)
	assert.Equal(t, 300*time.Millisecond, m.Duration)
	assert.False(t, n.Motor.KnockbackLock, "stun is applied by the NPC brain, not here")
}

func TestKnockbackDirectionHasMinimumLift(t *testing.T) {
	d := KnockbackDirection(geom.V(0, 0), geom.V(1, 0), 0.5)
	assert.Greater(t, d.X, 0.0)
	assert.InDelta(t, 1.0, d.Len(), 1e-9)
	assert.Greater(t, d.Y, 0.4)

	d = KnockbackDirection(geom.V(0, 5), geom.V(1, 0), 0.5)
	assert.Greater(t, d.Y, 0.0, "attacker above still lifts")

	assert.Equal(t, geom.V(0, 1), KnockbackDirection(geom.V(2, 2), geom.V(2, 2), 0.5))
}

func TestNonOwnerCannotDamageOrHeal(t *testing.T) {
	h := newHarness(t)
	r := h.spawn(4, remote, knight, 2)
	h.eng.TakeDamage(r, 50, 0, 0, 0)
	h.eng.Heal(r, 5)
	assert.Equal(t, int32(100), r.Health.HP)
	assert.Empty(t, h.calls)
}

func TestHealClampsAndSkipsDead(t *testing.T) {
	h := newHarness(t)
	r := h.spawn(4, local, knight, 2)
	r.Health.HP = 50
	h.eng.OnHeal(4, protocol.Heal{Amount: 500})
	assert.Equal(t, int32(100), r.Health.HP)

	h.eng.TakeDamage(r, 1000, 0, 0, 0)
	h.eng.Heal(r, 20)
	assert.Zero(t, r.Health.HP)
}

func TestHealthSyncMirrorsForObservers(t *testing.T) {
	h := newHarness(t)
	mine := h.spawn(1, local, knight, 2)
	theirs := h.spawn(2, remote, knight, 4)

	h.eng.OnHealthSync(1, protocol.HealthSync{HP: 1, MaxHP: 100})
	assert.Equal(t, int32(100), mine.Health.HP, "owner ignores mirrors")

	h.eng.OnHealthSync(2, protocol.HealthSync{HP: 12, MaxHP: 100, Dead: false})
	assert.Equal(t, int32(12), theirs.Health.HP)
	h.eng.OnHealthSync(99, protocol.HealthSync{HP: 1})
}

func TestDestroyOnlyFromOwner(t *testing.T) {
	h := newHarness(t)
	h.spawn(2, remote, knight, 4)
	h.eng.OnDestroy(local, 2)
	assert.True(t, h.w.Exists(2))
	h.eng.OnDestroy(remote, 2)
	assert.False(t, h.w.Exists(2))
	h.eng.OnDestroy(remote, 2)
}
