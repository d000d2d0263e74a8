package combat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/core/sched"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/physics"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

const (
	local  ident.ParticipantID = 1
	remote ident.ParticipantID = 2
)

var testCfg = Config{
	HitScore:                  10,
	KillScore:                 100,
	FallbackKnockbackForce:    4,
	FallbackKnockbackDuration: 200 * time.Millisecond,
	MinVerticalKnockback:      0.5,
	DefenseCooldown:           time.Second,
}

var (
	knight = &data.Archetype{
		Name: "knight", Kind: data.KindPlayer, MaxHP: 100, Damage: 30, Radius: 0.4,
		AttackRange: 1, AttackCooldown: 500 * time.Millisecond, AttackOrigin: &data.Offset{X: 0.5},
		Layer: "player", Targets: []string{"player", "npc"},
	}
	goblin = &data.Archetype{
		Name: "goblin", Kind: data.KindNpc, MaxHP: 40, Damage: 8, Radius: 0.4,
		AttackRange: 1, AttackCooldown: time.Second, AttackOrigin: &data.Offset{X: 0.5},
		Layer: "npc", Targets: []string{"player"}, ChaseRange: 5,
	}
)

type call struct {
	target ident.NetID
	msg    protocol.Message
	mode   protocol.AddressMode
}

type memStats struct {
	score    map[ident.ParticipantID]int32
	counters map[ident.ParticipantID]map[string]int32
}

func newMemStats() *memStats {
	return &memStats{score: map[ident.ParticipantID]int32{}, counters: map[ident.ParticipantID]map[string]int32{}}
}

func (s *memStats) AddScore(p ident.ParticipantID, n int32) { s.score[p] += n }
func (s *memStats) SetCounter(p ident.ParticipantID, name string, v int32) {
	if s.counters[p] == nil {
		s.counters[p] = map[string]int32{}
	}
	s.counters[p][name] = v
}
func (s *memStats) Counter(p ident.ParticipantID, name string) int32 { return s.counters[p][name] }

// harness is participant 1 (also the coordinator). Invocations are
// recorded and dispatched locally when participant 1 is in the destination
// set, the way the router does it.
type harness struct {
	t         *testing.T
	w         *world.State
	sess      *authority.Session
	eng       *Engine
	sc        *sched.Scheduler
	stats     *memStats
	bus       *event.Bus
	now       time.Time
	calls     []call
	respawned []ident.NetID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a, err := data.ParseArena([]byte("name: flat\ntiles: [\"....................\", \"....................\", \"####################\"]\nspawn_points: [{x: 1, y: 1}]\n"))
	require.NoError(t, err)
	h := &harness{t: t, stats: newMemStats(), bus: event.NewBus(), now: time.Unix(5000, 0)}
	h.w = world.NewState(physics.NewSpace(physics.NewTiles(a), 20))
	h.sess = authority.NewSession(local, local, []ident.ParticipantID{remote}, h.w)
	h.sc = sched.New(h.w.Exists)
	h.eng = New(testCfg, h.w, h.sess, h, h.sc, h.stats, h.bus, zap.NewNop())
	h.eng.SetClock(func() time.Time { return h.now })
	h.eng.SetRespawner(h)
	return h
}

func (h *harness) RequestRespawn(r world.Refs) { h.respawned = append(h.respawned, r.NetID()) }

func (h *harness) spawn(id ident.NetID, owner ident.ParticipantID, a *data.Archetype, x float64) world.Refs {
	h.t.Helper()
	r, _, err := h.w.Spawn(world.SpawnSpec{NetID: id, Owner: owner, Archetype: a, Pos: geom.V(x, 1)})
	require.NoError(h.t, err)
	return r
}

func (h *harness) Invoke(target ident.NetID, msg protocol.Message, mode protocol.AddressMode) {
	h.calls = append(h.calls, call{target, msg, mode})
	switch mode {
	case protocol.ModeOwner:
		if owner, ok := h.w.OwnerOf(target); !ok || owner != local {
			return
		}
	case protocol.ModeCoordinator:
		if !h.sess.IsCoordinator() {
			return
		}
	}
	h.dispatch(local, target, msg)
}

func (h *harness) dispatch(sender ident.ParticipantID, target ident.NetID, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.AttackIntent:
		h.eng.OnAttackIntent(m)
	case protocol.Damage:
		h.eng.OnDamage(target, m)
	case protocol.KillConfirmed:
		h.eng.OnKillConfirmed(target, m)
	case protocol.Heal:
		h.eng.OnHeal(target, m)
	case protocol.Defend:
		h.eng.OnDefend(target, m)
	case protocol.HealthSync:
		h.eng.OnHealthSync(target, m)
	case protocol.Destroy:
		h.eng.OnDestroy(sender, target)
	}
}

// count returns how many recorded calls carry op.
func (h *harness) count(op protocol.Op) int {
	n := 0
	for _, c := range h.calls {
		if c.msg.Op() == op {
			n++
		}
	}
	return n
}

func (h *harness) find(op protocol.Op) []call {
	var out []call
	for _, c := range h.calls {
		if c.msg.Op() == op {
			out = append(out, c)
		}
	}
	return out
}
