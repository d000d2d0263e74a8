package spawn

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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
	coord ident.ParticipantID = 1
	guest ident.ParticipantID = 2
)

const archetypes = `
archetypes:
  - name: knight
    kind: player
    max_hp: 100
    damage: 20
    attack_range: 1
    attack_cooldown: 500ms
    attack_origin: {x: 0.5, y: 0}
    targets: [npc, player]
  - name: goblin
    kind: npc
    max_hp: 40
    damage: 8
    attack_range: 1
    attack_cooldown: 1s
    attack_origin: {x: 0.5, y: 0}
    targets: [player]
    chase_range: 5
    respawn_delay: 3s
  - name: wisp
    kind: npc
    max_hp: 10
    damage: 1
    attack_range: 1
    attack_cooldown: 1s
    attack_origin: {x: 0.5, y: 0}
    targets: [player]
    chase_range: 5
`

const arena = `
name: yard
tiles:
  - "...................."
  - "...................."
  - "####################"
spawn_points: [{x: 2, y: 1}, {x: 10, y: 1}, {x: 18, y: 1}]
npcs:
  - {archetype: goblin, x: 14, y: 1}
  - {archetype: wisp, x: 6, y: 1}
`

type sent struct {
	target ident.NetID
	msg    protocol.Message
	mode   protocol.AddressMode
}

type fixture struct {
	t     *testing.T
	w     *world.State
	sess  *authority.Session
	sp    *Spawner
	sc    *sched.Scheduler
	bus   *event.Bus
	now   time.Time
	sent  []sent
	local ident.ParticipantID
}

func newFixture(t *testing.T, local ident.ParticipantID) *fixture {
	t.Helper()
	tbl, err := data.ParseArchetypes([]byte(archetypes))
	require.NoError(t, err)
	a, err := data.ParseArena([]byte(arena))
	require.NoError(t, err)

	f := &fixture{t: t, bus: event.NewBus(), now: time.Unix(9000, 0), local: local}
	f.w = world.NewState(physics.NewSpace(physics.NewTiles(a), 20))
	f.sess = authority.NewSession(local, coord, []ident.ParticipantID{coord, guest}, f.w)
	f.sc = sched.New(f.w.Exists)
	f.sp = New(Config{PlayerArchetype: "knight", RespawnDelay: 2 * time.Second}, f.w, f.sess, f, tbl, a, f.sc, f.bus, zap.NewNop())
	f.sp.SetClock(func() time.Time { return f.now })
	return f
}

// Invoke records the call and delivers it locally when this participant is
// a destination.
func (f *fixture) Invoke(target ident.NetID, msg protocol.Message, mode protocol.AddressMode) {
	f.sent = append(f.sent, sent{target, msg, mode})
	if mode == protocol.ModeCoordinator && !f.sess.IsCoordinator() {
		return
	}
	switch m := msg.(type) {
	case protocol.Spawn:
		f.sp.OnSpawn(m)
	case protocol.RespawnRequest:
		f.sp.OnRespawnRequest(f.local, m)
	}
}

func (f *fixture) ops(op protocol.Op) []sent {
	var out []sent
	for _, s := range f.sent {
		if s.msg.Op() == op {
			out = append(out, s)
		}
	}
	return out
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
	f.sc.Process(f.now)
}

type fixedPicker struct{ idx int }

func (p fixedPicker) PickRespawn(_ int32, _ geom.Vec2, pts []data.Point) (data.Point, bool) {
	if p.idx < 0 {
		return data.Point{}, false
	}
	return pts[p.idx], true
}

type doubler struct{ players int }

func (d *doubler) ScaleNpcHealth(_ string, base int32, players int) int32 {
	d.players = players
	return base * 2
}

func TestSpawnPlayerAllocatesAndBuilds(t *testing.T) {
	f := newFixture(t, coord)
	var spawned []event.EntitySpawned
	event.Subscribe(f.bus, func(c event.EntitySpawned) { spawned = append(spawned, c) })

	a, err := f.sp.SpawnPlayer(coord)
	require.NoError(t, err)
	b, err := f.sp.SpawnPlayer(guest)
	require.NoError(t, err)
	assert.Equal(t, ident.NetID(1), a)
	assert.Equal(t, ident.NetID(2), b)

	rb, ok := f.w.Resolve(b)
	require.True(t, ok)
	assert.Equal(t, guest, rb.ID.Owner)
	assert.Equal(t, int32(1), rb.ID.Slot)
	assert.Equal(t, geom.V(10, 1), rb.Body.Pos, "second slot, second spawn point")

	for _, s := range f.ops(protocol.OpSpawn) {
		assert.Equal(t, protocol.ModeAll, s.mode)
	}

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	require.Len(t, spawned, 2)
	assert.Equal(t, "knight", spawned[0].Archetype)
}

func TestDuplicateSpawnIsIgnored(t *testing.T) {
	f := newFixture(t, guest)
	m := protocol.Spawn{NetID: 7, Owner: coord, Archetype: "goblin", X: 3, Y: 1, HP: 25}
	f.sp.OnSpawn(m)
	f.sp.OnSpawn(protocol.Spawn{NetID: 7, Owner: guest, Archetype: "knight", X: 9, Y: 1})

	assert.Equal(t, 1, f.w.Len())
	r, _ := f.w.Resolve(7)
	assert.Equal(t, coord, r.ID.Owner)
	assert.Equal(t, int32(25), r.Health.HP)
	assert.Equal(t, 1, f.bus.Pending())
}

func TestOnlyCoordinatorSpawns(t *testing.T) {
	f := newFixture(t, guest)
	_, err := f.sp.SpawnAt(geom.V(1, 1), guest, "knight", 0)
	assert.True(t, errors.Is(err, ErrNotCoordinator))
	assert.Empty(t, f.sent)
}

func TestUnknownArchetype(t *testing.T) {
	f := newFixture(t, coord)
	_, err := f.sp.SpawnAt(geom.V(1, 1), coord, "dragon", 0)
	assert.True(t, errors.Is(err, data.ErrUnknownArchetype))

	f.sp.OnSpawn(protocol.Spawn{NetID: 3, Archetype: "dragon"})
	assert.Zero(t, f.w.Len())
}

func TestAllocationSkipsPastSeenIDs(t *testing.T) {
	f := newFixture(t, coord)
	f.sp.OnSpawn(protocol.Spawn{NetID: 50, Owner: guest, Archetype: "knight", X: 2, Y: 1})

	id, err := f.sp.SpawnAt(geom.V(4, 1), coord, "knight", 1)
	require.NoError(t, err)
	assert.Equal(t, ident.NetID(51), id)
}

func TestPopulateNpcsScalesHealth(t *testing.T) {
	f := newFixture(t, coord)
	_, err := f.sp.SpawnPlayer(coord)
	require.NoError(t, err)
	_, err = f.sp.SpawnPlayer(guest)
	require.NoError(t, err)

	d := &doubler{}
	f.sp.SetScripts(nil, d)
	require.NoError(t, f.sp.PopulateNpcs())

	assert.Equal(t, 2, d.players)
	npcs := f.ops(protocol.OpSpawn)[2:]
	require.Len(t, npcs, 2)
	gob := npcs[0].msg.(protocol.Spawn)
	assert.Equal(t, "goblin", gob.Archetype)
	assert.Equal(t, coord, gob.Owner)
	assert.Equal(t, int32(80), gob.HP)

	r, _ := f.w.Resolve(gob.NetID)
	assert.Equal(t, int32(80), r.Health.MaxHP, "scaled health raises the max")
}

func TestPlayerRespawnPipeline(t *testing.T) {
	f := newFixture(t, coord)
	id, err := f.sp.SpawnPlayer(guest)
	require.NoError(t, err)
	r, _ := f.w.Resolve(id)
	r.Body.Pos = geom.V(17, 1)

	f.sp.RequestRespawn(r)
	reqs := f.ops(protocol.OpRespawnRequest)
	require.Len(t, reqs, 1)
	assert.Equal(t, protocol.ModeCoordinator, reqs[0].mode)

	assert.Zero(t, f.sc.Len(), "local delivery carries the coordinator as sender")

	// Replay it as the guest's relayed request.
	f.sp.OnRespawnRequest(guest, reqs[0].msg.(protocol.RespawnRequest))
	f.w.Remove(id)

	f.advance(time.Second)
	assert.Len(t, f.ops(protocol.OpSpawn), 1, "not before the delay")

	f.advance(time.Second)
	spawns := f.ops(protocol.OpSpawn)
	require.Len(t, spawns, 2)
	m := spawns[1].msg.(protocol.Spawn)
	assert.Equal(t, guest, m.Owner)
	assert.Equal(t, int32(0), m.Slot)
	assert.Equal(t, 18.0, m.X, "nearest point to the death site")
	assert.Greater(t, m.NetID, id)
}

func TestRespawnUsesPicker(t *testing.T) {
	f := newFixture(t, coord)
	f.sp.SetScripts(fixedPicker{idx: 1}, nil)
	f.sp.OnRespawnRequest(coord, protocol.RespawnRequest{Owner: coord, Archetype: "knight", X: 2, Y: 1})
	f.advance(2 * time.Second)

	spawns := f.ops(protocol.OpSpawn)
	require.Len(t, spawns, 1)
	assert.Equal(t, 10.0, spawns[0].msg.(protocol.Spawn).X)
}

func TestRespawnRejections(t *testing.T) {
	f := newFixture(t, coord)
	f.sp.OnRespawnRequest(guest, protocol.RespawnRequest{Owner: coord, Archetype: "knight"})
	assert.Zero(t, f.sc.Len(), "sender must own the dead entity")

	g := newFixture(t, guest)
	g.sp.OnRespawnRequest(guest, protocol.RespawnRequest{Owner: guest, Archetype: "knight"})
	assert.Zero(t, g.sc.Len(), "only the coordinator schedules")
}

func TestRespawnDroppedWhenOwnerLeft(t *testing.T) {
	f := newFixture(t, coord)
	f.sp.OnRespawnRequest(guest, protocol.RespawnRequest{Owner: guest, Archetype: "knight"})
	f.sess.RemoveMember(guest, coord)
	f.advance(5 * time.Second)
	assert.Empty(t, f.ops(protocol.OpSpawn))
}

func TestNpcRespawnReturnsHome(t *testing.T) {
	f := newFixture(t, coord)
	require.NoError(t, f.sp.PopulateNpcs())
	gob, _ := f.w.Resolve(1)
	gob.Body.Pos = geom.V(3, 1)

	f.sp.RequestRespawn(gob)
	f.w.Remove(1)
	f.advance(3 * time.Second)

	spawns := f.ops(protocol.OpSpawn)
	require.Len(t, spawns, 3)
	m := spawns[2].msg.(protocol.Spawn)
	assert.Equal(t, "goblin", m.Archetype)
	assert.Equal(t, 14.0, m.X)
	assert.Equal(t, int32(0), m.Slot)
}

func TestNpcWithoutDelayStaysDead(t *testing.T) {
	f := newFixture(t, coord)
	require.NoError(t, f.sp.PopulateNpcs())
	wisp, _ := f.w.Resolve(2)
	f.sp.RequestRespawn(wisp)
	assert.Empty(t, f.ops(protocol.OpRespawnRequest))
}

func TestResyncRebroadcastsLiveEntities(t *testing.T) {
	f := newFixture(t, coord)
	require.NoError(t, f.sp.PopulateNpcs())
	gob, _ := f.w.Resolve(1)
	gob.Health.HP = 12
	gob.Body.Pos = geom.V(11, 1)
	wisp, _ := f.w.Resolve(2)
	wisp.Health.Dead = true

	f.sent = nil
	f.sp.Resync()
	spawns := f.ops(protocol.OpSpawn)
	require.Len(t, spawns, 1)
	m := spawns[0].msg.(protocol.Spawn)
	assert.Equal(t, ident.NetID(1), m.NetID)
	assert.Equal(t, int32(12), m.HP)
	assert.Equal(t, 11.0, m.X)
	assert.Equal(t, 2, f.w.Len(), "duplicates are dropped locally")
}

func TestNearest(t *testing.T) {
	pts := []data.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 8, Y: 0}}
	assert.Equal(t, pts[2], Nearest(pts, 0, geom.V(7, 0)))
	assert.Equal(t, pts[0], Nearest(pts, 0, geom.V(2, 0)), "tie goes to the first without a slot match")
	assert.Equal(t, pts[1], Nearest(pts, 1, geom.V(2, 0)), "tie goes to the slot's own point")
	assert.Equal(t, pts[1], Nearest(pts, 4, geom.V(2, 0)), "slot wraps")
	assert.Equal(t, data.Point{X: 3, Y: 3}, Nearest(nil, 0, geom.V(3, 3)))
}

func TestTakeOverRespawnsOrphanedMembers(t *testing.T) {
	f := newFixture(t, coord)
	_, err := f.sp.SpawnPlayer(coord)
	require.NoError(t, err)

	f.sp.TakeOver()
	assert.Equal(t, 1, f.sc.Len(), "only the guest lacks a player")

	f.advance(2 * time.Second)
	spawns := f.ops(protocol.OpSpawn)
	require.Len(t, spawns, 2)
	assert.Equal(t, guest, spawns[1].msg.(protocol.Spawn).Owner)

	f.sp.TakeOver()
	assert.Zero(t, f.sc.Len())
}
