package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/feed"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/persist"
	"github.com/skirmish/server/internal/physics"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/scoreboard"
	"github.com/skirmish/server/internal/world"
)

// ==================== Drive ====================

func refs(gravity bool) world.Refs {
	return world.Refs{
		Motor: &world.Motor{Speed: 4, JumpSpeed: 9, Facing: 1},
		Body:  &physics.Body{Gravity: gravity, Grounded: true},
		Guard: &world.Guard{},
	}
}

func TestDriveWalksAndJumps(t *testing.T) {
	r := refs(true)
	r.Motor.Move = geom.V(-1, 0)
	r.Motor.Jump = true
	Drive(r)
	assert.Equal(t, geom.V(-4, 9), r.Body.Vel)
	assert.Equal(t, -1.0, r.Motor.Facing)
	assert.False(t, r.Motor.Jump, "jump is consumed")

	r.Body.Grounded = false
	r.Body.Vel.Y = 1
	r.Motor.Jump = true
	Drive(r)
	assert.Equal(t, 1.0, r.Body.Vel.Y, "no jump in the air")
	assert.False(t, r.Motor.Jump)
}

func TestDriveHoldsStillWhileDefending(t *testing.T) {
	r := refs(true)
	r.Guard.Defending = true
	r.Motor.Move = geom.V(1, 0)
	r.Body.Vel = geom.V(3, -2)
	Drive(r)
	assert.Equal(t, geom.V(0, -2), r.Body.Vel, "gravity still applies")

	fly := refs(false)
	fly.Guard.Defending = true
	fly.Body.Vel = geom.V(3, -2)
	Drive(fly)
	assert.True(t, fly.Body.Vel.IsZero())
}

func TestDriveLeavesKnockbackAlone(t *testing.T) {
	r := refs(true)
	r.Motor.KnockbackLock = true
	r.Motor.Move = geom.V(1, 0)
	r.Motor.Jump = true
	r.Body.Vel = geom.V(-6, 2)
	Drive(r)
	assert.Equal(t, geom.V(-6, 2), r.Body.Vel)
	assert.False(t, r.Motor.Jump)
}

func TestDriveFlying(t *testing.T) {
	r := refs(false)
	r.Motor.Move = geom.V(0.6, 0.8)
	Drive(r)
	assert.InDelta(t, 2.4, r.Body.Vel.X, 1e-9)
	assert.InDelta(t, 3.2, r.Body.Vel.Y, 1e-9)
}

// ==================== Motion mirrors ====================

var runner = &data.Archetype{
	Name: "runner", Kind: data.KindPlayer, MaxHP: 10, Radius: 0.4, MoveSpeed: 4,
	AttackOrigin: &data.Offset{}, Layer: "player",
}

type recorder struct {
	calls []protocol.Message
}

func (r *recorder) Invoke(_ ident.NetID, msg protocol.Message, _ protocol.AddressMode) {
	r.calls = append(r.calls, msg)
}

func newMotion(t *testing.T, local ident.ParticipantID) (*MotionSystem, *world.State, *recorder) {
	t.Helper()
	a, err := data.ParseArena([]byte("name: t\ntiles: [\"..........\", \"..........\", \"##########\"]\nspawn_points: [{x: 1, y: 1}]\n"))
	require.NoError(t, err)
	ws := world.NewState(physics.NewSpace(physics.NewTiles(a), 20))
	_, _, err = ws.Spawn(world.SpawnSpec{NetID: 1, Owner: 1, Archetype: runner, Pos: geom.V(2, 1)})
	require.NoError(t, err)
	sess := authority.NewSession(local, 1, []ident.ParticipantID{1, 2}, ws)
	rec := &recorder{}
	return NewMotionSystem(ws, sess, rec, 100*time.Millisecond, zap.NewNop()), ws, rec
}

func TestMotionApplyOnlyFromOwner(t *testing.T) {
	m, ws, _ := newMotion(t, 2)
	r, ok := ws.Resolve(1)
	require.True(t, ok)

	m.Apply(2, 1, protocol.MotionSync{X: 7, Y: 1})
	assert.Equal(t, 2.0, r.Body.Pos.X, "non-owner sender ignored")

	m.Apply(1, 1, protocol.MotionSync{X: 7, Y: 1, VX: 4, Facing: -1})
	assert.Equal(t, geom.V(7, 1), r.Body.Pos)
	assert.Equal(t, 4.0, r.Body.Vel.X)
	assert.Equal(t, -1.0, r.Motor.Facing)
}

func TestMotionOwnerIgnoresMirror(t *testing.T) {
	m, ws, _ := newMotion(t, 1)
	m.Apply(1, 1, protocol.MotionSync{X: 7, Y: 1})
	r, _ := ws.Resolve(1)
	assert.Equal(t, 2.0, r.Body.Pos.X)
}

func TestMotionSyncCadence(t *testing.T) {
	m, _, rec := newMotion(t, 1)
	m.Update(50 * time.Millisecond)
	assert.Empty(t, rec.calls)
	m.Update(50 * time.Millisecond)
	require.Len(t, rec.calls, 1)
	assert.IsType(t, protocol.MotionSync{}, rec.calls[0])

	other, _, rec2 := newMotion(t, 2)
	other.Update(time.Second)
	assert.Empty(t, rec2.calls, "only owned bodies are mirrored")
}

// ==================== Regen ====================

var mender = &data.Archetype{
	Name: "mender", Kind: data.KindPlayer, MaxHP: 10, Radius: 0.4,
	AttackOrigin: &data.Offset{}, Layer: "player",
	RegenAmount: 2, RegenInterval: time.Second,
}

func newRegen(t *testing.T) (*RegenSystem, *world.State, *recorder) {
	t.Helper()
	a, err := data.ParseArena([]byte("name: t\ntiles: [\"..........\", \"..........\", \"##########\"]\nspawn_points: [{x: 1, y: 1}]\n"))
	require.NoError(t, err)
	ws := world.NewState(physics.NewSpace(physics.NewTiles(a), 20))
	for _, spec := range []world.SpawnSpec{
		{NetID: 1, Owner: 1, Archetype: mender, Pos: geom.V(2, 1)},
		{NetID: 2, Owner: 2, Archetype: mender, Pos: geom.V(4, 1)},
		{NetID: 3, Owner: 1, Archetype: runner, Pos: geom.V(6, 1)},
	} {
		_, _, err = ws.Spawn(spec)
		require.NoError(t, err)
	}
	sess := authority.NewSession(1, 1, []ident.ParticipantID{1, 2}, ws)
	rec := &recorder{}
	return NewRegenSystem(ws, sess, rec), ws, rec
}

func TestRegenHealsHurtOwnedEntities(t *testing.T) {
	s, ws, rec := newRegen(t)
	for _, id := range []ident.NetID{1, 2, 3} {
		r, _ := ws.Resolve(id)
		r.Health.HP = 5
	}

	s.Update(600 * time.Millisecond)
	assert.Empty(t, rec.calls)
	s.Update(600 * time.Millisecond)
	require.Len(t, rec.calls, 1, "only the owned regenerating entity")
	assert.Equal(t, protocol.Heal{Amount: 2}, rec.calls[0])

	s.Update(600 * time.Millisecond)
	assert.Len(t, rec.calls, 1, "leftover time carries over")
	s.Update(300 * time.Millisecond)
	assert.Len(t, rec.calls, 2)
}

func TestRegenSkipsFullAndDead(t *testing.T) {
	s, ws, rec := newRegen(t)
	s.Update(5 * time.Second)
	assert.Empty(t, rec.calls, "full health")

	r, _ := ws.Resolve(1)
	r.Health.HP = 0
	r.Health.Dead = true
	s.Update(5 * time.Second)
	assert.Empty(t, rec.calls)
}

// ==================== Control ====================

type controls struct {
	log []string
}

func (c *controls) Move(x float64) {
	if x < 0 {
		c.log = append(c.log, "left")
		return
	}
	c.log = append(c.log, "right")
}
func (c *controls) Jump()   { c.log = append(c.log, "jump") }
func (c *controls) Attack() { c.log = append(c.log, "attack") }
func (c *controls) Defend(active bool) {
	if active {
		c.log = append(c.log, "guard")
		return
	}
	c.log = append(c.log, "unguard")
}

func TestControlDrainsBounded(t *testing.T) {
	ch := make(chan feed.Command, 8)
	ch <- feed.Command{Action: feed.ActionMove, X: -1}
	ch <- feed.Command{Action: feed.ActionJump}
	ch <- feed.Command{Action: feed.ActionDefend, Active: true}
	ch <- feed.Command{Action: "dance"}
	ch <- feed.Command{Action: feed.ActionAttack}

	ctl := &controls{}
	s := NewControlSystem(ch, ctl, 3)
	s.Update(0)
	assert.Equal(t, []string{"left", "jump", "guard"}, ctl.log)

	s.Update(0)
	assert.Equal(t, []string{"left", "jump", "guard", "attack"}, ctl.log)
	s.Update(0)
	assert.Len(t, ctl.log, 4)
}

// ==================== Persistence ====================

type statsSink struct {
	saved [][]scoreboard.Row
}

func (s *statsSink) SaveBoard(_ context.Context, rows []scoreboard.Row) error {
	s.saved = append(s.saved, rows)
	return nil
}

type eventSink struct {
	fail   error
	events []persist.MatchEvent
}

func (s *eventSink) Append(_ context.Context, events []persist.MatchEvent) error {
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, events...)
	return nil
}

func TestPersistFlushesOnInterval(t *testing.T) {
	bus := event.NewBus()
	board := scoreboard.New(bus)
	stats := &statsSink{}
	events := &eventSink{}
	s := NewStatsPersistSystem(board, stats, events, 1, time.Second, zap.NewNop())
	s.Attach(bus)

	board.AddScore(1, 10)
	event.Emit(bus, event.EntitySpawned{NetID: 3, Owner: 1})
	event.Emit(bus, event.EntitySpawned{NetID: 4, Owner: 2})
	event.Emit(bus, event.EntityDied{NetID: 3, Attacker: 4})
	bus.SwapBuffers()
	bus.DispatchAll()

	s.Update(500 * time.Millisecond)
	assert.Empty(t, stats.saved)

	s.Update(500 * time.Millisecond)
	require.Len(t, stats.saved, 1)
	assert.Equal(t, int32(10), stats.saved[0][0].Score)
	require.Len(t, events.events, 2, "remote spawns are not logged")
	assert.Equal(t, persist.EventSpawn, events.events[0].Kind)
	assert.Equal(t, persist.EventDeath, events.events[1].Kind)
	assert.Equal(t, int32(4), events.events[1].Other)

	s.Flush(context.Background())
	assert.Len(t, stats.saved, 1, "nothing dirty")
	assert.Len(t, events.events, 2)
}

func TestPersistKeepsEventsOnFailure(t *testing.T) {
	bus := event.NewBus()
	events := &eventSink{fail: errors.New("db down")}
	s := NewStatsPersistSystem(scoreboard.New(bus), nil, events, 1, time.Second, zap.NewNop())
	s.Attach(bus)
	event.Emit(bus, event.EntityDied{NetID: 3})
	bus.SwapBuffers()
	bus.DispatchAll()

	s.Flush(context.Background())
	assert.Empty(t, events.events)

	events.fail = nil
	s.Flush(context.Background())
	assert.Len(t, events.events, 1)
}
