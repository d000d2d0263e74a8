// Package spawn creates entities for the whole session. The coordinator
// allocates NetIDs and broadcasts Spawn; every participant, the coordinator
// included, builds the entity when the Spawn arrives.
package spawn

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/core/sched"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/world"
)

var ErrNotCoordinator = errors.New("only the coordinator spawns")

// Config holds the [spawn] tunables.
type Config struct {
	PlayerArchetype string
	RespawnDelay    time.Duration
}

// Picker chooses a respawn point; *scripting.Engine implements it.
type Picker interface {
	PickRespawn(slot int32, death geom.Vec2, points []data.Point) (data.Point, bool)
}

// HealthScaler tunes starting NPC health; *scripting.Engine implements it.
type HealthScaler interface {
	ScaleNpcHealth(archetype string, base int32, players int) int32
}

// Invoker is the routing primitive; *authority.Router implements it.
type Invoker interface {
	Invoke(target ident.NetID, msg protocol.Message, mode protocol.AddressMode)
}

// Spawner is owned by the tick loop.
type Spawner struct {
	cfg        Config
	world      *world.State
	sess       *authority.Session
	inv        Invoker
	archetypes *data.ArchetypeTable
	arena      *data.Arena
	picker     Picker
	scaler     HealthScaler
	sched      *sched.Scheduler
	bus        *event.Bus
	now        func() time.Time
	log        *zap.Logger

	lastID ident.NetID
	slots  map[ident.ParticipantID]int32
}

func New(cfg Config, w *world.State, sess *authority.Session, inv Invoker, archetypes *data.ArchetypeTable, arena *data.Arena, sc *sched.Scheduler, bus *event.Bus, log *zap.Logger) *Spawner {
	return &Spawner{
		cfg:        cfg,
		world:      w,
		sess:       sess,
		inv:        inv,
		archetypes: archetypes,
		arena:      arena,
		sched:      sc,
		bus:        bus,
		now:        time.Now,
		log:        log,
		slots:      make(map[ident.ParticipantID]int32),
	}
}

// SetScripts installs the optional Lua hooks. Either may be nil.
func (s *Spawner) SetScripts(p Picker, h HealthScaler) {
	s.picker = p
	s.scaler = h
}

func (s *Spawner) SetClock(now func() time.Time) { s.now = now }

// ==================== Allocation ====================

// allocate hands out NetIDs above anything this participant has seen, so a
// coordinator taking over never reuses an ID.
func (s *Spawner) allocate() ident.NetID {
	if m := s.world.MaxNetID(); m > s.lastID {
		s.lastID = m
	}
	s.lastID++
	return s.lastID
}

// SpawnAt allocates a NetID and broadcasts the Spawn. Coordinator only.
func (s *Spawner) SpawnAt(pos geom.Vec2, owner ident.ParticipantID, archetype string, slot int32) (ident.NetID, error) {
	if !s.sess.IsCoordinator() {
		return 0, ErrNotCoordinator
	}
	a, err := s.archetypes.Get(archetype)
	if err != nil {
		return 0, fmt.Errorf("spawn at %v: %w", pos, err)
	}
	hp := a.MaxHP
	if a.IsNpc() && s.scaler != nil {
		hp = s.scaler.ScaleNpcHealth(a.Name, a.MaxHP, s.playerCount())
	}
	id := s.allocate()
	s.inv.Invoke(id, protocol.Spawn{
		NetID:     id,
		Owner:     owner,
		Archetype: a.Name,
		X:         pos.X,
		Y:         pos.Y,
		Slot:      slot,
		HP:        hp,
	}, protocol.ModeAll)
	s.log.Debug("spawn broadcast",
		zap.Int32("net_id", int32(id)),
		zap.Uint64("owner", uint64(owner)),
		zap.String("archetype", a.Name))
	return id, nil
}

// playerCount counts participants that currently field a player.
func (s *Spawner) playerCount() int {
	n := 0
	for _, p := range s.sess.Members() {
		if s.hasPlayer(p) {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// OnSpawn builds the entity. A NetID that already exists is ignored.
func (s *Spawner) OnSpawn(m protocol.Spawn) {
	a, err := s.archetypes.Get(m.Archetype)
	if err != nil {
		s.log.Warn("spawn with unknown archetype", zap.Int32("net_id", int32(m.NetID)), zap.Error(err))
		return
	}
	_, created, err := s.world.Spawn(world.SpawnSpec{
		NetID:     m.NetID,
		Owner:     m.Owner,
		Archetype: a,
		Pos:       geom.V(m.X, m.Y),
		Slot:      m.Slot,
		HP:        m.HP,
	})
	if err != nil {
		s.log.Error("spawn failed", zap.Int32("net_id", int32(m.NetID)), zap.Error(err))
		return
	}
	if !created {
		return
	}
	// NPC slots index the arena roster; player slots follow join order.
	if _, ok := s.slots[m.Owner]; !ok && !a.IsNpc() {
		s.slots[m.Owner] = m.Slot
	}
	event.Emit(s.bus, event.EntitySpawned{NetID: m.NetID, Owner: m.Owner, Archetype: m.Archetype, X: m.X, Y: m.Y})
}

// ==================== Session start ====================

// PopulateNpcs spawns the arena's NPC roster, owned by the coordinator.
func (s *Spawner) PopulateNpcs() error {
	for i, n := range s.arena.Npcs {
		if _, err := s.SpawnAt(geom.V(n.X, n.Y), s.sess.Local(), n.Archetype, int32(i)); err != nil {
			return fmt.Errorf("populate npc %d: %w", i, err)
		}
	}
	return nil
}

// SpawnPlayer gives p a player at its slot's spawn point. Slots follow join
// order and wrap around the arena's spawn points.
func (s *Spawner) SpawnPlayer(p ident.ParticipantID) (ident.NetID, error) {
	slot, ok := s.slots[p]
	if !ok {
		slot = int32(len(s.slots))
		s.slots[p] = slot
	}
	pts := s.arena.SpawnPoints
	if len(pts) == 0 {
		return 0, data.ErrNoSpawnPoints
	}
	pt := pts[int(slot)%len(pts)]
	return s.SpawnAt(geom.V(pt.X, pt.Y), p, s.cfg.PlayerArchetype, slot)
}

// Resync re-broadcasts every live entity with its current position and
// health so a late joiner catches up. Existing participants drop the
// duplicates.
func (s *Spawner) Resync() {
	if !s.sess.IsCoordinator() {
		return
	}
	for _, id := range s.world.IDs() {
		r, ok := s.world.Resolve(id)
		if !ok || r.Health.Dead || r.Body == nil {
			continue
		}
		s.inv.Invoke(id, protocol.Spawn{
			NetID:     id,
			Owner:     r.ID.Owner,
			Archetype: r.ID.Archetype.Name,
			X:         r.Body.Pos.X,
			Y:         r.Body.Pos.Y,
			Slot:      r.ID.Slot,
			HP:        r.Health.HP,
		}, protocol.ModeAll)
	}
}

// TakeOver runs when this participant becomes coordinator. Respawns that
// were pending on the old coordinator are lost with it, so members left
// without a player get a fresh one after the respawn delay.
func (s *Spawner) TakeOver() {
	for _, p := range s.sess.Members() {
		if s.hasPlayer(p) {
			continue
		}
		member := p
		s.sched.At(s.now().Add(s.cfg.RespawnDelay), sched.NoTarget, sched.TagRespawn, func() {
			if !s.sess.IsCoordinator() || !s.sess.HasMember(member) || s.hasPlayer(member) {
				return
			}
			if _, err := s.SpawnPlayer(member); err != nil {
				s.log.Error("takeover spawn failed", zap.Uint64("participant", uint64(member)), zap.Error(err))
			}
		})
	}
}

func (s *Spawner) hasPlayer(p ident.ParticipantID) bool {
	for _, id := range s.world.OwnedBy(p) {
		if r, ok := s.world.Resolve(id); ok && !r.IsNpc() {
			return true
		}
	}
	return false
}

// ==================== Respawn ====================

func (s *Spawner) delayFor(a *data.Archetype) time.Duration {
	if a.IsNpc() {
		return a.RespawnDelay
	}
	return s.cfg.RespawnDelay
}

// RequestRespawn runs on the dead entity's owner and asks the coordinator
// to bring it back. NPCs without a respawn delay stay dead.
func (s *Spawner) RequestRespawn(r world.Refs) {
	a := r.ID.Archetype
	if s.delayFor(a) <= 0 {
		return
	}
	var death geom.Vec2
	if r.Body != nil {
		death = r.Body.Pos
	}
	s.inv.Invoke(r.NetID(), protocol.RespawnRequest{
		Owner:     r.ID.Owner,
		Archetype: a.Name,
		Slot:      r.ID.Slot,
		X:         death.X,
		Y:         death.Y,
	}, protocol.ModeCoordinator)
}

// OnRespawnRequest schedules the respawn on the coordinator. Only the dead
// entity's owner may ask.
func (s *Spawner) OnRespawnRequest(sender ident.ParticipantID, m protocol.RespawnRequest) {
	if !s.sess.IsCoordinator() {
		s.log.Debug("respawn rejected: not coordinator", zap.Uint64("participant", uint64(sender)))
		return
	}
	if sender != m.Owner {
		s.log.Debug("respawn rejected: sender is not owner",
			zap.Uint64("participant", uint64(sender)), zap.Uint64("owner", uint64(m.Owner)))
		return
	}
	a, err := s.archetypes.Get(m.Archetype)
	if err != nil {
		s.log.Warn("respawn with unknown archetype", zap.Error(err))
		return
	}
	delay := s.delayFor(a)
	if delay <= 0 {
		return
	}
	death := geom.V(m.X, m.Y)
	s.sched.At(s.now().Add(delay), sched.NoTarget, sched.TagRespawn, func() {
		s.respawn(a, m.Owner, m.Slot, death)
	})
}

func (s *Spawner) respawn(a *data.Archetype, owner ident.ParticipantID, slot int32, death geom.Vec2) {
	if !s.sess.IsCoordinator() {
		return
	}
	var pos geom.Vec2
	if a.IsNpc() {
		// The coordinator may have changed while the NPC was down.
		owner = s.sess.Local()
		pos = s.npcHome(a, slot, death)
	} else {
		if !s.sess.HasMember(owner) {
			s.log.Debug("respawn dropped: owner left", zap.Uint64("owner", uint64(owner)))
			return
		}
		pos = s.respawnPoint(slot, death)
	}
	if _, err := s.SpawnAt(pos, owner, a.Name, slot); err != nil {
		s.log.Error("respawn failed", zap.String("archetype", a.Name), zap.Error(err))
	}
}

// npcHome returns the roster position for slot, or a respawn point when the
// roster entry no longer matches.
func (s *Spawner) npcHome(a *data.Archetype, slot int32, death geom.Vec2) geom.Vec2 {
	if i := int(slot); i >= 0 && i < len(s.arena.Npcs) && s.arena.Npcs[i].Archetype == a.Name {
		n := s.arena.Npcs[i]
		return geom.V(n.X, n.Y)
	}
	return s.respawnPoint(slot, death)
}

func (s *Spawner) respawnPoint(slot int32, death geom.Vec2) geom.Vec2 {
	pts := s.arena.SpawnPoints
	if s.picker != nil {
		if p, ok := s.picker.PickRespawn(slot, death, pts); ok {
			return geom.V(p.X, p.Y)
		}
	}
	p := Nearest(pts, slot, death)
	return geom.V(p.X, p.Y)
}

// Nearest returns the spawn point closest to death. Among equally close
// points the one at index slot (mod len) wins, otherwise the first.
func Nearest(points []data.Point, slot int32, death geom.Vec2) data.Point {
	if len(points) == 0 {
		return data.Point{X: death.X, Y: death.Y}
	}
	const eps = 1e-9
	home := int(slot) % len(points)
	if home < 0 {
		home += len(points)
	}
	best := -1
	bestD := 0.0
	for i, p := range points {
		d := geom.V(p.X, p.Y).Dist(death)
		switch {
		case best < 0 || d < bestD-eps:
			best, bestD = i, d
		case d <= bestD+eps && i == home:
			best = i
		}
	}
	return points[best]
}
