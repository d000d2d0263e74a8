package world

import (
	"fmt"
	"sort"

	"github.com/skirmish/server/internal/core/ecs"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/geom"
	"github.com/skirmish/server/internal/physics"
)

// Refs bundles the resolved components of one entity. Optional components
// are nil when the entity lacks them.
type Refs struct {
	Entity   ecs.EntityID
	ID       *Identity
	Health   *Health
	Guard    *Guard
	Motor    *Motor
	Attacker *Attacker
	Brain    *Brain
	Body     *physics.Body
}

func (r Refs) NetID() ident.NetID { return r.ID.NetID }
func (r Refs) IsNpc() bool         { return r.ID.Kind == KindNpc }

// SpawnSpec describes one entity to create.
type SpawnSpec struct {
	NetID     ident.NetID
	Owner     ident.ParticipantID
	Archetype *data.Archetype
	Pos       geom.Vec2
	Slot      int32
	HP        int32 // 0 means the archetype's max; above it raises the max
}

// State is the per-participant entity table. Accessed only from the game
// loop goroutine.
type State struct {
	ecs   *ecs.World
	space *physics.Space

	idents   *ecs.Store[Identity]
	health   *ecs.Store[Health]
	guards   *ecs.Store[Guard]
	motors   *ecs.Store[Motor]
	attacks  *ecs.Store[Attacker]
	brains   *ecs.Store[Brain]
	byNet    map[ident.NetID]ecs.EntityID
	maxNetID ident.NetID
}

func NewState(space *physics.Space) *State {
	s := &State{
		ecs:     ecs.NewWorld(),
		space:   space,
		idents:  ecs.NewStore[Identity](),
		health:  ecs.NewStore[Health](),
		guards:  ecs.NewStore[Guard](),
		motors:  ecs.NewStore[Motor](),
		attacks: ecs.NewStore[Attacker](),
		brains:  ecs.NewStore[Brain](),
		byNet:   make(map[ident.NetID]ecs.EntityID),
	}
	s.ecs.Register(s.idents)
	s.ecs.Register(s.health)
	s.ecs.Register(s.guards)
	s.ecs.Register(s.motors)
	s.ecs.Register(s.attacks)
	s.ecs.Register(s.brains)
	return s
}

func (s *State) Space() *physics.Space { return s.space }

// Spawn creates the entity and registers its capabilities. Returns false if
// the NetID already exists.
func (s *State) Spawn(spec SpawnSpec) (Refs, bool, error) {
	if r, ok := s.Resolve(spec.NetID); ok {
		return r, false, nil
	}
	a := spec.Archetype
	layer, err := physics.ParseLayer(a.Layer)
	if err != nil {
		return Refs{}, false, fmt.Errorf("spawn %s: %w", spec.NetID, err)
	}
	mask, err := physics.ParseMask(a.Targets)
	if err != nil {
		return Refs{}, false, fmt.Errorf("spawn %s: %w", spec.NetID, err)
	}

	e := s.ecs.Create()
	id := s.idents.Attach(e)
	id.NetID = spec.NetID
	id.Owner = spec.Owner
	id.Archetype = a
	id.Slot = spec.Slot
	id.Kind = KindPlayer
	if a.IsNpc() {
		id.Kind = KindNpc
	}

	h := s.health.Attach(e)
	h.MaxHP = a.MaxHP
	h.HP = a.MaxHP
	if spec.HP > 0 {
		h.HP = spec.HP
		if spec.HP > h.MaxHP {
			h.MaxHP = spec.HP
		}
	}

	s.guards.Attach(e)

	m := s.motors.Attach(e)
	m.Speed = a.MoveSpeed
	m.JumpSpeed = a.JumpSpeed
	m.Facing = 1

	at := s.attacks.Attach(e)
	at.Damage = a.Damage
	at.Range = a.AttackRange
	at.Cooldown = a.AttackCooldown
	at.Origin = *a.AttackOrigin
	at.Mask = mask
	at.KnockbackForce = a.KnockbackForce
	at.KnockbackDuration = a.KnockbackDuration
	at.Credited = make(map[ident.NetID]struct{})

	if a.IsNpc() {
		b := s.brains.Attach(e)
		b.State = NpcPatrol
		b.Strategy = ParseStrategy(a.Strategy)
		b.PatrolSpeed = a.PatrolSpeed
		b.ChaseSpeed = a.ChaseSpeed
		b.ChaseRange = a.ChaseRange
	}

	s.space.Add(&physics.Body{
		ID:      spec.NetID,
		Pos:     spec.Pos,
		Radius:  a.Radius,
		Layer:   layer,
		Gravity: !a.Flying,
	})

	s.byNet[spec.NetID] = e
	if spec.NetID > s.maxNetID {
		s.maxNetID = spec.NetID
	}
	r, _ := s.Resolve(spec.NetID)
	return r, true, nil
}

// Resolve looks up every component of a live entity.
func (s *State) Resolve(id ident.NetID) (Refs, bool) {
	e, ok := s.byNet[id]
	if !ok || !s.ecs.Alive(e) {
		return Refs{}, false
	}
	body, _ := s.space.Get(id)
	return Refs{
		Entity:   e,
		ID:       s.idents.Lookup(e),
		Health:   s.health.Lookup(e),
		Guard:    s.guards.Lookup(e),
		Motor:    s.motors.Lookup(e),
		Attacker: s.attacks.Lookup(e),
		Brain:    s.brains.Lookup(e),
		Body:     body,
	}, true
}

func (s *State) Exists(id ident.NetID) bool {
	_, ok := s.byNet[id]
	return ok
}

// OwnerOf returns the participant owning id.
func (s *State) OwnerOf(id ident.NetID) (ident.ParticipantID, bool) {
	r, ok := s.Resolve(id)
	if !ok {
		return 0, false
	}
	return r.ID.Owner, true
}

// Remove unlinks id immediately and queues its components for the end-of-tick
// flush. Removing an unknown id is a no-op.
func (s *State) Remove(id ident.NetID) bool {
	e, ok := s.byNet[id]
	if !ok {
		return false
	}
	delete(s.byNet, id)
	s.space.Remove(id)
	s.ecs.MarkForDestruction(e)
	return true
}

// Flush destroys entities queued by Remove.
func (s *State) Flush() int { return s.ecs.Flush() }

// IDs returns every live NetID in ascending order.
func (s *State) IDs() []ident.NetID {
	out := make([]ident.NetID, 0, len(s.byNet))
	for id := range s.byNet {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OwnedBy returns the NetIDs owned by p, ascending.
func (s *State) OwnedBy(p ident.ParticipantID) []ident.NetID {
	var out []ident.NetID
	for _, id := range s.IDs() {
		if r, ok := s.Resolve(id); ok && r.ID.Owner == p {
			out = append(out, id)
		}
	}
	return out
}

// Rehome transfers ownership of every NPC owned by from to to, returning the
// moved NetIDs.
func (s *State) Rehome(from, to ident.ParticipantID) []ident.NetID {
	var moved []ident.NetID
	for _, id := range s.OwnedBy(from) {
		r, _ := s.Resolve(id)
		if r.IsNpc() {
			r.ID.Owner = to
			moved = append(moved, id)
		}
	}
	return moved
}

// MaxNetID is the highest NetID ever seen by this participant.
func (s *State) MaxNetID() ident.NetID { return s.maxNetID }

func (s *State) Len() int { return len(s.byNet) }
