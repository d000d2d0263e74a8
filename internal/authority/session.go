// Package authority decides which participant may mutate an entity and
// routes invocations to the owner, the coordinator, or everyone.
package authority

import (
	"sort"

	"github.com/skirmish/server/internal/core/ident"
)

// OwnerLookup resolves the participant owning an entity.
type OwnerLookup interface {
	OwnerOf(id ident.NetID) (ident.ParticipantID, bool)
}

// Session is the authority context of one participant: who we are, who
// coordinates, and who is connected. Created at session start and passed
// to every component that needs an authority check.
type Session struct {
	local       ident.ParticipantID
	coordinator ident.ParticipantID
	members     map[ident.ParticipantID]struct{}
	owners      OwnerLookup
}

func NewSession(local, coordinator ident.ParticipantID, members []ident.ParticipantID, owners OwnerLookup) *Session {
	s := &Session{
		local:       local,
		coordinator: coordinator,
		members:     make(map[ident.ParticipantID]struct{}, len(members)+1),
		owners:      owners,
	}
	s.members[local] = struct{}{}
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return s
}

func (s *Session) Local() ident.ParticipantID       { return s.local }
func (s *Session) Coordinator() ident.ParticipantID { return s.coordinator }
func (s *Session) IsCoordinator() bool              { return s.local == s.coordinator }

// IsOwner reports whether this participant may mutate id. Unknown entities
// are owned by nobody.
func (s *Session) IsOwner(id ident.NetID) bool {
	owner, ok := s.owners.OwnerOf(id)
	return ok && owner == s.local
}

// OwnerOf exposes the lookup for routing.
func (s *Session) OwnerOf(id ident.NetID) (ident.ParticipantID, bool) {
	return s.owners.OwnerOf(id)
}

func (s *Session) HasMember(p ident.ParticipantID) bool {
	_, ok := s.members[p]
	return ok
}

// Members returns connected participants in ascending order.
func (s *Session) Members() []ident.ParticipantID {
	out := make([]ident.ParticipantID, 0, len(s.members))
	for p := range s.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Session) AddMember(p ident.ParticipantID) {
	s.members[p] = struct{}{}
}

// RemoveMember drops p and applies the coordinator announced with its
// departure.
func (s *Session) RemoveMember(p, coordinator ident.ParticipantID) {
	delete(s.members, p)
	if !coordinator.IsZero() {
		s.coordinator = coordinator
	}
}
