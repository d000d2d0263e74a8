package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/ident"
	coresys "github.com/skirmish/server/internal/core/system"
)

// Membership receives join and leave notices from the relay.
type Membership interface {
	MemberJoined(p ident.ParticipantID, name string)
	MemberLeft(p, coordinator ident.ParticipantID)
}

// InputSystem drains the relay link and dispatches deliveries through the
// router. Phase 0 (Input).
type InputSystem struct {
	link    authority.Link
	router  *authority.Router
	members Membership
	log     *zap.Logger
}

func NewInputSystem(link authority.Link, router *authority.Router, members Membership, log *zap.Logger) *InputSystem {
	return &InputSystem{link: link, router: router, members: members, log: log}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for _, in := range s.link.Poll() {
		switch in.Kind {
		case authority.InboundDeliver:
			s.router.Receive(in.From, in.Payload)
		case authority.InboundJoined:
			s.members.MemberJoined(in.From, in.Name)
		case authority.InboundLeft:
			s.members.MemberLeft(in.From, in.Coordinator)
		default:
			s.log.Debug("unknown inbound kind", zap.Uint8("kind", uint8(in.Kind)))
		}
	}
}
