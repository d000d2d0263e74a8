package system

import (
	"time"

	coresys "github.com/skirmish/server/internal/core/system"
	"github.com/skirmish/server/internal/feed"
)

// Controller applies local player input.
type Controller interface {
	Move(x float64)
	Jump()
	Attack()
	Defend(active bool)
}

// ControlSystem drains presentation commands without blocking.
// Phase 0 (Input).
type ControlSystem struct {
	commands <-chan feed.Command
	ctl      Controller
	max      int
}

func NewControlSystem(commands <-chan feed.Command, ctl Controller, maxPerTick int) *ControlSystem {
	if maxPerTick <= 0 {
		maxPerTick = 32
	}
	return &ControlSystem{commands: commands, ctl: ctl, max: maxPerTick}
}

func (s *ControlSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ControlSystem) Update(_ time.Duration) {
	for i := 0; i < s.max; i++ {
		select {
		case c := <-s.commands:
			s.apply(c)
		default:
			return
		}
	}
}

func (s *ControlSystem) apply(c feed.Command) {
	switch c.Action {
	case feed.ActionMove:
		s.ctl.Move(c.X)
	case feed.ActionJump:
		s.ctl.Jump()
	case feed.ActionAttack:
		s.ctl.Attack()
	case feed.ActionDefend:
		s.ctl.Defend(c.Active)
	}
}
