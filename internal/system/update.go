package system

import (
	"time"

	"github.com/skirmish/server/internal/core/sched"
	coresys "github.com/skirmish/server/internal/core/system"
)

// GuardTicker advances defense cooldowns; *combat.Engine implements it.
type GuardTicker interface {
	TickGuards()
}

// GuardSystem runs defense cooldowns. Phase 2 (Update).
type GuardSystem struct {
	guards GuardTicker
}

func NewGuardSystem(g GuardTicker) *GuardSystem { return &GuardSystem{guards: g} }

func (s *GuardSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *GuardSystem) Update(_ time.Duration) { s.guards.TickGuards() }

// Thinker evaluates NPC decisions; *npc.Brain implements it.
type Thinker interface {
	Tick()
}

// NpcAISystem drives coordinator-owned NPCs. Phase 2 (Update).
type NpcAISystem struct {
	brain Thinker
}

func NewNpcAISystem(b Thinker) *NpcAISystem { return &NpcAISystem{brain: b} }

func (s *NpcAISystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *NpcAISystem) Update(_ time.Duration) { s.brain.Tick() }

// SchedulerSystem fires due deadline entries. Phase 3 (PostUpdate).
type SchedulerSystem struct {
	sched *sched.Scheduler
	now   func() time.Time
}

func NewSchedulerSystem(sc *sched.Scheduler, now func() time.Time) *SchedulerSystem {
	if now == nil {
		now = time.Now
	}
	return &SchedulerSystem{sched: sc, now: now}
}

func (s *SchedulerSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SchedulerSystem) Update(_ time.Duration) { s.sched.Process(s.now()) }
