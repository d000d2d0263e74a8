package system

import "time"

// Phase orders systems within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain relay deliveries and membership changes
	PhasePreUpdate               // 1: dispatch last tick's presentation cues
	PhaseUpdate                  // 2: defense timers, NPC decisions
	PhasePostUpdate              // 3: scheduled deadlines, motion integration
	PhaseOutput                  // 4: flush outbound frames
	PhasePersist                 // 5: stats flush
	PhaseCleanup                 // 6: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
