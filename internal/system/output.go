package system

import (
	"time"

	"github.com/skirmish/server/internal/authority"
	coresys "github.com/skirmish/server/internal/core/system"
)

// OutputSystem hands the tick's buffered frames to the transport.
// Phase 4 (Output).
type OutputSystem struct {
	link authority.Link
}

func NewOutputSystem(link authority.Link) *OutputSystem {
	return &OutputSystem{link: link}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) { s.link.Flush() }
