package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type probe struct {
	phase Phase
	name  string
	log   *[]string
}

func (p probe) Phase() Phase            { return p.phase }
func (p probe) Update(_ time.Duration) { *p.log = append(*p.log, p.name) }

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(
		probe{PhaseCleanup, "cleanup", &log},
		probe{PhaseUpdate, "npc", &log},
		probe{PhaseInput, "input", &log},
		probe{PhaseUpdate, "guard", &log},
	)
	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "npc", "guard", "cleanup"}, log)

	log = log[:0]
	r.Register(probe{PhaseOutput, "output", &log})
	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "npc", "guard", "output", "cleanup"}, log, "late registration is re-sorted")
}
