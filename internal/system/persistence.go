package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	coresys "github.com/skirmish/server/internal/core/system"
	"github.com/skirmish/server/internal/persist"
	"github.com/skirmish/server/internal/scoreboard"
)

// StatsSink stores scoreboard rows; *persist.StatsRepo implements it.
type StatsSink interface {
	SaveBoard(ctx context.Context, rows []scoreboard.Row) error
}

// EventSink stores match log entries; *persist.MatchLogRepo implements it.
type EventSink interface {
	Append(ctx context.Context, events []persist.MatchEvent) error
}

// StatsPersistSystem periodically saves changed scoreboard rows and the
// buffered match log. Phase 5 (Persist).
type StatsPersistSystem struct {
	board    *scoreboard.Board
	stats    StatsSink
	events   EventSink
	local    ident.ParticipantID
	pending  []persist.MatchEvent
	interval time.Duration
	elapsed  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewStatsPersistSystem(board *scoreboard.Board, stats StatsSink, events EventSink, local ident.ParticipantID, interval time.Duration, log *zap.Logger) *StatsPersistSystem {
	return &StatsPersistSystem{
		board:    board,
		stats:    stats,
		events:   events,
		local:    local,
		interval: interval,
		now:      time.Now,
		log:      log,
	}
}

func (s *StatsPersistSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Attach records deaths and this participant's spawns from the cue bus.
// Deaths are only emitted on the owner, so every entry is logged once.
func (s *StatsPersistSystem) Attach(bus *event.Bus) {
	event.Subscribe(bus, func(c event.EntityDied) {
		s.pending = append(s.pending, persist.MatchEvent{
			Kind: persist.EventDeath, NetID: int32(c.NetID), Other: int32(c.Attacker), At: s.now(),
		})
	})
	event.Subscribe(bus, func(c event.EntitySpawned) {
		if c.Owner != s.local {
			return
		}
		s.pending = append(s.pending, persist.MatchEvent{
			Kind: persist.EventSpawn, NetID: int32(c.NetID), Participant: uint64(c.Owner), At: s.now(),
		})
	})
}

func (s *StatsPersistSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(ctx)
}

// Flush saves everything pending now. Called on shutdown as well.
func (s *StatsPersistSystem) Flush(ctx context.Context) {
	if rows := s.board.TakeDirty(); len(rows) > 0 && s.stats != nil {
		if err := s.stats.SaveBoard(ctx, rows); err != nil {
			s.log.Error("stats save failed", zap.Int("rows", len(rows)), zap.Error(err))
		}
	}
	if len(s.pending) > 0 && s.events != nil {
		if err := s.events.Append(ctx, s.pending); err != nil {
			s.log.Error("match log append failed", zap.Int("events", len(s.pending)), zap.Error(err))
			return
		}
	}
	s.pending = nil
}
