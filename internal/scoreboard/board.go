// Package scoreboard keeps per-participant score and counters in memory
// and hands dirty rows to the stats flusher.
package scoreboard

import (
	"sort"
	"sync"

	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
)

// Row is one participant's standing.
type Row struct {
	Participant ident.ParticipantID
	Name        string
	Score       int32
	Counters    map[string]int32
}

func (r Row) clone() Row {
	c := make(map[string]int32, len(r.Counters))
	for k, v := range r.Counters {
		c[k] = v
	}
	r.Counters = c
	return r
}

// Board is written by the tick loop and read by the feed and persistence
// goroutines.
type Board struct {
	mu    sync.Mutex
	rows  map[ident.ParticipantID]*Row
	dirty map[ident.ParticipantID]bool
	bus   *event.Bus
}

func New(bus *event.Bus) *Board {
	return &Board{
		rows:  make(map[ident.ParticipantID]*Row),
		dirty: make(map[ident.ParticipantID]bool),
		bus:   bus,
	}
}

func (b *Board) row(p ident.ParticipantID) *Row {
	r, ok := b.rows[p]
	if !ok {
		r = &Row{Participant: p, Counters: make(map[string]int32)}
		b.rows[p] = r
	}
	return r
}

// SetName labels a participant for display and persistence.
func (b *Board) SetName(p ident.ParticipantID, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.row(p).Name = name
}

func (b *Board) AddScore(p ident.ParticipantID, amount int32) {
	b.mu.Lock()
	r := b.row(p)
	r.Score += amount
	score := r.Score
	b.dirty[p] = true
	b.mu.Unlock()
	event.Emit(b.bus, event.ScoreChanged{Participant: p, Score: score})
}

func (b *Board) SetCounter(p ident.ParticipantID, name string, value int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.row(p).Counters[name] = value
	b.dirty[p] = true
}

func (b *Board) Counter(p ident.ParticipantID, name string) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rows[p]; ok {
		return r.Counters[name]
	}
	return 0
}

func (b *Board) Score(p ident.ParticipantID) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rows[p]; ok {
		return r.Score
	}
	return 0
}

// Snapshot returns every row ordered by score, highest first.
func (b *Board) Snapshot() []Row {
	b.mu.Lock()
	out := make([]Row, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, r.clone())
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Participant < out[j].Participant
	})
	return out
}

// TakeDirty returns rows changed since the last call and clears the marks.
func (b *Board) TakeDirty() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Row, 0, len(b.dirty))
	for p := range b.dirty {
		out = append(out, b.rows[p].clone())
	}
	b.dirty = make(map[ident.ParticipantID]bool)
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}
