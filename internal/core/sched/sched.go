// Package sched runs deferred actions against wall-clock deadlines, checked
// once per tick. Every entry names the entity it acts on; if that entity is
// gone when the deadline fires, the entry is dropped without running.
package sched

import (
	"container/heap"
	"time"

	"github.com/skirmish/server/internal/core/ident"
)

// Tag names what a deferred action does. Entries are cancelled by
// (target, tag).
type Tag uint8

const (
	TagKnockbackRecover Tag = iota + 1
	TagStunRecover
	TagPostAttack
	TagRespawn
)

func (t Tag) String() string {
	switch t {
	case TagKnockbackRecover:
		return "knockback-recover"
	case TagStunRecover:
		return "stun-recover"
	case TagPostAttack:
		return "post-attack"
	case TagRespawn:
		return "respawn"
	default:
		return "unknown"
	}
}

// NoTarget marks session-scoped entries (e.g. respawn of an entity that no
// longer exists). They always run.
const NoTarget ident.NetID = 0

type entry struct {
	due       time.Time
	seq       uint64
	target    ident.NetID
	tag       Tag
	run       func()
	cancelled bool
}

type queue []*entry

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any) { *q = append(*q, x.(*entry)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler is owned by the game loop; not safe for concurrent use.
type Scheduler struct {
	q     queue
	seq   uint64
	alive func(ident.NetID) bool
}

// New creates a scheduler. alive reports whether an entity still exists.
func New(alive func(ident.NetID) bool) *Scheduler {
	return &Scheduler{alive: alive}
}

// At schedules run at due for target. A pending entry with the same target
// and tag is replaced; NoTarget entries accumulate.
func (s *Scheduler) At(due time.Time, target ident.NetID, tag Tag, run func()) {
	if target != NoTarget {
		s.Cancel(target, tag)
	}
	s.seq++
	heap.Push(&s.q, &entry{due: due, seq: s.seq, target: target, tag: tag, run: run})
}

// Cancel drops a pending entry. Returns true if one was pending.
func (s *Scheduler) Cancel(target ident.NetID, tag Tag) bool {
	found := false
	for _, e := range s.q {
		if !e.cancelled && e.target == target && e.tag == tag {
			e.cancelled = true
			found = true
		}
	}
	return found
}

// Pending reports whether a live entry exists for (target, tag).
func (s *Scheduler) Pending(target ident.NetID, tag Tag) bool {
	for _, e := range s.q {
		if !e.cancelled && e.target == target && e.tag == tag {
			return true
		}
	}
	return false
}

// Len counts live entries.
func (s *Scheduler) Len() int {
	n := 0
	for _, e := range s.q {
		if !e.cancelled {
			n++
		}
	}
	return n
}

// Process runs every entry due at or before now, in deadline order. Entries
// scheduled by a running action are eligible in the same call if already due.
// Returns how many actions ran.
func (s *Scheduler) Process(now time.Time) int {
	ran := 0
	for s.q.Len() > 0 {
		e := s.q[0]
		if e.due.After(now) {
			break
		}
		heap.Pop(&s.q)
		if e.cancelled {
			continue
		}
		if e.target != NoTarget && s.alive != nil && !s.alive(e.target) {
			continue
		}
		e.run()
		ran++
	}
	return ran
}
