package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/net"
	"github.com/skirmish/server/internal/protocol"
)

// Relay drives a Room from a TCP server on a fixed tick.
type Relay struct {
	server     *net.Server
	store      *net.SessionStore
	room       *Room
	tick       time.Duration
	maxPerTick int
	closing    map[uint64]bool
	log        *zap.Logger
}

func New(server *net.Server, room *Room, tick time.Duration, maxPerTick int, log *zap.Logger) *Relay {
	return &Relay{
		server:     server,
		store:      net.NewSessionStore(),
		room:       room,
		tick:       tick,
		maxPerTick: maxPerTick,
		closing:    make(map[uint64]bool),
		log:        log,
	}
}

// Run pumps frames until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.store.ForEach(func(s *net.Session) { s.Close() })
			return nil
		case <-ticker.C:
			r.step()
		}
	}
}

func (r *Relay) step() {
accept:
	for {
		select {
		case sess := <-r.server.NewSessions():
			r.store.Add(sess)
		default:
			break accept
		}
	}

	var dead []*net.Session
	r.store.ForEach(func(sess *net.Session) {
		if r.closing[sess.ID] || sess.IsClosed() {
			dead = append(dead, sess)
			return
		}
	drain:
		for i := 0; i < r.maxPerTick; i++ {
			select {
			case frame := <-sess.InQueue:
				if err := r.room.Handle(sess, frame); err != nil {
					r.log.Debug("frame dispatch error", zap.Uint64("session", sess.ID), zap.Error(err))
				}
			default:
				break drain
			}
		}
		if sess.State() == protocol.StateClosing {
			// closed next tick so the Reject gets written first
			r.room.Leave(sess)
			r.closing[sess.ID] = true
		}
	})
	for _, sess := range dead {
		r.room.Leave(sess)
		sess.Close()
		r.store.Remove(sess.ID)
		delete(r.closing, sess.ID)
	}
	r.store.ForEach(func(sess *net.Session) { sess.FlushOutput() })
}
