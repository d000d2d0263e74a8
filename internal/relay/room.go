// Package relay forwards routed frames between the participants of one
// room, authenticates joins and elects the coordinator. It never looks
// inside game payloads.
package relay

import (
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/protocol"
)

const maxNameRunes = 24

var (
	errBadPassword = errors.New("bad password")
	errRoomFull    = errors.New("room full")
	errBadName     = errors.New("bad name")
	errWrongRoom   = errors.New("unknown room")
)

// Conn is the relay's view of one connection.
type Conn interface {
	Send(data []byte)
	State() protocol.ConnState
	SetState(st protocol.ConnState)
	Close()
}

type member struct {
	id   ident.ParticipantID
	name string
	conn Conn
}

// RoomConfig sets the admission rules.
type RoomConfig struct {
	Name         string
	PasswordHash string // bcrypt; empty admits anyone
	MaxMembers   int
}

// Room tracks members in join order. The earliest live member is the
// coordinator. Owning loop only.
type Room struct {
	cfg      RoomConfig
	registry *protocol.Registry
	members  map[Conn]*member
	byID     map[ident.ParticipantID]*member
	order    []ident.ParticipantID
	next     ident.ParticipantID
	log      *zap.Logger
}

func NewRoom(cfg RoomConfig, log *zap.Logger) *Room {
	r := &Room{
		cfg:      cfg,
		registry: protocol.NewRegistry(log),
		members:  make(map[Conn]*member),
		byID:     make(map[ident.ParticipantID]*member),
		log:      log,
	}
	r.registry.Register(protocol.OpJoin, []protocol.ConnState{protocol.StateConnected}, r.handleJoin)
	r.registry.Register(protocol.OpRoute, []protocol.ConnState{protocol.StateJoined}, r.handleRoute)
	return r
}

// Handle dispatches one frame from conn.
func (r *Room) Handle(conn Conn, frame []byte) error {
	return r.registry.Dispatch(conn, conn.State(), frame)
}

// Coordinator returns the earliest-joined member, or zero when empty.
func (r *Room) Coordinator() ident.ParticipantID {
	if len(r.order) == 0 {
		return 0
	}
	return r.order[0]
}

func (r *Room) Len() int { return len(r.order) }

// Leave removes conn's member and announces the successor coordinator.
func (r *Room) Leave(conn Conn) {
	m, ok := r.members[conn]
	if !ok {
		return
	}
	delete(r.members, conn)
	delete(r.byID, m.id)
	for i, id := range r.order {
		if id == m.id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	coord := r.Coordinator()
	r.log.Info("member left",
		zap.Uint64("participant", uint64(m.id)),
		zap.Uint64("coordinator", uint64(coord)),
	)
	frame := protocol.MemberLeft{ID: m.id, Coordinator: coord}.Encode()
	for _, id := range r.order {
		r.byID[id].conn.Send(frame)
	}
}

func (r *Room) handleJoin(c any, rd *protocol.Reader) {
	conn := c.(Conn)
	var j protocol.Join
	if err := j.Decode(rd); err != nil {
		r.reject(conn, err)
		return
	}
	if err := r.admit(j); err != nil {
		r.reject(conn, err)
		return
	}
	name, err := normalizeName(j.Name)
	if err != nil {
		r.reject(conn, err)
		return
	}

	r.next++
	m := &member{id: r.next, name: name, conn: conn}
	joined := protocol.MemberJoined{Member: protocol.Member{ID: m.id, Name: name}}.Encode()
	welcome := protocol.Welcome{You: m.id}
	for _, id := range r.order {
		other := r.byID[id]
		other.conn.Send(joined)
		welcome.Members = append(welcome.Members, protocol.Member{ID: other.id, Name: other.name})
	}
	r.members[conn] = m
	r.byID[m.id] = m
	r.order = append(r.order, m.id)
	welcome.Coordinator = r.Coordinator()

	conn.SetState(protocol.StateJoined)
	conn.Send(welcome.Encode())
	r.log.Info("member joined",
		zap.Uint64("participant", uint64(m.id)),
		zap.String("name", name),
		zap.Uint64("coordinator", uint64(welcome.Coordinator)),
	)
}

func (r *Room) admit(j protocol.Join) error {
	if r.cfg.Name != "" && j.Room != r.cfg.Name {
		return errWrongRoom
	}
	if r.cfg.MaxMembers > 0 && len(r.order) >= r.cfg.MaxMembers {
		return errRoomFull
	}
	if r.cfg.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(r.cfg.PasswordHash), []byte(j.Password)); err != nil {
			return errBadPassword
		}
	}
	return nil
}

func (r *Room) reject(conn Conn, err error) {
	r.log.Debug("join rejected", zap.Error(err))
	conn.Send(protocol.Reject{Reason: err.Error()}.Encode())
	conn.SetState(protocol.StateClosing)
}

func (r *Room) handleRoute(c any, rd *protocol.Reader) {
	conn := c.(Conn)
	from, ok := r.members[conn]
	if !ok {
		return
	}
	var rt protocol.Route
	if err := rt.Decode(rd); err != nil {
		r.log.Debug("bad route frame", zap.Uint64("participant", uint64(from.id)), zap.Error(err))
		return
	}
	frame := protocol.Deliver{From: from.id, Payload: rt.Payload}.Encode()
	if rt.Dest == protocol.Broadcast {
		for _, id := range r.order {
			if id != from.id {
				r.byID[id].conn.Send(frame)
			}
		}
		return
	}
	if to, ok := r.byID[rt.Dest]; ok {
		to.conn.Send(frame)
	}
}

// normalizeName folds full-width forms, applies NFC and trims space.
func normalizeName(s string) (string, error) {
	s = strings.TrimSpace(norm.NFC.String(width.Fold.String(s)))
	if s == "" || utf8.RuneCountInString(s) > maxNameRunes {
		return "", errBadName
	}
	return s, nil
}
