package protocol

import (
	"github.com/skirmish/server/internal/core/ident"
)

// Relay control opcodes.
const (
	OpJoin Op = 0x80 + iota
	OpWelcome
	OpMemberJoined
	OpMemberLeft
	OpRoute
	OpDeliver
	OpReject
)

// Broadcast as a Route destination means every other member.
const Broadcast ident.ParticipantID = 0

type Member struct {
	ID   ident.ParticipantID
	Name string
}

// Join is the first frame a participant sends to the relay.
type Join struct {
	Room     string
	Name     string
	Password string
}

// Welcome answers an accepted Join.
type Welcome struct {
	You         ident.ParticipantID
	Coordinator ident.ParticipantID
	Members     []Member
}

type MemberJoined struct {
	Member Member
}

// MemberLeft announces a departure and the coordinator after it.
type MemberLeft struct {
	ID          ident.ParticipantID
	Coordinator ident.ParticipantID
}

// Route asks the relay to forward an encoded envelope.
type Route struct {
	Dest    ident.ParticipantID
	Payload []byte
}

// Deliver carries a routed envelope to its destination.
type Deliver struct {
	From    ident.ParticipantID
	Payload []byte
}

type Reject struct {
	Reason string
}

func (m Join) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpJoin))
	w.WriteS(m.Room)
	w.WriteS(m.Name)
	w.WriteS(m.Password)
	return w.Bytes()
}

func (m *Join) Decode(r *Reader) error {
	m.Room = r.ReadS()
	m.Name = r.ReadS()
	m.Password = r.ReadS()
	return r.Err()
}

func (m Welcome) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpWelcome))
	w.WriteQ(uint64(m.You))
	w.WriteQ(uint64(m.Coordinator))
	w.WriteH(uint16(len(m.Members)))
	for _, mem := range m.Members {
		w.WriteQ(uint64(mem.ID))
		w.WriteS(mem.Name)
	}
	return w.Bytes()
}

func (m *Welcome) Decode(r *Reader) error {
	m.You = ident.ParticipantID(r.ReadQ())
	m.Coordinator = ident.ParticipantID(r.ReadQ())
	n := int(r.ReadH())
	m.Members = make([]Member, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		id := ident.ParticipantID(r.ReadQ())
		m.Members = append(m.Members, Member{ID: id, Name: r.ReadS()})
	}
	return r.Err()
}

func (m MemberJoined) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpMemberJoined))
	w.WriteQ(uint64(m.Member.ID))
	w.WriteS(m.Member.Name)
	return w.Bytes()
}

func (m *MemberJoined) Decode(r *Reader) error {
	m.Member.ID = ident.ParticipantID(r.ReadQ())
	m.Member.Name = r.ReadS()
	return r.Err()
}

func (m MemberLeft) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpMemberLeft))
	w.WriteQ(uint64(m.ID))
	w.WriteQ(uint64(m.Coordinator))
	return w.Bytes()
}

func (m *MemberLeft) Decode(r *Reader) error {
	m.ID = ident.ParticipantID(r.ReadQ())
	m.Coordinator = ident.ParticipantID(r.ReadQ())
	return r.Err()
}

func (m Route) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpRoute))
	w.WriteQ(uint64(m.Dest))
	w.WriteBlob(m.Payload)
	return w.Bytes()
}

func (m *Route) Decode(r *Reader) error {
	m.Dest = ident.ParticipantID(r.ReadQ())
	m.Payload = r.ReadBlob()
	return r.Err()
}

func (m Deliver) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpDeliver))
	w.WriteQ(uint64(m.From))
	w.WriteBlob(m.Payload)
	return w.Bytes()
}

func (m *Deliver) Decode(r *Reader) error {
	m.From = ident.ParticipantID(r.ReadQ())
	m.Payload = r.ReadBlob()
	return r.Err()
}

func (m Reject) Encode() []byte {
	w := NewWriterWithOpcode(byte(OpReject))
	w.WriteS(m.Reason)
	return w.Bytes()
}

func (m *Reject) Decode(r *Reader) error {
	m.Reason = r.ReadS()
	return r.Err()
}
