package protocol

import (
	"errors"
	"fmt"

	"github.com/skirmish/server/internal/core/ident"
)

var ErrUnknownOp = errors.New("unknown opcode")

// AddressMode narrows which participants receive an invocation.
type AddressMode uint8

const (
	ModeAll AddressMode = iota
	ModeOwner
	ModeCoordinator
)

func (m AddressMode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeOwner:
		return "owner"
	case ModeCoordinator:
		return "coordinator"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Envelope is one routed invocation: a message aimed at an entity.
type Envelope struct {
	Sender ident.ParticipantID
	Target ident.NetID
	Mode   AddressMode
	Msg    Message
}

// EncodeEnvelope lays out [op][sender Q][target D][mode C][payload].
func EncodeEnvelope(e Envelope) []byte {
	w := NewWriterWithOpcode(byte(e.Msg.Op()))
	w.WriteQ(uint64(e.Sender))
	w.WriteD(int32(e.Target))
	w.WriteC(byte(e.Mode))
	e.Msg.encode(w)
	return w.Bytes()
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrShortFrame
	}
	r := NewReader(b)
	e := Envelope{
		Sender: ident.ParticipantID(r.ReadQ()),
		Target: ident.NetID(r.ReadD()),
		Mode:   AddressMode(r.ReadC()),
	}
	msg, err := decodeMessage(Op(r.Opcode()), r)
	if err != nil {
		return Envelope{}, err
	}
	if err := r.Err(); err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", Op(r.Opcode()), err)
	}
	e.Msg = msg
	return e, nil
}
