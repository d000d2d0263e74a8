package authority

import (
	"github.com/skirmish/server/internal/core/ident"
)

type InboundKind uint8

const (
	InboundDeliver InboundKind = iota + 1
	InboundJoined
	InboundLeft
)

// Inbound is one event read from a Link.
type Inbound struct {
	Kind InboundKind
	// sender for InboundDeliver; the member for InboundJoined/InboundLeft
	From        ident.ParticipantID
	Name        string
	Payload     []byte
	Coordinator ident.ParticipantID // set for InboundLeft
}

// Link carries encoded envelopes between participants. Send buffers; Flush
// hands the buffer to the transport. Frames from one sender to one
// receiver arrive in send order.
type Link interface {
	// Send queues payload for dest; protocol.Broadcast means every other
	// member. Unknown destinations are dropped.
	Send(dest ident.ParticipantID, payload []byte)
	Flush()
	// Poll returns everything received since the last call.
	Poll() []Inbound
}
