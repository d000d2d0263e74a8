package authority

import (
	"sync"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/protocol"
)

// Hub is an in-memory relay. Members are elected coordinator in join
// order, the same rule the TCP relay applies.
type Hub struct {
	mu    sync.Mutex
	links map[ident.ParticipantID]*LoopLink
	order []ident.ParticipantID
	next  ident.ParticipantID

	// OnSend, if set, observes every routed frame.
	OnSend func(from, dest ident.ParticipantID, payload []byte)
}

func NewHub() *Hub {
	return &Hub{links: make(map[ident.ParticipantID]*LoopLink)}
}

// Join adds a participant and announces it to the others.
func (h *Hub) Join(name string) *LoopLink {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	l := &LoopLink{hub: h, id: h.next}
	for _, p := range h.order {
		h.links[p].inbox = append(h.links[p].inbox, Inbound{Kind: InboundJoined, From: l.id, Name: name})
	}
	h.links[l.id] = l
	h.order = append(h.order, l.id)
	return l
}

// Leave removes p and announces the coordinator after its departure.
func (h *Hub) Leave(p ident.ParticipantID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.links[p]; !ok {
		return
	}
	delete(h.links, p)
	for i, id := range h.order {
		if id == p {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	coord := h.coordinatorLocked()
	for _, id := range h.order {
		h.links[id].inbox = append(h.links[id].inbox, Inbound{Kind: InboundLeft, From: p, Coordinator: coord})
	}
}

func (h *Hub) Coordinator() ident.ParticipantID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.coordinatorLocked()
}

func (h *Hub) coordinatorLocked() ident.ParticipantID {
	if len(h.order) == 0 {
		return 0
	}
	return h.order[0]
}

// Members lists participants in join order.
func (h *Hub) Members() []ident.ParticipantID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ident.ParticipantID(nil), h.order...)
}

func (h *Hub) route(from ident.ParticipantID, out []outFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range out {
		if h.OnSend != nil {
			h.OnSend(from, f.dest, f.payload)
		}
		if f.dest == protocol.Broadcast {
			for _, id := range h.order {
				if id != from {
					h.links[id].inbox = append(h.links[id].inbox, Inbound{Kind: InboundDeliver, From: from, Payload: f.payload})
				}
			}
			continue
		}
		if l, ok := h.links[f.dest]; ok {
			l.inbox = append(l.inbox, Inbound{Kind: InboundDeliver, From: from, Payload: f.payload})
		}
	}
}

type outFrame struct {
	dest    ident.ParticipantID
	payload []byte
}

// LoopLink is one participant's end of a Hub.
type LoopLink struct {
	hub    *Hub
	id     ident.ParticipantID
	outbox []outFrame
	inbox  []Inbound // guarded by hub.mu
}

func (l *LoopLink) ID() ident.ParticipantID { return l.id }

func (l *LoopLink) Send(dest ident.ParticipantID, payload []byte) {
	l.outbox = append(l.outbox, outFrame{dest: dest, payload: payload})
}

func (l *LoopLink) Flush() {
	if len(l.outbox) == 0 {
		return
	}
	l.hub.route(l.id, l.outbox)
	l.outbox = nil
}

func (l *LoopLink) Poll() []Inbound {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	in := l.inbox
	l.inbox = nil
	return in
}
