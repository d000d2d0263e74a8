package net

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/protocol"
)

var (
	ErrNotConnected = errors.New("not connected to relay")
	ErrRejected     = errors.New("join rejected")
)

// ClientConfig sizes a relay connection.
type ClientConfig struct {
	InQueueSize  int
	OutQueueSize int
	MaxPerTick   int
}

// Client is a participant's connection to the relay. It implements
// authority.Link; Send and Flush are called from the tick loop.
type Client struct {
	sess       *Session
	maxPerTick int
	log        *zap.Logger
}

var _ authority.Link = (*Client)(nil)

// Dial connects to the relay and completes the join handshake.
func Dial(ctx context.Context, addr string, join protocol.Join, cfg ClientConfig, log *zap.Logger) (*Client, protocol.Welcome, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, protocol.Welcome{}, fmt.Errorf("dial relay %s: %w", addr, err)
	}
	sess := NewSession(conn, 0, cfg.InQueueSize, cfg.OutQueueSize, 0, log)
	sess.Start()
	sess.Send(join.Encode())
	sess.FlushOutput()

	select {
	case frame := <-sess.InQueue:
		r := protocol.NewReader(frame)
		switch protocol.Op(r.Opcode()) {
		case protocol.OpWelcome:
			var w protocol.Welcome
			if err := w.Decode(r); err != nil {
				sess.Close()
				return nil, protocol.Welcome{}, fmt.Errorf("decode welcome: %w", err)
			}
			sess.SetState(protocol.StateJoined)
			c := &Client{sess: sess, maxPerTick: cfg.MaxPerTick, log: log.With(zap.Uint64("participant", uint64(w.You)))}
			return c, w, nil
		case protocol.OpReject:
			var rej protocol.Reject
			_ = rej.Decode(r)
			sess.Close()
			return nil, protocol.Welcome{}, fmt.Errorf("%w: %s", ErrRejected, rej.Reason)
		default:
			sess.Close()
			return nil, protocol.Welcome{}, fmt.Errorf("unexpected %s during join", protocol.Op(r.Opcode()))
		}
	case <-sess.Done():
		return nil, protocol.Welcome{}, ErrNotConnected
	case <-ctx.Done():
		sess.Close()
		return nil, protocol.Welcome{}, ctx.Err()
	}
}

func (c *Client) Send(dest ident.ParticipantID, payload []byte) {
	c.sess.Send(protocol.Route{Dest: dest, Payload: payload}.Encode())
}

func (c *Client) Flush() { c.sess.FlushOutput() }

// Poll drains up to MaxPerTick frames from the relay.
func (c *Client) Poll() []authority.Inbound {
	var out []authority.Inbound
	for i := 0; c.maxPerTick <= 0 || i < c.maxPerTick; i++ {
		select {
		case frame := <-c.sess.InQueue:
			if in, ok := c.decode(frame); ok {
				out = append(out, in)
			}
		default:
			return out
		}
	}
	return out
}

func (c *Client) decode(frame []byte) (authority.Inbound, bool) {
	r := protocol.NewReader(frame)
	switch protocol.Op(r.Opcode()) {
	case protocol.OpDeliver:
		var m protocol.Deliver
		if err := m.Decode(r); err != nil {
			break
		}
		return authority.Inbound{Kind: authority.InboundDeliver, From: m.From, Payload: m.Payload}, true
	case protocol.OpMemberJoined:
		var m protocol.MemberJoined
		if err := m.Decode(r); err != nil {
			break
		}
		return authority.Inbound{Kind: authority.InboundJoined, From: m.Member.ID, Name: m.Member.Name}, true
	case protocol.OpMemberLeft:
		var m protocol.MemberLeft
		if err := m.Decode(r); err != nil {
			break
		}
		return authority.Inbound{Kind: authority.InboundLeft, From: m.ID, Coordinator: m.Coordinator}, true
	}
	c.log.Debug("ignored relay frame", zap.Stringer("op", protocol.Op(r.Opcode())), zap.Int("len", len(frame)))
	return authority.Inbound{}, false
}

// Closed is closed when the relay connection drops.
func (c *Client) Closed() <-chan struct{} { return c.sess.Done() }

func (c *Client) Close() {
	c.sess.FlushOutput()
	c.sess.Close()
}
