package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/protocol"
)

type owners map[ident.NetID]ident.ParticipantID

func (o owners) OwnerOf(id ident.NetID) (ident.ParticipantID, bool) {
	p, ok := o[id]
	return p, ok
}

type peer struct {
	link   *LoopLink
	router *Router
	got    []protocol.Envelope
}

func (p *peer) pump() {
	for _, in := range p.link.Poll() {
		if in.Kind == InboundDeliver {
			p.router.Receive(in.From, in.Payload)
		}
	}
}

func newPeers(t *testing.T, n int, table owners) (*Hub, []*peer) {
	t.Helper()
	hub := NewHub()
	links := make([]*LoopLink, n)
	for i := range links {
		links[i] = hub.Join("p")
	}
	peers := make([]*peer, n)
	for i, l := range links {
		sess := NewSession(l.ID(), hub.Coordinator(), hub.Members(), table)
		p := &peer{link: l, router: NewRouter(sess, l, zap.NewNop())}
		p.router.SetHandler(func(env protocol.Envelope) { p.got = append(p.got, env) })
		peers[i] = p
		_ = l.Poll()
	}
	return hub, peers
}

func deliverAll(peers []*peer) {
	for _, p := range peers {
		p.link.Flush()
	}
	for _, p := range peers {
		p.pump()
	}
}

func TestInvokeAllRunsLocallyAndRemotely(t *testing.T) {
	_, peers := newPeers(t, 3, owners{})
	peers[1].router.Invoke(5, protocol.Defend{Active: true}, protocol.ModeAll)
	require.Len(t, peers[1].got, 1, "local copy runs immediately")
	assert.Empty(t, peers[0].got)

	deliverAll(peers)
	for i, p := range peers {
		require.Len(t, p.got, 1, "peer %d", i)
		assert.Equal(t, ident.ParticipantID(2), p.got[0].Sender)
		assert.Equal(t, protocol.Defend{Active: true}, p.got[0].Msg)
	}
}

func TestOwnerModeReachesOnlyOwner(t *testing.T) {
	_, peers := newPeers(t, 3, owners{7: 3})
	peers[0].router.Invoke(7, protocol.Damage{Amount: 4, Attacker: 1}, protocol.ModeOwner)
	deliverAll(peers)

	assert.Empty(t, peers[0].got)
	assert.Empty(t, peers[1].got)
	require.Len(t, peers[2].got, 1)
	assert.Equal(t, ident.NetID(7), peers[2].got[0].Target)
}

func TestOwnerModeForLocalEntityStaysLocal(t *testing.T) {
	hub, peers := newPeers(t, 2, owners{7: 1})
	sent := 0
	hub.OnSend = func(_, _ ident.ParticipantID, _ []byte) { sent++ }
	peers[0].router.Invoke(7, protocol.Heal{Amount: 1}, protocol.ModeOwner)
	deliverAll(peers)
	assert.Len(t, peers[0].got, 1)
	assert.Zero(t, sent)
}

func TestCoordinatorMode(t *testing.T) {
	_, peers := newPeers(t, 2, owners{})
	require.True(t, peers[0].router.Session().IsCoordinator())
	peers[1].router.Invoke(9, protocol.Knockback{Force: 3}, protocol.ModeCoordinator)
	deliverAll(peers)
	assert.Len(t, peers[0].got, 1)
	assert.Empty(t, peers[1].got)
}

func TestStaleAndDepartedTargetsAreDropped(t *testing.T) {
	hub, peers := newPeers(t, 3, owners{8: 3})
	sent := 0
	hub.OnSend = func(_, _ ident.ParticipantID, _ []byte) { sent++ }

	peers[0].router.Invoke(99, protocol.Damage{Amount: 1}, protocol.ModeOwner)
	peers[0].router.Session().RemoveMember(3, 0)
	peers[0].router.Invoke(8, protocol.Damage{Amount: 1}, protocol.ModeOwner)
	deliverAll(peers)

	assert.Zero(t, sent)
	for _, p := range peers {
		assert.Empty(t, p.got)
	}
}

func TestReceiveSurvivesGarbageAndPanics(t *testing.T) {
	_, peers := newPeers(t, 1, owners{})
	r := peers[0].router
	r.Receive(2, []byte{0xee})
	assert.Empty(t, peers[0].got)

	r.SetHandler(func(protocol.Envelope) { panic("bad") })
	assert.NotPanics(t, func() { r.Invoke(1, protocol.Destroy{}, protocol.ModeAll) })
}

func TestHubReelectsOnLeave(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	c := hub.Join("c")
	assert.Equal(t, a.ID(), hub.Coordinator())
	_ = b.Poll()

	hub.Leave(a.ID())
	assert.Equal(t, b.ID(), hub.Coordinator())
	in := c.Poll()
	require.NotEmpty(t, in)
	last := in[len(in)-1]
	assert.Equal(t, InboundLeft, last.Kind)
	assert.Equal(t, a.ID(), last.From)
	assert.Equal(t, b.ID(), last.Coordinator)
}

func TestSessionMembership(t *testing.T) {
	s := NewSession(2, 1, []ident.ParticipantID{1, 3}, owners{4: 2})
	assert.True(t, s.IsOwner(4))
	assert.False(t, s.IsOwner(5))
	assert.False(t, s.IsCoordinator())
	assert.Equal(t, []ident.ParticipantID{1, 2, 3}, s.Members())

	s.RemoveMember(1, 2)
	assert.True(t, s.IsCoordinator())
	assert.False(t, s.HasMember(1))
}
