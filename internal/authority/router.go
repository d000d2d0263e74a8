package authority

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/protocol"
)

// HandlerFunc executes one invocation on this participant.
type HandlerFunc func(env protocol.Envelope)

// Router delivers invocations. Addressing narrows delivery only; handlers
// still check ownership before mutating.
type Router struct {
	sess    *Session
	link    Link
	handler HandlerFunc
	log     *zap.Logger
}

func NewRouter(sess *Session, link Link, log *zap.Logger) *Router {
	return &Router{sess: sess, link: link, log: log}
}

// SetHandler installs the dispatch switch. Must be called before Invoke.
func (r *Router) SetHandler(fn HandlerFunc) { r.handler = fn }

func (r *Router) Session() *Session { return r.sess }

// Invoke sends msg about target to the participants selected by mode. When
// this participant is in the destination set the handler runs immediately.
// A stale target or a departed destination drops the call.
func (r *Router) Invoke(target ident.NetID, msg protocol.Message, mode protocol.AddressMode) {
	env := protocol.Envelope{Sender: r.sess.Local(), Target: target, Mode: mode, Msg: msg}

	var dest ident.ParticipantID
	switch mode {
	case protocol.ModeAll:
		r.link.Send(protocol.Broadcast, protocol.EncodeEnvelope(env))
		r.dispatch(env)
		return
	case protocol.ModeOwner:
		owner, ok := r.sess.OwnerOf(target)
		if !ok {
			r.log.Debug("invoke dropped: unknown target",
				zap.Stringer("op", msg.Op()), zap.Int32("net_id", int32(target)))
			return
		}
		dest = owner
	case protocol.ModeCoordinator:
		dest = r.sess.Coordinator()
	default:
		r.log.Warn("invoke dropped: bad address mode", zap.Stringer("mode", mode))
		return
	}

	if dest == r.sess.Local() {
		r.dispatch(env)
		return
	}
	if !r.sess.HasMember(dest) {
		r.log.Debug("invoke dropped: destination gone",
			zap.Stringer("op", msg.Op()), zap.Uint64("participant", uint64(dest)))
		return
	}
	r.link.Send(dest, protocol.EncodeEnvelope(env))
}

// Receive decodes one delivered frame and dispatches it. The relay's
// sender overrides whatever the envelope claims.
func (r *Router) Receive(from ident.ParticipantID, payload []byte) {
	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		r.log.Debug("undecodable frame", zap.Uint64("participant", uint64(from)), zap.Error(err))
		return
	}
	env.Sender = from
	r.dispatch(env)
}

func (r *Router) dispatch(env protocol.Envelope) {
	if r.handler == nil {
		return
	}
	if err := r.safeCall(env); err != nil {
		r.log.Error("handler failed", zap.Error(err))
	}
}

// safeCall runs the handler with panic recovery so one bad message cannot
// stop the tick loop.
func (r *Router) safeCall(env protocol.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic for %s on %s: %v", env.Msg.Op(), env.Target, rec)
		}
	}()
	r.handler(env)
	return nil
}
