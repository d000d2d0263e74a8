package protocol

import (
	"fmt"

	"go.uber.org/zap"
)

// ConnState is a relay connection's protocol phase.
type ConnState int

const (
	StateConnected ConnState = iota // awaiting Join
	StateJoined                     // member of a room
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateJoined:
		return "Joined"
	case StateClosing:
		return "Closing"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for control frame handlers.
// The connection is passed as an opaque value to avoid import cycles.
type HandlerFunc func(conn any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[ConnState]bool
}

// Registry maps opcodes to handlers with state-based access control.
type Registry struct {
	handlers map[Op]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[Op]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given states.
func (reg *Registry) Register(op Op, states []ConnState, fn HandlerFunc) {
	allowed := make(map[ConnState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[op] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the opcode in data[0], validates the
// connection state, and calls the handler. Unknown opcodes are ignored.
func (reg *Registry) Dispatch(conn any, state ConnState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty frame")
	}
	op := Op(data[0])

	entry, ok := reg.handlers[op]
	if !ok {
		reg.log.Debug("unknown opcode", zap.Stringer("op", op), zap.Stringer("state", state))
		return nil
	}
	if !entry.allowedStates[state] {
		reg.log.Warn("opcode not allowed in state",
			zap.Stringer("op", op),
			zap.Stringer("state", state),
		)
		return fmt.Errorf("opcode %s not allowed in state %s", op, state)
	}
	return reg.safeCall(entry.fn, conn, NewReader(data), op)
}

// safeCall executes a handler with panic recovery so one bad frame cannot
// take down the relay loop.
func (reg *Registry) safeCall(fn HandlerFunc, conn any, r *Reader, op Op) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.Stringer("op", op),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode %s: %v", op, rec)
		}
	}()
	fn(conn, r)
	return nil
}
