package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered cue bus. Cues emitted during tick N are delivered
// when DispatchAll runs at the start of tick N+1, so presentation never sees a
// half-applied tick. Emit is game-loop only; Subscribe may be called from any
// goroutine before or during the loop.
type Bus struct {
	mu       sync.Mutex
	front    []any
	back     []any
	handlers map[reflect.Type][]func(any)
	all      []func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]any, 0, 64),
		back:     make([]any, 0, 64),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues a cue into the back buffer.
func Emit[T any](b *Bus, cue T) {
	if b == nil {
		return
	}
	b.back = append(b.back, cue)
}

// Subscribe registers a typed handler for cues of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(v any) { fn(v.(T)) })
}

// SubscribeAll registers a handler that receives every cue regardless of type.
func (b *Bus) SubscribeAll(fn func(any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// SwapBuffers rotates back to front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers front-buffer cues in emission order.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	handlers := b.handlers
	all := b.all
	b.mu.Unlock()
	for _, cue := range b.front {
		for _, h := range handlers[reflect.TypeOf(cue)] {
			h(cue)
		}
		for _, h := range all {
			h(cue)
		}
	}
}

// Pending returns the number of cues waiting for the next swap.
func (b *Bus) Pending() int { return len(b.back) }
