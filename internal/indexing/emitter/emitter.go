package emitter

import (
	"sync"

	"github.com/vietddude/logindex/internal/core/domain"
)

// EventType names an engine lifecycle notification.
type EventType string

const (
	// EventReady fires when the engine becomes quiescent.
	EventReady EventType = "ready"
	// EventIndexed fires after a batch is materialized and checkpointed.
	EventIndexed EventType = "indexed"
	// EventStateUpdate fires on every visible status transition.
	EventStateUpdate EventType = "state-update"
	// EventPause fires when the engine reaches a pause boundary.
	EventPause EventType = "pause"
	// EventError fires once when the engine halts.
	EventError EventType = "error"
)

// Event is one notification. Entries is set for indexed, State for
// state-update, Err for error.
type Event struct {
	Type    EventType
	Entries []domain.Entry
	State   domain.State
	Err     error
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id   int
	typ  EventType // empty matches every type
	once bool
	fn   Handler
}

// Bus is an observer list. Handlers run synchronously, in subscription
// order, on the goroutine calling Emit.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every event.
func (b *Bus) Subscribe(fn Handler) (cancel func()) {
	return b.add("", false, fn)
}

// SubscribeType registers fn for events of type t.
func (b *Bus) SubscribeType(t EventType, fn Handler) (cancel func()) {
	return b.add(t, false, fn)
}

// Once registers fn for the next event of type t only.
func (b *Bus) Once(t EventType, fn Handler) (cancel func()) {
	return b.add(t, true, fn)
}

// Emit delivers e to matching handlers. One-shot handlers are removed before
// they run, so a handler may safely re-subscribe.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	var matched []Handler
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.typ != "" && s.typ != e.Type {
			kept = append(kept, s)
			continue
		}
		matched = append(matched, s.fn)
		if !s.once {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(b.subs); i++ {
		b.subs[i] = subscription{}
	}
	b.subs = kept
	b.mu.Unlock()

	for _, fn := range matched {
		fn(e)
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) add(t EventType, once bool, fn Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, typ: t, once: once, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
