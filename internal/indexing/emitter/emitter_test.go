package emitter

import (
	"testing"

	"github.com/vietddude/logindex/internal/core/domain"
)

func TestBusDeliversByType(t *testing.T) {
	b := NewBus()

	var all, ready int
	b.Subscribe(func(Event) { all++ })
	b.SubscribeType(EventReady, func(Event) { ready++ })

	b.Emit(Event{Type: EventReady})
	b.Emit(Event{Type: EventIndexed})

	if all != 2 || ready != 1 {
		t.Errorf("all=%d ready=%d, want 2 and 1", all, ready)
	}
}

func TestBusOnce(t *testing.T) {
	b := NewBus()

	calls := 0
	b.Once(EventPause, func(Event) { calls++ })
	b.Emit(Event{Type: EventReady})
	b.Emit(Event{Type: EventPause})
	b.Emit(Event{Type: EventPause})

	if calls != 1 {
		t.Errorf("once handler ran %d times", calls)
	}
	if b.Len() != 0 {
		t.Errorf("expected once handler to be removed, %d left", b.Len())
	}
}

func TestBusOnceCanResubscribe(t *testing.T) {
	b := NewBus()

	var states []domain.Status
	var next Handler
	next = func(e Event) {
		states = append(states, e.State.Status)
		if len(states) < 2 {
			b.Once(EventStateUpdate, next)
		}
	}
	b.Once(EventStateUpdate, next)

	b.Emit(Event{Type: EventStateUpdate, State: domain.State{Status: domain.StatusIndexing}})
	b.Emit(Event{Type: EventStateUpdate, State: domain.State{Status: domain.StatusIdle}})
	b.Emit(Event{Type: EventStateUpdate, State: domain.State{Status: domain.StatusPaused}})

	if len(states) != 2 || states[1] != domain.StatusIdle {
		t.Errorf("states = %v", states)
	}
}

func TestBusCancel(t *testing.T) {
	b := NewBus()

	calls := 0
	cancel := b.Subscribe(func(Event) { calls++ })
	cancel()
	cancel()
	b.Emit(Event{Type: EventReady})

	if calls != 0 {
		t.Errorf("cancelled handler ran")
	}
}
