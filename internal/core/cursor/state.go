package cursor

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StatePreIndexing: {StateIdle, StateIndexing, StatePaused, StateError},
	StateIndexing:    {StatePreIndexing, StatePaused, StateError},
	StateIdle:        {StatePreIndexing, StatePaused, StateError},
	StatePaused:      {StateIdle, StateError},
	StateError:       {},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// Visible reports whether observers would notice the change. Entering the
// hidden pre-indexing status is not visible.
func (t Transition) Visible() bool {
	return t.To != StatePreIndexing
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StatePreIndexing:
		return "Pre-indexing - choosing the next window (reported as idle)"
	case StateIndexing:
		return "Indexing - a batch is being materialized"
	case StateIdle:
		return "Idle - every available entry is indexed"
	case StatePaused:
		return "Paused - stopped by operator"
	case StateError:
		return "Error - halted after a storage or materializer failure"
	default:
		return "Unknown state"
	}
}
