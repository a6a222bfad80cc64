// Package cursor tracks how far each log has been indexed.
//
// # Purpose
//
// A cursor is a "bookmark" per log: Max is the next sequence number the
// materializer has not seen yet. The Set groups the cursors of every known log
// in discovery order, which is also the scan order of a run pass.
//
// # Key Features
//
// Forward Only - Advance only moves Max up; Put refuses to move it back.
//
//	set.Ensure(id)        // {min:0, max:0} for a new log
//	set.Advance(id, 50)   // max 0 -> 50
//	set.Put(Cursor{max:10}) // ✗ ErrCursorRegression
//
// State Machine - The engine status graph lives here as well:
//
//	IDLE → PRE-INDEXING → INDEXING → PRE-INDEXING → IDLE (valid)
//	ERROR → anything (invalid - error is terminal)
//
// # Package Structure
//
//   - set.go     - ordered cursor set
//   - state.go   - status transitions
//   - metrics.go - throughput and transition history
package cursor

import (
	"github.com/vietddude/logindex/internal/core/domain"
)

// =============================================================================
// Re-exported types from domain package
// =============================================================================

// Cursor is the progress marker of one log.
type Cursor = domain.Cursor

// State is the engine status.
type State = domain.Status

// State constants re-exported for convenience.
const (
	StatePreIndexing = domain.StatusPreIndexing
	StateIndexing    = domain.StatusIndexing
	StateIdle        = domain.StatusIdle
	StatePaused      = domain.StatusPaused
	StateError       = domain.StatusError
)

// =============================================================================
// Constructor functions
// =============================================================================

// NewSet creates an empty cursor set.
func NewSet() *Set {
	return &Set{
		cursors: make(map[domain.LogID]*domain.Cursor),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize:  windowSize,
		batches:     make([]batchRecord, 0, windowSize),
		transitions: make([]Transition, 0, 10),
	}
}
