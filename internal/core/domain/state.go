package domain

import "time"

// Status is the runtime status of an indexing engine.
type Status string

const (
	// StatusPreIndexing is held while a run pass decides what to do next.
	// It is never reported externally.
	StatusPreIndexing Status = "pre-indexing"
	StatusIndexing    Status = "indexing"
	StatusIdle        Status = "idle"
	StatusPaused      Status = "paused"
	StatusError       Status = "error"
)

// External maps the hidden pre-indexing status to idle.
func (s Status) External() Status {
	if s == StatusPreIndexing {
		return StatusIdle
	}
	return s
}

// Progress carries counters used for progress reporting.
type Progress struct {
	TotalBlocks       uint64
	IndexedBlocks     uint64
	PrevIndexedBlocks uint64
	IndexStartTime    time.Time
	Error             error
}

// State is an immutable snapshot of an engine's status and progress.
type State struct {
	Status  Status
	Context Progress
}

// Remaining returns how many known entries are not yet indexed.
func (s State) Remaining() uint64 {
	if s.Context.IndexedBlocks >= s.Context.TotalBlocks {
		return 0
	}
	return s.Context.TotalBlocks - s.Context.IndexedBlocks
}
