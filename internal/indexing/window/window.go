// Package window picks the next unit of work of a run pass.
//
// One pass drains at most one window of one log: the first log, in
// enumeration order starting after the previous winner, that has unread
// entries available locally. Successive passes therefore walk the logs
// round-robin instead of starving later logs behind a fast one.
package window

import (
	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/core/feed"
)

// DefaultMaxBatch bounds a window when no size is configured.
const DefaultMaxBatch uint32 = 50

// Window is a contiguous range [At, To) of unread entries in one log.
type Window struct {
	Log feed.Log
	At  uint32
	To  uint32
}

// Len returns the number of entries in the window.
func (w Window) Len() uint32 {
	return w.To - w.At
}

// Windower selects windows no larger than MaxBatch. It remembers where the
// last window was found and starts the next scan just after it.
type Windower struct {
	MaxBatch uint32
	next     int
}

// New returns a windower; maxBatch 0 selects DefaultMaxBatch.
func New(maxBatch uint32) *Windower {
	if maxBatch == 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Windower{MaxBatch: maxBatch}
}

// Next registers unseen logs in set, in enumeration order, then scans the
// logs cyclically from the one after the previous winner and returns the
// first window with work. A nil window means the pass is quiescent.
// Ranges not yet available locally are skipped, not failed.
func (w *Windower) Next(logs []feed.Log, set *cursor.Set) *Window {
	for _, l := range logs {
		set.Ensure(l.ID())
	}
	if len(logs) == 0 {
		return nil
	}

	start := w.next % len(logs)
	for i := 0; i < len(logs); i++ {
		idx := (start + i) % len(logs)
		l := logs[idx]
		c, _ := set.Get(l.ID())

		at := c.Max
		to := clampAdd(at, w.MaxBatch, l.Len())
		if at >= to {
			continue
		}
		if !l.Has(at, to) {
			continue
		}
		w.next = idx + 1
		return &Window{Log: l, At: at, To: to}
	}
	return nil
}

// Pending returns the total number of known entries and how many of them are
// already indexed, across logs. Logs missing from set count as unindexed.
func Pending(logs []feed.Log, set *cursor.Set) (total, indexed uint64) {
	for _, l := range logs {
		total += uint64(l.Len())
		if c, ok := set.Get(l.ID()); ok {
			indexed += uint64(c.Max)
		}
	}
	return total, indexed
}

// clampAdd returns min(limit, at+n) without overflowing.
func clampAdd(at, n, limit uint32) uint32 {
	if limit <= at {
		return at
	}
	if limit-at < n {
		return limit
	}
	return at + n
}

// Envelopes tags raw values read for w with their origin.
func (w Window) Envelopes(values [][]byte) []domain.Entry {
	id := w.Log.ID()
	out := make([]domain.Entry, len(values))
	for i, v := range values {
		out[i] = domain.Entry{LogID: id, Seq: w.At + uint32(i), Value: v}
	}
	return out
}
