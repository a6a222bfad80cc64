package cursor

import (
	"sync"
	"time"
)

// batchRecord holds timing data for a committed batch.
type batchRecord struct {
	Entries     int
	CommittedAt time.Time
}

// Metrics holds indexing throughput data.
type Metrics struct {
	EntriesPerSecond float64
	AverageBatchTime time.Duration
	LastErrorAt      *time.Time
	StateHistory     []Transition
}

// MetricsCollector tracks throughput over a sliding window of batches.
type MetricsCollector struct {
	mu          sync.Mutex
	windowSize  int           // number of batches to track
	batches     []batchRecord // ring buffer of batch records
	transitions []Transition  // recent state changes
	lastErrorAt *time.Time
}

// RecordBatch records a committed batch of n entries.
func (mc *MetricsCollector) RecordBatch(n int, committedAt time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	record := batchRecord{
		Entries:     n,
		CommittedAt: committedAt,
	}

	if len(mc.batches) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.batches, mc.batches[1:])
		mc.batches[len(mc.batches)-1] = record
	} else {
		mc.batches = append(mc.batches, record)
	}
}

// RecordTransition records a state transition.
func (mc *MetricsCollector) RecordTransition(t Transition) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	// Keep only last 10 transitions
	if len(mc.transitions) >= 10 {
		copy(mc.transitions, mc.transitions[1:])
		mc.transitions[len(mc.transitions)-1] = t
	} else {
		mc.transitions = append(mc.transitions, t)
	}

	if t.To == StateError {
		now := t.Timestamp
		mc.lastErrorAt = &now
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := Metrics{
		LastErrorAt:  mc.lastErrorAt,
		StateHistory: make([]Transition, len(mc.transitions)),
	}
	copy(m.StateHistory, mc.transitions)

	// Entries after the first batch over the elapsed window
	if len(mc.batches) >= 2 {
		first := mc.batches[0]
		last := mc.batches[len(mc.batches)-1]
		duration := last.CommittedAt.Sub(first.CommittedAt)

		if duration > 0 {
			entries := 0
			for _, b := range mc.batches[1:] {
				entries += b.Entries
			}
			m.EntriesPerSecond = float64(entries) / duration.Seconds()
			m.AverageBatchTime = time.Duration(float64(duration) / float64(len(mc.batches)-1))
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.batches = mc.batches[:0]
	mc.transitions = mc.transitions[:0]
	mc.lastErrorAt = nil
}
