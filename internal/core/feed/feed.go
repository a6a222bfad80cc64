// Package feed defines what the indexing engine needs from a log source.
//
// A Source enumerates append-only logs in a stable order and announces new
// ones. Each Log grows monotonically, may hold only part of its entries
// locally (sparse replication), and notifies watchers when it grows or when
// more entries become available.
package feed

import (
	"context"

	"github.com/vietddude/logindex/internal/core/domain"
)

// Source is a set of logs.
type Source interface {
	// Ready blocks until the source has opened its logs.
	Ready(ctx context.Context) error

	// Logs returns every known log. Order is stable and new logs are
	// appended at the end.
	Logs() []Log

	// OnLog registers fn to be called for every newly discovered log.
	OnLog(fn func(Log)) (cancel func())
}

// Log is one append-only log.
type Log interface {
	ID() domain.LogID

	// Len is the number of entries the log is known to have. Never decreases.
	Len() uint32

	// Has reports whether every entry in [start, end) is available locally.
	Has(start, end uint32) bool

	// GetBatch reads [start, end) without waiting for missing entries.
	GetBatch(ctx context.Context, start, end uint32) ([][]byte, error)

	// Watch registers fn to be called on append and on download.
	Watch(fn func()) (cancel func())
}
