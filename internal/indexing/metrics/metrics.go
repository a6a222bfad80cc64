package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesIndexed tracks total entries handed to the materializer per index
	EntriesIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindex_entries_indexed_total",
			Help: "Total number of log entries materialized",
		},
		[]string{"index"},
	)

	// BatchesCommitted tracks batches that were materialized and checkpointed
	BatchesCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindex_batches_committed_total",
			Help: "Total number of committed batches",
		},
		[]string{"index"},
	)

	// BatchLatency tracks fetch + materialize time of a batch
	BatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logindex_batch_latency_seconds",
			Help:    "Time to fetch and materialize a batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	// CheckpointWrites tracks checkpoint store calls by outcome
	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindex_checkpoint_writes_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"index", "result"},
	)

	// CheckpointBytes tracks the size of the last written checkpoint
	CheckpointBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindex_checkpoint_bytes",
			Help: "Size in bytes of the last written checkpoint",
		},
		[]string{"index"},
	)

	// EngineState is 1 for the current status of an index and 0 otherwise
	EngineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindex_engine_state",
			Help: "Current engine status (1 = active)",
		},
		[]string{"index", "state"},
	)

	// CursorPosition tracks the next unread sequence number per log
	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindex_cursor_position",
			Help: "Next unread sequence number of a log",
		},
		[]string{"index", "log"},
	)

	// IndexClears tracks index wipes caused by schema version changes
	IndexClears = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindex_index_clears_total",
			Help: "Total number of index rebuilds after a version change",
		},
		[]string{"index"},
	)

	// StorageOpLatency tracks checkpoint/view storage operation latency
	StorageOpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logindex_storage_op_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logindex_db_connection_pool_usage_percent",
			Help: "Open SQL connections as a percentage of the pool size",
		},
	)

	// CheckpointRetries tracks retried checkpoint store operations
	CheckpointRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindex_checkpoint_retries_total",
			Help: "Total number of retried checkpoint operations",
		},
		[]string{"op"},
	)
)

var states = []string{"idle", "indexing", "paused", "error"}

// SetState marks state as the current status of index.
func SetState(index, state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		EngineState.WithLabelValues(index, s).Set(v)
	}
}
