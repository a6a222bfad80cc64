package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/logindex/internal/core/checkpoint"
	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/core/feed"
	"github.com/vietddude/logindex/internal/indexing/emitter"
	"github.com/vietddude/logindex/internal/indexing/metrics"
	"github.com/vietddude/logindex/internal/indexing/window"
	"github.com/vietddude/logindex/internal/infra/storage"
)

// boot waits for the source, restores the checkpoint and starts the first pass.
func (e *Engine) boot() {
	if e.closed {
		return
	}
	e.log.Debug("waiting for log source")
	e.await(e.source.Ready, func(err error) {
		if err != nil {
			e.fail(fmt.Errorf("log source: %w", err))
			return
		}

		var data []byte
		e.await(func(ctx context.Context) error {
			var err error
			data, err = e.store.Fetch(ctx)
			return err
		}, func(err error) {
			e.restore(data, err)
		})
	})
}

func (e *Engine) restore(data []byte, err error) {
	if err != nil && !storage.IsNotFound(err) {
		e.fail(&StorageError{Op: "fetch checkpoint", Err: err})
		return
	}
	if err != nil || len(data) == 0 {
		e.log.Info("no checkpoint found, indexing from the start")
		e.attach()
		return
	}

	set, version, err := checkpoint.Decode(data)
	if err != nil {
		e.fail(err)
		return
	}

	if version == e.version {
		e.cursors = set
		e.log.Info("checkpoint restored", "logs", set.Len(), "indexed", set.Indexed())
		e.attach()
		return
	}

	if e.clearer == nil {
		e.log.Warn("view version changed but no clearer is configured, keeping checkpoint",
			"stored", version, "configured", e.version)
		e.cursors = set
		e.attach()
		return
	}

	e.log.Info("view version changed, rebuilding", "stored", version, "configured", e.version)
	e.await(e.clearer.ClearIndex, func(err error) {
		if err != nil {
			e.fail(&StorageError{Op: "clear index", Err: err})
			return
		}
		metrics.IndexClears.WithLabelValues(e.name).Inc()

		data := checkpoint.Encode(e.cursors, e.version)
		e.await(func(ctx context.Context) error {
			return e.store.Store(ctx, data)
		}, func(err error) {
			if err != nil {
				e.fail(&StorageError{Op: "store checkpoint", Err: err})
				return
			}
			e.attach()
		})
	})
}

// attach registers the discovery and per-log listeners and runs the first pass.
func (e *Engine) attach() {
	e.publishCursors()
	e.unsubscribe = e.source.OnLog(func(l feed.Log) {
		e.loop.Post(func() {
			if e.closed {
				return
			}
			e.watch(l)
			e.run(false)
		})
	})
	for _, l := range e.source.Logs() {
		e.watch(l)
	}

	e.transition(domain.StatusIdle, "startup complete", false)
	e.run(false)
}

// watch subscribes to l's append and download notifications. Watching a log
// twice replaces the earlier listener.
func (e *Engine) watch(l feed.Log) {
	if cancel, ok := e.unwatch[l.ID()]; ok {
		cancel()
	}
	e.unwatch[l.ID()] = l.Watch(func() {
		e.loop.Post(func() { e.run(false) })
	})
}

// run is one pass of the run loop. continued is true when the call chains
// from a pass that just finished; external triggers pass false and are
// folded into pending while a pass is in flight or the engine is paused.
func (e *Engine) run(continued bool) {
	if e.closed || e.status == domain.StatusError {
		return
	}
	if !continued && e.status != domain.StatusIdle {
		e.pending = true
		return
	}
	if e.wantPause {
		e.enterPause()
		return
	}

	wasIdle := e.visible != domain.StatusIndexing
	e.transition(domain.StatusPreIndexing, "run", false)

	logs := e.source.Logs()
	w := e.windower.Next(logs, e.cursors)
	total, indexed := window.Pending(logs, e.cursors)
	e.progress.TotalBlocks = total
	e.progress.IndexedBlocks = indexed

	if w == nil {
		e.quiesce()
		return
	}

	if wasIdle {
		e.progress.PrevIndexedBlocks = indexed
		e.progress.IndexStartTime = time.Now()
	}
	e.transition(domain.StatusIndexing, "batch found", true)

	e.log.Debug("indexing batch", "log", w.Log.ID().Short(), "at", w.At, "to", w.To)
	started := time.Now()
	var entries []domain.Entry
	e.await(func(ctx context.Context) error {
		values, err := w.Log.GetBatch(ctx, w.At, w.To)
		if err != nil {
			return &BatchError{Log: w.Log.ID(), At: w.At, To: w.To, Err: err}
		}
		if uint32(len(values)) != w.Len() {
			return &BatchError{Log: w.Log.ID(), At: w.At, To: w.To,
				Err: fmt.Errorf("log returned %d entries, want %d", len(values), w.Len())}
		}
		entries = w.Envelopes(values)
		if err := e.mat.Batch(ctx, entries); err != nil {
			return &BatchError{Log: w.Log.ID(), At: w.At, To: w.To, Err: fmt.Errorf("materialize: %w", err)}
		}
		return nil
	}, func(err error) {
		if err != nil {
			e.fail(err)
			return
		}
		metrics.BatchLatency.WithLabelValues(e.name).Observe(time.Since(started).Seconds())
		e.commit(w, entries)
	})
}

// commit advances the window's cursor, persists the checkpoint and only then
// announces the batch and continues.
func (e *Engine) commit(w *window.Window, entries []domain.Entry) {
	id := w.Log.ID()
	pos, err := e.cursors.Advance(id, w.Len())
	if err != nil {
		e.fail(err)
		return
	}
	e.progress.IndexedBlocks += uint64(w.Len())

	data := checkpoint.Encode(e.cursors, e.version)
	stored := time.Now()
	e.await(func(ctx context.Context) error {
		return e.store.Store(ctx, data)
	}, func(err error) {
		if err != nil {
			metrics.CheckpointWrites.WithLabelValues(e.name, "error").Inc()
			e.fail(&StorageError{Op: "store checkpoint", Err: err})
			return
		}
		metrics.CheckpointWrites.WithLabelValues(e.name, "ok").Inc()
		metrics.CheckpointBytes.WithLabelValues(e.name).Set(float64(len(data)))
		metrics.StorageOpLatency.WithLabelValues("checkpoint", "store").Observe(time.Since(stored).Seconds())
		metrics.EntriesIndexed.WithLabelValues(e.name).Add(float64(len(entries)))
		metrics.BatchesCommitted.WithLabelValues(e.name).Inc()
		metrics.CursorPosition.WithLabelValues(e.name, id.String()).Set(float64(pos))

		e.metrics.RecordBatch(len(entries), time.Now())
		e.publish()
		e.publishCursors()
		e.bus.Emit(emitter.Event{Type: emitter.EventIndexed, Entries: entries})
		e.run(true)
	})
}

// quiesce ends a pass that found no work.
func (e *Engine) quiesce() {
	if e.pending {
		e.pending = false
		e.run(true)
		return
	}
	if e.wantPause {
		e.enterPause()
		return
	}

	// Idle to idle is not a visible change.
	e.transition(domain.StatusIdle, "no work", e.visible != domain.StatusIdle)

	e.bus.Emit(emitter.Event{Type: emitter.EventReady})
	waiters := e.readyWaiters
	e.readyWaiters = nil
	for _, fn := range waiters {
		fn(nil)
	}
}

func (e *Engine) enterPause() {
	e.wantPause = false
	e.pending = true
	e.transition(domain.StatusPaused, "pause requested", true)
	e.bus.Emit(emitter.Event{Type: emitter.EventPause})

	waiters := e.pauseWaiters
	e.pauseWaiters = nil
	for _, fn := range waiters {
		fn(nil)
	}
}

// fail halts the engine for good.
func (e *Engine) fail(err error) {
	if e.status == domain.StatusError {
		return
	}
	e.progress.Error = err
	e.log.Error("indexer halted", "error", err)
	e.transition(domain.StatusError, err.Error(), true)
	e.bus.Emit(emitter.Event{Type: emitter.EventError, Err: err})
	e.release(halted(err))
}

// transition moves to status to. Visible transitions publish a snapshot and,
// when notify is set, emit state-update.
func (e *Engine) transition(to domain.Status, reason string, notify bool) {
	from := e.status
	if from == to {
		return
	}
	if !cursor.CanTransition(from, to) {
		e.log.Error("unexpected status transition", "from", from, "to", to)
	}
	e.status = to

	t := cursor.NewTransition(from, to, reason)
	e.metrics.RecordTransition(t)
	if !t.Visible() {
		return
	}

	e.visible = to
	s := e.publish()
	metrics.SetState(e.name, string(to))
	if notify {
		e.bus.Emit(emitter.Event{Type: emitter.EventStateUpdate, State: s})
	}
}
