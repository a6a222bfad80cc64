package indexer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/core/feed"
	"github.com/vietddude/logindex/internal/core/worker"
	"github.com/vietddude/logindex/internal/indexing/emitter"
	"github.com/vietddude/logindex/internal/indexing/window"
	"github.com/vietddude/logindex/internal/infra/storage"
	"github.com/vietddude/logindex/internal/infra/storage/memory"
)

// DefaultVersion is the view version assumed when none is configured.
const DefaultVersion uint32 = 1

// Engine materializes a view from the logs of a Source, one batch at a time.
//
// Every field below the loop marker is owned by the loop goroutine. Public
// methods either read the published snapshots or post work to the loop.
type Engine struct {
	name     string
	source   feed.Source
	mat      Materializer
	store    storage.CheckpointStore
	clearer  storage.IndexClearer
	version  uint32
	windower *window.Windower
	log      *slog.Logger

	bus     *emitter.Bus
	loop    *worker.Loop
	metrics *cursor.MetricsCollector

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	state     atomic.Pointer[domain.State]
	positions atomic.Pointer[[]domain.Cursor]

	// loop
	cursors      *cursor.Set
	status       domain.Status
	visible      domain.Status
	progress     domain.Progress
	pending      bool
	wantPause    bool
	closed       bool
	pauseWaiters []func(error)
	readyWaiters []func(error)
	unwatch      map[domain.LogID]func()
	unsubscribe  func()
}

// New validates cfg and returns an engine that has not started yet.
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, &ConfigError{Field: "Source", Reason: "required"}
	}
	if cfg.Materializer == nil {
		return nil, &ConfigError{Field: "Materializer", Reason: "required"}
	}
	if (cfg.FetchState == nil) != (cfg.StoreState == nil) {
		return nil, &ConfigError{Field: "FetchState/StoreState", Reason: "provide both or neither"}
	}
	if cfg.FetchState != nil && cfg.Checkpoints != nil {
		return nil, &ConfigError{Field: "Checkpoints", Reason: "conflicts with FetchState/StoreState"}
	}

	store := cfg.Checkpoints
	switch {
	case cfg.FetchState != nil:
		store = stateFuncs{fetch: cfg.FetchState, store: cfg.StoreState}
	case store == nil:
		store = memory.NewCheckpointStore()
	}

	name := cfg.Name
	if name == "" {
		name = "index"
	}
	version := cfg.Version
	if version == 0 {
		version = DefaultVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		name:     name,
		source:   cfg.Source,
		mat:      cfg.Materializer,
		store:    store,
		clearer:  cfg.Clearer,
		version:  version,
		windower: window.New(cfg.MaxBatch),
		log:      logger.With("component", "indexer", "index", name),
		bus:      emitter.NewBus(),
		loop:     worker.NewLoop(),
		metrics:  cursor.NewMetricsCollector(64),
		cursors:  cursor.NewSet(),
		status:   domain.StatusPreIndexing,
		visible:  domain.StatusIdle,
		unwatch:  make(map[domain.LogID]func()),
	}
	e.publish()
	e.publishCursors()
	return e, nil
}

// Name returns the index name.
func (e *Engine) Name() string { return e.name }

// Version returns the configured view version.
func (e *Engine) Version() uint32 { return e.version }

// Start launches the engine loop and its startup sequence. It returns
// immediately; use Ready to wait for the first quiescent pass.
func (e *Engine) Start(ctx context.Context) error {
	first := false
	e.startOnce.Do(func() {
		first = true
		e.ctx, e.cancel = context.WithCancel(ctx)
		e.started.Store(true)
		e.loop.Post(e.boot)
		go e.loop.Run(e.ctx)
	})
	if !first {
		return ErrAlreadyStarted
	}
	e.log.Info("indexer started", "version", e.version, "max_batch", e.windower.MaxBatch)
	return nil
}

// Close removes log listeners, releases waiters with ErrClosed and stops the
// loop. A batch in flight is abandoned; its checkpoint is not written. Close
// also works after the context given to Start was cancelled.
func (e *Engine) Close() error {
	if !e.started.Load() {
		return nil
	}
	done := make(chan struct{})
	if e.loop.Post(func() {
		e.shutdown()
		close(done)
	}) {
		select {
		case <-done:
		case <-e.loop.Done():
		}
	}
	e.cancel()
	<-e.loop.Done()

	// The loop goroutine has exited, so its state is ours now.
	e.closeOnce.Do(func() {
		e.shutdown()
		for _, fn := range e.loop.Drain() {
			fn()
		}
	})
	return nil
}

// GetState returns the latest status snapshot. The hidden pre-indexing
// status is reported as idle.
func (e *Engine) GetState() domain.State {
	return *e.state.Load()
}

// Cursors returns the cursor positions as of the last committed batch.
func (e *Engine) Cursors() []domain.Cursor {
	return *e.positions.Load()
}

// Metrics returns throughput and transition history.
func (e *Engine) Metrics() cursor.Metrics {
	return e.metrics.GetMetrics()
}

// Subscribe registers fn for every engine event. Handlers run on the engine
// loop and must not block or call Pause/Ready.
func (e *Engine) Subscribe(fn Handler) (cancel func()) {
	return e.bus.Subscribe(fn)
}

// SubscribeType registers fn for events of one type.
func (e *Engine) SubscribeType(t emitter.EventType, fn Handler) (cancel func()) {
	return e.bus.SubscribeType(t, fn)
}

func (e *Engine) publish() domain.State {
	s := domain.State{Status: e.status.External(), Context: e.progress}
	e.state.Store(&s)
	return s
}

func (e *Engine) publishCursors() {
	c := e.cursors.Cursors()
	e.positions.Store(&c)
}

// await runs fn off the loop and continues with then on the loop, unless the
// engine was closed meanwhile.
func (e *Engine) await(fn func(ctx context.Context) error, then func(err error)) {
	e.loop.Await(e.ctx, fn, func(err error) {
		if e.closed {
			return
		}
		then(err)
	})
}

func (e *Engine) shutdown() {
	if e.closed {
		return
	}
	e.closed = true
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	for id, cancel := range e.unwatch {
		cancel()
		delete(e.unwatch, id)
	}
	e.release(ErrClosed)
	e.log.Info("indexer closed")
}

// release resolves every pause and ready waiter with err.
func (e *Engine) release(err error) {
	pw, rw := e.pauseWaiters, e.readyWaiters
	e.pauseWaiters, e.readyWaiters = nil, nil
	for _, fn := range pw {
		fn(err)
	}
	for _, fn := range rw {
		fn(err)
	}
}
