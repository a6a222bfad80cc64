// Package control wires the configured logs, view, checkpoint store and
// health servers around one indexing engine and manages their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/logindex/internal/core/config"
	"github.com/vietddude/logindex/internal/core/feed"
	"github.com/vietddude/logindex/internal/indexing/emitter"
	"github.com/vietddude/logindex/internal/indexing/health"
	"github.com/vietddude/logindex/internal/indexing/indexer"
	"github.com/vietddude/logindex/internal/indexing/recovery"
	"github.com/vietddude/logindex/internal/infra/storage"
	badgerstore "github.com/vietddude/logindex/internal/infra/storage/badger"
	pebblestore "github.com/vietddude/logindex/internal/infra/storage/pebble"
	"github.com/vietddude/logindex/internal/infra/storage/sqldb"
	"github.com/vietddude/logindex/internal/view/kv"
)

// App is the logindex process: one engine materializing the kv view.
type App struct {
	cfg config.AppConfig
	log *slog.Logger

	source      feed.Source
	appendTo    appendFunc
	view        *kv.View
	checkpoints storage.CheckpointStore
	engine      *indexer.Engine

	logDB  *pebblestore.DB
	viewDB *badgerstore.DB
	db     *sqldb.DB

	components   map[string]health.PingFunc
	monitor      *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer

	closers []func() error

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// New opens every store named by cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: *cfg, log: logger, components: make(map[string]health.PingFunc)}

	if err := a.open(ctx); err != nil {
		_ = a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	var err error
	a.source, a.appendTo, err = a.openLogs()
	if err != nil {
		return err
	}
	if err := a.openView(); err != nil {
		return err
	}
	a.view = kv.New(a.viewDB, a.cfg.Indexer.Name, a.log)
	a.log.Info("Using Badger view", "dir", a.viewDir())

	a.checkpoints, err = a.openCheckpoints(ctx)
	if err != nil {
		return err
	}

	var clearer storage.IndexClearer = a.view
	if a.cfg.Checkpoint.MaxRetries > 0 {
		clearer = recovery.WrapClearer(a.view, nil, a.log)
	}

	a.engine, err = indexer.New(indexer.Config{
		Name:         a.cfg.Indexer.Name,
		Source:       a.source,
		Materializer: a.view,
		Checkpoints:  a.checkpoints,
		Clearer:      clearer,
		Version:      a.cfg.Indexer.Version,
		MaxBatch:     a.cfg.Indexer.MaxBatch,
		Logger:       a.log,
	})
	if err != nil {
		return err
	}
	a.monitor = health.NewMonitor(a.engine)
	for name, ping := range a.components {
		a.monitor.AddComponent(name, ping)
	}
	return nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Engine returns the indexing engine.
func (a *App) Engine() *indexer.Engine { return a.engine }

// View returns the materialized view.
func (a *App) View() *kv.View { return a.view }

// Monitor returns the health monitor.
func (a *App) Monitor() *health.Monitor { return a.monitor }

// Append writes values to the local log called name.
func (a *App) Append(ctx context.Context, name string, values ...[]byte) (uint32, error) {
	return a.appendTo(ctx, name, values...)
}

// Checkpoint returns the stored checkpoint blob.
func (a *App) Checkpoint(ctx context.Context) ([]byte, error) {
	return a.checkpoints.Fetch(ctx)
}

// Reset forgets the checkpoint and clears the view so the next run rebuilds
// from the start. It must not be called while the engine runs.
func (a *App) Reset(ctx context.Context) error {
	a.mu.Lock()
	running := a.started
	a.mu.Unlock()
	if running {
		return errors.New("reset while running")
	}

	if d, ok := a.checkpoints.(storage.CheckpointDeleter); ok {
		if err := d.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	} else if err := a.checkpoints.Store(ctx, nil); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return a.view.ClearIndex(ctx)
}

// Start launches the engine and the health servers. It returns once they
// are running; use Wait or Stop to end them.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	a.cancel, a.group, a.started = cancel, g, true

	if err := a.engine.Start(gctx); err != nil {
		cancel()
		return err
	}
	a.engine.SubscribeType(emitter.EventError, func(ev emitter.Event) {
		a.log.Error("Indexer halted", "error", ev.Err)
	})

	if a.cfg.Server.Port > 0 {
		a.healthServer = health.NewServer(a.monitor, a.cfg.Server.Port)
		g.Go(func() error {
			a.log.Info("Health server listening", "port", a.cfg.Server.Port)
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Server.GRPCPort > 0 {
		a.grpcServer = health.NewGRPCServer(a.monitor, a.cfg.Server.GRPCPort)
		g.Go(func() error {
			a.log.Info("gRPC health server listening", "port", a.cfg.Server.GRPCPort)
			if err := a.grpcServer.Start(); err != nil {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			a.grpcServer.Watch(gctx, time.Second)
			return nil
		})
	}

	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdownServers()
	})

	go func() {
		if err := a.engine.Ready(gctx); err == nil {
			a.log.Info("Index ready", "index", a.engine.Name(), "state", a.engine.GetState().Status)
		}
	}()
	return nil
}

func (a *App) shutdownServers() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if a.healthServer != nil {
		err = a.healthServer.Stop(ctx)
	}
	if a.grpcServer != nil {
		a.grpcServer.Stop(ctx)
	}
	return err
}

// Wait blocks until a server fails or Stop is called.
func (a *App) Wait() error {
	a.mu.Lock()
	g := a.group
	a.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop stops the servers and the engine and closes every store.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping logindex...")

	a.mu.Lock()
	cancel, g := a.cancel, a.group
	a.cancel, a.group, a.started = nil, nil, false
	a.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case err := <-done:
			errs = append(errs, err)
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	errs = append(errs, a.engine.Close(), a.closeAll())
	return errors.Join(errs...)
}

// Close releases the stores of an app that was never started.
func (a *App) Close() error {
	return a.Stop(context.Background())
}
