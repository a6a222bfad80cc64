package control

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vietddude/logindex/internal/core/config"
	"github.com/vietddude/logindex/internal/core/feed"
	"github.com/vietddude/logindex/internal/indexing/recovery"
	"github.com/vietddude/logindex/internal/infra/feed/memfeed"
	"github.com/vietddude/logindex/internal/infra/feed/pebblefeed"
	redisclient "github.com/vietddude/logindex/internal/infra/redis"
	"github.com/vietddude/logindex/internal/infra/storage"
	badgerstore "github.com/vietddude/logindex/internal/infra/storage/badger"
	"github.com/vietddude/logindex/internal/infra/storage/memory"
	pebblestore "github.com/vietddude/logindex/internal/infra/storage/pebble"
	"github.com/vietddude/logindex/internal/infra/storage/sqldb"
)

// appendFunc appends values to the log called name.
type appendFunc func(ctx context.Context, name string, values ...[]byte) (uint32, error)

func fsyncMode(mode string) pebblestore.FsyncMode {
	switch mode {
	case "interval":
		return pebblestore.FsyncModeInterval
	case "never":
		return pebblestore.FsyncModeNever
	default:
		return pebblestore.FsyncModeAlways
	}
}

func (a *App) openLogs() (feed.Source, appendFunc, error) {
	if a.cfg.Logs.InMemory {
		m := memfeed.New()
		a.log.Info("Using in-memory logs")
		return m, func(_ context.Context, name string, values ...[]byte) (uint32, error) {
			return m.Writer(name).Append(values...)
		}, nil
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: a.cfg.Logs.Dir,
		Fsync:   fsyncMode(a.cfg.Logs.Fsync),
		Metrics: pebblestore.PromMetrics{},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open logs at %s: %w", a.cfg.Logs.Dir, err)
	}
	a.onClose(db.Close)
	a.logDB = db

	src, err := pebblefeed.Open(db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load logs: %w", err)
	}
	a.log.Info("Using Pebble logs", "dir", a.cfg.Logs.Dir, "logs", len(src.Logs()))
	return src, func(ctx context.Context, name string, values ...[]byte) (uint32, error) {
		l, err := src.Writer(name)
		if err != nil {
			return 0, err
		}
		return l.Append(ctx, values...)
	}, nil
}

func (a *App) openView() error {
	cfg := badgerstore.DefaultConfig()
	if a.cfg.View.InMemory {
		cfg = badgerstore.InMemoryConfig()
	} else {
		cfg.Path = a.cfg.View.Dir
	}
	cfg.Logger = a.log

	db, err := badgerstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open view: %w", err)
	}
	a.onClose(db.Close)
	a.viewDB = db
	return nil
}

func (a *App) openCheckpoints(ctx context.Context) (storage.CheckpointStore, error) {
	name := a.cfg.Indexer.Name
	var store storage.CheckpointStore

	switch a.cfg.Checkpoint.Driver {
	case config.DriverMemory:
		store = memory.NewCheckpointStore()

	case config.DriverPebble:
		db := a.logDB
		if a.cfg.Checkpoint.Dir != "" {
			var err error
			db, err = pebblestore.Open(pebblestore.Options{
				DataDir: a.cfg.Checkpoint.Dir,
				Fsync:   pebblestore.FsyncModeAlways,
				Metrics: pebblestore.PromMetrics{},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to open checkpoints at %s: %w", a.cfg.Checkpoint.Dir, err)
			}
			a.onClose(db.Close)
		}
		if db == nil {
			return nil, fmt.Errorf("pebble checkpoints need checkpoint.dir when logs are in memory")
		}
		store = pebblestore.NewCheckpointRepo(db, name)

	case config.DriverBadger:
		store = badgerstore.NewCheckpointRepo(a.viewDB, name)

	case config.DriverRedis:
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		a.components["redis"] = client.Ping
		store = redisclient.NewCheckpointRepo(client, name)

	case config.DriverSQL:
		db, err := sqldb.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.onClose(db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		a.db = db
		a.components["sql"] = db.Health
		store = sqldb.NewCheckpointRepo(db, name)

	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", a.cfg.Checkpoint.Driver)
	}

	a.log.Info("Using checkpoint store", "driver", a.cfg.Checkpoint.Driver)
	if a.cfg.Checkpoint.MaxRetries > 0 {
		strategy := recovery.DefaultBackoff(nil)
		strategy.MaxAttempts = a.cfg.Checkpoint.MaxRetries
		return recovery.Wrap(store, strategy, a.log), nil
	}
	return store, nil
}

// viewDir reports where the view lives, for log lines.
func (a *App) viewDir() string {
	if a.cfg.View.InMemory {
		return ":memory:"
	}
	abs, err := filepath.Abs(a.cfg.View.Dir)
	if err != nil {
		return a.cfg.View.Dir
	}
	return abs
}
