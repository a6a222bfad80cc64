package indexer

import (
	"context"
	"log/slog"

	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/core/feed"
	"github.com/vietddude/logindex/internal/indexing/emitter"
	"github.com/vietddude/logindex/internal/infra/storage"
)

// Indexer is the lifecycle surface of an indexing engine
type Indexer interface {
	// Start loads the checkpoint and begins indexing in the background
	Start(ctx context.Context) error

	// Close stops the engine and removes its log listeners
	Close() error

	// GetState returns the current status snapshot
	GetState() domain.State
}

// Materializer folds a batch of entries into the user's view. Batch must not
// return until the entries are durably applied; the cursor only advances
// after it returns nil.
type Materializer interface {
	Batch(ctx context.Context, entries []domain.Entry) error
}

// MaterializerFunc adapts a function to Materializer.
type MaterializerFunc func(ctx context.Context, entries []domain.Entry) error

// Batch calls f.
func (f MaterializerFunc) Batch(ctx context.Context, entries []domain.Entry) error {
	return f(ctx, entries)
}

// Config holds engine configuration
type Config struct {
	// Name labels logs and metrics. Defaults to "index".
	Name string

	Source       feed.Source
	Materializer Materializer

	// Checkpoints persists progress. Nil keeps progress in memory only,
	// unless FetchState and StoreState are given instead.
	Checkpoints storage.CheckpointStore
	FetchState  func(ctx context.Context) ([]byte, error)
	StoreState  func(ctx context.Context, data []byte) error

	// Clearer wipes the view when the stored version differs from Version.
	Clearer storage.IndexClearer

	// Version of the view schema. 0 selects 1.
	Version uint32

	// MaxBatch bounds the entries per materializer call. 0 selects 50.
	MaxBatch uint32

	Logger *slog.Logger
}

// Handler receives engine events.
type Handler = emitter.Handler

// stateFuncs adapts a FetchState/StoreState pair to storage.CheckpointStore.
type stateFuncs struct {
	fetch func(ctx context.Context) ([]byte, error)
	store func(ctx context.Context, data []byte) error
}

func (s stateFuncs) Fetch(ctx context.Context) ([]byte, error) {
	return s.fetch(ctx)
}

func (s stateFuncs) Store(ctx context.Context, data []byte) error {
	return s.store(ctx, data)
}
