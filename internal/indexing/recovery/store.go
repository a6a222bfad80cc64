package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/logindex/internal/indexing/metrics"
	"github.com/vietddude/logindex/internal/infra/storage"
)

// Store retries the operations of a checkpoint store according to a
// RetryStrategy. The last error is returned once the strategy gives up.
type Store struct {
	inner    storage.CheckpointStore
	strategy RetryStrategy
	log      *slog.Logger
}

// Wrap returns inner with retries. A nil strategy uses DefaultBackoff.
func Wrap(inner storage.CheckpointStore, strategy RetryStrategy, logger *slog.Logger) *Store {
	if strategy == nil {
		strategy = DefaultBackoff(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{inner: inner, strategy: strategy, log: logger.With("component", "recovery")}
}

func (s *Store) Fetch(ctx context.Context) ([]byte, error) {
	var data []byte
	err := retry(ctx, s.strategy, s.log, "fetch", func(ctx context.Context) error {
		var err error
		data, err = s.inner.Fetch(ctx)
		return err
	})
	return data, err
}

func (s *Store) Store(ctx context.Context, data []byte) error {
	return retry(ctx, s.strategy, s.log, "store", func(ctx context.Context) error {
		return s.inner.Store(ctx, data)
	})
}

// Delete forwards to the inner store when it supports deletion and stores an
// empty checkpoint otherwise.
func (s *Store) Delete(ctx context.Context) error {
	d, ok := s.inner.(storage.CheckpointDeleter)
	if !ok {
		return s.Store(ctx, nil)
	}
	return retry(ctx, s.strategy, s.log, "delete", d.Delete)
}

// Clearer retries an index clearer.
type Clearer struct {
	inner    storage.IndexClearer
	strategy RetryStrategy
	log      *slog.Logger
}

// WrapClearer returns inner with retries. A nil strategy uses DefaultBackoff.
func WrapClearer(inner storage.IndexClearer, strategy RetryStrategy, logger *slog.Logger) *Clearer {
	if strategy == nil {
		strategy = DefaultBackoff(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Clearer{inner: inner, strategy: strategy, log: logger.With("component", "recovery")}
}

func (c *Clearer) ClearIndex(ctx context.Context) error {
	return retry(ctx, c.strategy, c.log, "clear", c.inner.ClearIndex)
}

func retry(ctx context.Context, strategy RetryStrategy, log *slog.Logger, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !strategy.ShouldRetry(err, attempt) {
			return err
		}

		delay := strategy.GetDelay(attempt)
		metrics.CheckpointRetries.WithLabelValues(op).Inc()
		log.Warn("storage operation failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
