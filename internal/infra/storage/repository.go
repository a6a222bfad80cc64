package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Fetch when no checkpoint has been stored yet.
	// It is a sentinel, not a failure.
	ErrNotFound = errors.New("checkpoint not found")
)

// CheckpointStore persists the encoded checkpoint blob of one index.
// Fetch and Store come as a pair; an index without a store uses the
// in-memory default.
type CheckpointStore interface {
	// Fetch returns the last stored checkpoint, or ErrNotFound.
	Fetch(ctx context.Context) ([]byte, error)

	// Store replaces the stored checkpoint.
	Store(ctx context.Context, data []byte) error
}

// CheckpointDeleter is implemented by stores that can forget their checkpoint.
type CheckpointDeleter interface {
	Delete(ctx context.Context) error
}

// IndexClearer wipes the materialized index so it can be rebuilt from scratch
// after a schema version change.
type IndexClearer interface {
	ClearIndex(ctx context.Context) error
}

// ClearerFunc adapts a function to IndexClearer.
type ClearerFunc func(ctx context.Context) error

// ClearIndex calls f.
func (f ClearerFunc) ClearIndex(ctx context.Context) error {
	return f(ctx)
}

// IsNotFound reports whether err means "no checkpoint yet".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
