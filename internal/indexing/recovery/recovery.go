// Package recovery retries transient storage failures before they reach the
// indexer, which halts on the first error it sees.
package recovery

import (
	"context"
	"errors"

	"github.com/vietddude/logindex/internal/core/checkpoint"
	"github.com/vietddude/logindex/internal/infra/storage"
)

// FailureCategory tells whether an error is worth retrying.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

func (c FailureCategory) String() string {
	if c == CategoryPermanent {
		return "permanent"
	}
	return "transient"
}

// Classifier maps an error to a failure category.
type Classifier func(err error) FailureCategory

// DefaultClassifier treats answers from the store (not found, corrupt data)
// and cancellation as permanent and everything else as transient.
func DefaultClassifier(err error) FailureCategory {
	switch {
	case storage.IsNotFound(err),
		errors.Is(err, checkpoint.ErrCorruptCheckpoint),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryPermanent
	default:
		return CategoryTransient
	}
}
