package indexer

import (
	"errors"
	"fmt"

	"github.com/vietddude/logindex/internal/core/domain"
)

var (
	// ErrHalted is returned to waiters once the engine has entered the error
	// state. The cause is wrapped alongside it.
	ErrHalted = errors.New("indexer halted")

	// ErrClosed is returned to waiters after Close.
	ErrClosed = errors.New("indexer closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("indexer already started")
)

// ConfigError reports an invalid engine configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("indexer config: %s: %s", e.Field, e.Reason)
}

// StorageError wraps a failed checkpoint or view storage call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// BatchError wraps a failure to read or materialize the window [At, To) of a log.
type BatchError struct {
	Log domain.LogID
	At  uint32
	To  uint32
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s [%d, %d): %v", e.Log.Short(), e.At, e.To, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

func halted(cause error) error {
	if cause == nil {
		return ErrHalted
	}
	return fmt.Errorf("%w: %w", ErrHalted, cause)
}
