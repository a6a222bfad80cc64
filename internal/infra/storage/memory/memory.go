package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/vietddude/logindex/internal/infra/storage"
)

// MemoryStorage keeps checkpoints of any number of indexes in process memory.
type MemoryStorage struct {
	checkpoints map[string][]byte
	writes      map[string]int
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[string][]byte),
		writes:      make(map[string]int),
	}
}

// Writes returns how many times the checkpoint under key was stored.
func (s *MemoryStorage) Writes(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[key]
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

// CheckpointRepo is the storage.CheckpointStore of one index.
type CheckpointRepo struct {
	store *MemoryStorage
	key   string
}

func NewCheckpointRepo(store *MemoryStorage, key string) *CheckpointRepo {
	return &CheckpointRepo{store: store, key: key}
}

// NewCheckpointStore returns a standalone in-memory store, the default used
// when an index is created without one.
func NewCheckpointStore() *CheckpointRepo {
	return NewCheckpointRepo(NewMemoryStorage(), "default")
}

func (r *CheckpointRepo) Fetch(ctx context.Context) ([]byte, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	data, ok := r.store.checkpoints[r.key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (r *CheckpointRepo) Store(ctx context.Context, data []byte) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.checkpoints[r.key] = bytes.Clone(data)
	r.store.writes[r.key]++
	return nil
}

func (r *CheckpointRepo) Delete(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.checkpoints, r.key)
	return nil
}
