package pebblestore

import (
	"context"
	"fmt"

	"github.com/vietddude/logindex/internal/infra/storage"
)

var checkpointPrefix = []byte("checkpoint/")

// CheckpointKey returns the key the checkpoint of index is stored under.
func CheckpointKey(index string) []byte {
	k := make([]byte, 0, len(checkpointPrefix)+len(index))
	k = append(k, checkpointPrefix...)
	return append(k, index...)
}

// CheckpointRepo stores the checkpoint of one index in Pebble.
type CheckpointRepo struct {
	db  *DB
	key []byte
}

// NewCheckpointRepo returns the checkpoint store of index.
func NewCheckpointRepo(db *DB, index string) *CheckpointRepo {
	return &CheckpointRepo{db: db, key: CheckpointKey(index)}
}

func (r *CheckpointRepo) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.db.Get(r.key)
	if IsNotFound(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return data, nil
}

func (r *CheckpointRepo) Store(ctx context.Context, data []byte) error {
	b := r.db.NewBatch()
	defer b.Close()
	if err := b.Set(r.key, data, nil); err != nil {
		return err
	}
	if err := r.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Delete(r.key)
}
