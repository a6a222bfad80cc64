package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/vietddude/logindex/internal/infra/storage"
)

var checkpointPrefix = []byte("checkpoint/")

// CheckpointKey returns the key the checkpoint of index is stored under.
func CheckpointKey(index string) []byte {
	k := make([]byte, 0, len(checkpointPrefix)+len(index))
	k = append(k, checkpointPrefix...)
	return append(k, index...)
}

// CheckpointRepo stores the checkpoint of one index in Badger.
type CheckpointRepo struct {
	db  *DB
	key []byte
}

// NewCheckpointRepo returns the checkpoint store of index.
func NewCheckpointRepo(db *DB, index string) *CheckpointRepo {
	return &CheckpointRepo{db: db, key: CheckpointKey(index)}
}

func (r *CheckpointRepo) Fetch(ctx context.Context) ([]byte, error) {
	var data []byte
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(r.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return data, nil
}

func (r *CheckpointRepo) Store(ctx context.Context, data []byte) error {
	err := r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(r.key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Delete(ctx context.Context) error {
	return r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(r.key)
	})
}
