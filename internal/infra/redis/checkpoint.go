package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/logindex/internal/infra/storage"
)

// CheckpointRepo stores the checkpoint of one index as a Redis string.
type CheckpointRepo struct {
	rdb *redis.Client
	key string
}

// NewCheckpointRepo returns the checkpoint store of index.
func NewCheckpointRepo(client *Client, index string) *CheckpointRepo {
	return &CheckpointRepo{
		rdb: client.rdb,
		key: checkpointKey(client.prefix, index),
	}
}

func (r *CheckpointRepo) Fetch(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return data, nil
}

// Store writes the checkpoint without expiry.
func (r *CheckpointRepo) Store(ctx context.Context, data []byte) error {
	if err := r.rdb.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Delete(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
