package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/logindex/internal/indexing/metrics"
	"github.com/vietddude/logindex/internal/infra/storage"
)

// CheckpointRepo stores the checkpoint of one index as a row of the
// checkpoints table.
type CheckpointRepo struct {
	db    *DB
	index string

	getQuery    string
	upsertQuery string
	deleteQuery string
}

// NewCheckpointRepo creates the checkpoint store of index.
func NewCheckpointRepo(db *DB, index string) *CheckpointRepo {
	return &CheckpointRepo{
		db:       db,
		index:    index,
		getQuery: db.Rebind(`SELECT data FROM checkpoints WHERE index_name = ?`),
		upsertQuery: db.Rebind(`INSERT INTO checkpoints (index_name, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT (index_name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		deleteQuery: db.Rebind(`DELETE FROM checkpoints WHERE index_name = ?`),
	}
}

func (r *CheckpointRepo) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	var data []byte
	err := r.db.GetContext(ctx, &data, r.getQuery, r.index)
	metrics.StorageOpLatency.WithLabelValues("sql", "read").Observe(time.Since(start).Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return data, nil
}

func (r *CheckpointRepo) Store(ctx context.Context, data []byte) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, r.upsertQuery, r.index, data, time.Now().Unix())
	metrics.StorageOpLatency.WithLabelValues("sql", "write").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.deleteQuery, r.index); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Checkpoint is one row of the checkpoints table.
type Checkpoint struct {
	Index     string `db:"index_name"`
	Data      []byte `db:"data"`
	UpdatedAt int64  `db:"updated_at"`
}

// ListCheckpoints returns every stored checkpoint ordered by index name.
func (db *DB) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	var rows []Checkpoint
	err := db.SelectContext(ctx, &rows,
		`SELECT index_name, data, updated_at FROM checkpoints ORDER BY index_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return rows, nil
}
