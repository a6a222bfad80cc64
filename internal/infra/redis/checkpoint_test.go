package redis

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/logindex/internal/infra/storage"
)

func TestCheckpointKey(t *testing.T) {
	assert.Equal(t, "checkpoint:kv", checkpointKey("", "kv"))
	assert.Equal(t, "logindex:checkpoint:kv", checkpointKey("logindex:", "kv"))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

// Runs against a live server when LOGINDEX_REDIS_URL is set.
func TestCheckpointRepoLive(t *testing.T) {
	url := os.Getenv("LOGINDEX_REDIS_URL")
	if url == "" {
		t.Skip("LOGINDEX_REDIS_URL not set")
	}
	client, err := NewClient(Config{URL: url, Prefix: "logindex-test:"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	repo := NewCheckpointRepo(client, t.Name())
	require.NoError(t, repo.Delete(ctx))

	_, err = repo.Fetch(ctx)
	require.True(t, storage.IsNotFound(err), "fetch before store: %v", err)

	require.NoError(t, repo.Store(ctx, []byte{0, 1, 2}))
	data, err := repo.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, data)

	require.NoError(t, repo.Delete(ctx))
	_, err = repo.Fetch(ctx)
	assert.True(t, storage.IsNotFound(err))
}
