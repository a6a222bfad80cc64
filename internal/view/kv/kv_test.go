package kv

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/indexing/indexer"
	"github.com/vietddude/logindex/internal/infra/feed/memfeed"
	badgerstore "github.com/vietddude/logindex/internal/infra/storage/badger"
)

func newView(t *testing.T, name string) (*View, *badgerstore.DB) {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, name, nil), db
}

func entry(t *testing.T, log string, seq uint32, doc Doc) domain.Entry {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return domain.Entry{LogID: domain.LogIDFromName(log), Seq: seq, Value: raw}
}

func ready(t *testing.T, e *indexer.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Ready(ctx))
}

func TestBatchLinksReplaceHeads(t *testing.T) {
	v, _ := newView(t, "kv")
	ctx := context.Background()

	first := entry(t, "w", 0, Doc{Key: "foo", Value: json.RawMessage(`"bax"`)})
	second := entry(t, "w", 1, Doc{Key: "foo", Value: json.RawMessage(`"qux"`), Links: []string{first.ID()}})

	require.NoError(t, v.Batch(ctx, []domain.Entry{first}))
	heads, err := v.Get(ctx, "foo")
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, first.ID(), heads[0].ID)
	assert.JSONEq(t, `"bax"`, string(heads[0].Value))

	require.NoError(t, v.Batch(ctx, []domain.Entry{second}))
	ids, err := v.IDs(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID()}, ids)
}

func TestBatchOutOfOrderLink(t *testing.T) {
	v, _ := newView(t, "kv")
	ctx := context.Background()

	// The replacing document is indexed before the one it replaces.
	newer := entry(t, "b", 0, Doc{ID: "2", Key: "X", Links: []string{"1"}})
	older := entry(t, "a", 0, Doc{ID: "1", Key: "X"})
	require.NoError(t, v.Batch(ctx, []domain.Entry{newer, older}))

	ids, err := v.IDs(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)
}

func TestBatchSkipsEntriesWithoutKey(t *testing.T) {
	v, _ := newView(t, "kv")
	ctx := context.Background()

	entries := []domain.Entry{
		{LogID: domain.LogIDFromName("w"), Seq: 0, Value: []byte("not json")},
		entry(t, "w", 1, Doc{Value: json.RawMessage(`1`)}),
		entry(t, "w", 2, Doc{Key: "k"}),
	}
	require.NoError(t, v.Batch(ctx, entries))

	ids, err := v.IDs(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{entries[2].ID()}, ids)
}

func TestBatchAcceptsNumericIDs(t *testing.T) {
	v, _ := newView(t, "kv")
	ctx := context.Background()

	id := domain.LogIDFromName("w")
	entries := []domain.Entry{
		{LogID: id, Seq: 0, Value: []byte(`{"id": 1, "key": "X", "value": 100}`)},
		{LogID: id, Seq: 1, Value: []byte(`{"id": 2, "key": "X", "value": 200, "links": [1]}`)},
		{LogID: id, Seq: 2, Value: []byte(`{"id": "3", "key": "X", "value": 300, "links": ["1"]}`)},
	}
	require.NoError(t, v.Batch(ctx, entries))

	ids, err := v.IDs(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids)
}

func TestDocRejectsObjectID(t *testing.T) {
	var doc Doc
	err := json.Unmarshal([]byte(`{"id": {"a": 1}, "key": "X"}`), &doc)
	assert.Error(t, err)
}

func TestViewsShareDatabase(t *testing.T) {
	a, db := newView(t, "a")
	b := New(db, "b", nil)
	ctx := context.Background()

	require.NoError(t, a.Batch(ctx, []domain.Entry{entry(t, "w", 0, Doc{Key: "k"})}))
	require.NoError(t, b.Batch(ctx, []domain.Entry{entry(t, "w", 1, Doc{Key: "k"})}))
	require.NoError(t, a.ClearIndex(ctx))

	ids, err := a.IDs(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = b.IDs(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestIndexedThroughEngine(t *testing.T) {
	v, _ := newView(t, "kv")
	m := memfeed.New()
	w := m.Writer("w")

	e, err := indexer.New(indexer.Config{Source: m, Materializer: v, Clearer: v})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	seq, err := w.AppendJSON(map[string]any{"key": "foo", "value": "bax", "links": []string{}})
	require.NoError(t, err)
	id1 := domain.Entry{LogID: w.ID(), Seq: seq}.ID()
	_, err = w.AppendJSON(map[string]any{"key": "foo", "value": "bax", "links": []string{id1}})
	require.NoError(t, err)
	ready(t, e)

	ids, err := v.IDs(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, []string{w.ID().String() + "@1"}, ids)
}

func TestForkMergesAcrossReplicas(t *testing.T) {
	a, b := memfeed.New(), memfeed.New()
	akv, _ := newView(t, "a")
	bkv, _ := newView(t, "b")

	start := func(src *memfeed.Multi, v *View) *indexer.Engine {
		e, err := indexer.New(indexer.Config{Source: src, Materializer: v})
		require.NoError(t, err)
		require.NoError(t, e.Start(context.Background()))
		t.Cleanup(func() { _ = e.Close() })
		return e
	}
	ai, bi := start(a, akv), start(b, bkv)

	wa, wb := a.Writer("a"), b.Writer("b")
	_, err := wa.AppendJSON(Doc{ID: "1", Key: "X", Value: json.RawMessage(`100`)})
	require.NoError(t, err)
	memfeed.Sync(a, b)

	_, err = wa.AppendJSON(Doc{ID: "2", Key: "X", Value: json.RawMessage(`200`), Links: []string{"1"}})
	require.NoError(t, err)
	_, err = wb.AppendJSON(Doc{ID: "3", Key: "X", Value: json.RawMessage(`300`), Links: []string{"1"}})
	require.NoError(t, err)
	memfeed.Sync(a, b)

	ready(t, ai)
	ready(t, bi)
	ctx := context.Background()
	for _, v := range []*View{akv, bkv} {
		ids, err := v.IDs(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, ids)
	}

	_, err = wa.AppendJSON(Doc{ID: "4", Key: "X", Value: json.RawMessage(`400`), Links: []string{"2", "3"}})
	require.NoError(t, err)
	memfeed.Sync(a, b)

	ready(t, ai)
	ready(t, bi)
	for _, v := range []*View{akv, bkv} {
		heads, err := v.Get(ctx, "X")
		require.NoError(t, err)
		require.Len(t, heads, 1)
		assert.Equal(t, "4", heads[0].ID)
		assert.JSONEq(t, `400`, string(heads[0].Value))
	}
}
