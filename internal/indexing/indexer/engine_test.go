package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/logindex/internal/core/checkpoint"
	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/indexing/emitter"
	"github.com/vietddude/logindex/internal/infra/feed/memfeed"
	"github.com/vietddude/logindex/internal/infra/storage"
	"github.com/vietddude/logindex/internal/infra/storage/memory"
)

// recorder is a Materializer that keeps every batch it accepts. When hold is
// set, the first call signals entered and blocks until hold is closed.
type recorder struct {
	mu      sync.Mutex
	batches [][]domain.Entry
	calls   int
	err     error
	hold    chan struct{}
	entered chan struct{}
}

func (r *recorder) Batch(ctx context.Context, entries []domain.Entry) error {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	err := r.err
	r.mu.Unlock()

	if first && r.hold != nil {
		close(r.entered)
		select {
		case <-r.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.batches = append(r.batches, entries)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Batches() [][]domain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.Entry(nil), r.batches...)
}

func (r *recorder) Entries() []domain.Entry {
	var out []domain.Entry
	for _, b := range r.Batches() {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func holding() *recorder {
	return &recorder{hold: make(chan struct{}), entered: make(chan struct{})}
}

// flakyStore wraps a memory store. It can fail Fetch, or fail the failAt-th
// Store call (1-based).
type flakyStore struct {
	inner    *memory.CheckpointRepo
	fetchErr error
	failAt   int

	mu     sync.Mutex
	writes int
}

func (s *flakyStore) Fetch(ctx context.Context) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.inner.Fetch(ctx)
}

func (s *flakyStore) Store(ctx context.Context, data []byte) error {
	s.mu.Lock()
	s.writes++
	n := s.writes
	s.mu.Unlock()
	if n == s.failAt {
		return errors.New("disk full")
	}
	return s.inner.Store(ctx, data)
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func startEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := newEngine(t, cfg)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e
}

func waitReady(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func appendN(t *testing.T, l *memfeed.Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := l.Append([]byte{byte(i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func storedCheckpoint(t *testing.T, s storage.CheckpointStore) (*cursor.Set, uint32) {
	t.Helper()
	data, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	set, version, err := checkpoint.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return set, version
}

func seqs(entries []domain.Entry) []uint32 {
	out := make([]uint32, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func equalSeqs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewConfigErrors(t *testing.T) {
	m := memfeed.New()
	mat := &recorder{}
	fetch := func(context.Context) ([]byte, error) { return nil, storage.ErrNotFound }
	store := func(context.Context, []byte) error { return nil }

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"missing source", Config{Materializer: mat}, "Source"},
		{"missing materializer", Config{Source: m}, "Materializer"},
		{"fetch without store", Config{Source: m, Materializer: mat, FetchState: fetch}, "FetchState/StoreState"},
		{"store without fetch", Config{Source: m, Materializer: mat, StoreState: store}, "FetchState/StoreState"},
		{"funcs and store", Config{
			Source: m, Materializer: mat,
			FetchState: fetch, StoreState: store,
			Checkpoints: memory.NewCheckpointStore(),
		}, "Checkpoints"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestEngineIndexesAppendedEntries(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	for _, v := range []string{"bax", "bix", "box"} {
		if _, err := w.AppendJSON(map[string]string{"key": "foo", "value": v}); err != nil {
			t.Fatalf("AppendJSON: %v", err)
		}
	}

	rec := &recorder{}
	e := newEngine(t, Config{Source: m, Materializer: rec})
	var readies atomic.Int32
	e.SubscribeType(emitter.EventReady, func(emitter.Event) { readies.Add(1) })

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitReady(t, e)

	batches := rec.Batches()
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected one batch of 3, got %d batches", len(batches))
	}
	for i, entry := range batches[0] {
		if entry.LogID != w.ID() || entry.Seq != uint32(i) {
			t.Errorf("entry %d = %s", i, entry.ID())
		}
		var v map[string]string
		if err := json.Unmarshal(entry.Value, &v); err != nil || v["key"] != "foo" {
			t.Errorf("entry %d value = %s", i, entry.Value)
		}
	}

	cursors := e.Cursors()
	if len(cursors) != 1 || cursors[0].Max != 3 {
		t.Errorf("cursors = %+v, want max 3", cursors)
	}
	if got := readies.Load(); got != 1 {
		t.Errorf("ready fired %d times, want 1", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := rec.Calls(); got != 1 {
		t.Errorf("materializer called %d times without new appends", got)
	}
}

func TestEngineBoundsBatchesByMaxBatch(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 7)

	rec := &recorder{}
	e := startEngine(t, Config{Source: m, Materializer: rec, MaxBatch: 3})
	waitReady(t, e)

	var sizes []int
	for _, b := range rec.Batches() {
		sizes = append(sizes, len(b))
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [3 3 1]", sizes)
	}
	if got := seqs(rec.Entries()); !equalSeqs(got, []uint32{0, 1, 2, 3, 4, 5, 6}) {
		t.Errorf("seqs = %v", got)
	}
}

func TestEngineRoundRobinAcrossLogs(t *testing.T) {
	m := memfeed.New()
	a := m.Writer("a")
	b := m.Writer("b")
	appendN(t, a, 4)
	appendN(t, b, 4)

	rec := &recorder{}
	e := startEngine(t, Config{Source: m, Materializer: rec, MaxBatch: 2})
	waitReady(t, e)

	batches := rec.Batches()
	want := []domain.LogID{a.ID(), b.ID(), a.ID(), b.ID()}
	if len(batches) != len(want) {
		t.Fatalf("got %d batches, want %d", len(batches), len(want))
	}
	for i, id := range want {
		if batches[i][0].LogID != id {
			t.Errorf("batch %d from the wrong log", i)
		}
	}
}

func TestEngineDiscoversNewLogs(t *testing.T) {
	m := memfeed.New()
	rec := &recorder{}
	e := startEngine(t, Config{Source: m, Materializer: rec})
	waitReady(t, e)

	a := m.Writer("a")
	appendN(t, a, 2)
	b := m.Writer("b")
	appendN(t, b, 1)

	eventually(t, func() bool { return len(rec.Entries()) == 3 }, "entries of both logs")
	waitReady(t, e)

	cursors := e.Cursors()
	if len(cursors) != 2 || cursors[0].Max != 2 || cursors[1].Max != 1 {
		t.Errorf("cursors = %+v", cursors)
	}
}

func TestEngineDefersSparseReplica(t *testing.T) {
	m := memfeed.New()
	r := m.Replica(domain.LogIDFromName("remote"))
	r.Announce(3)
	r.Download(0, []byte("a"))
	r.Download(1, []byte("b"))

	rec := &recorder{}
	e := startEngine(t, Config{Source: m, Materializer: rec})
	waitReady(t, e)

	if got := rec.Calls(); got != 0 {
		t.Fatalf("materialized %d batches of a partially available window", got)
	}
	if c := e.Cursors(); len(c) != 0 && c[0].Max != 0 {
		t.Fatalf("cursor moved over a gap: %+v", c)
	}

	r.Download(2, []byte("c"))
	eventually(t, func() bool { return len(rec.Entries()) == 3 }, "replica entries")
	if got := seqs(rec.Entries()); !equalSeqs(got, []uint32{0, 1, 2}) {
		t.Errorf("seqs = %v", got)
	}
}

func TestEngineCoalescesTriggers(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 1)

	rec := holding()
	e := startEngine(t, Config{Source: m, Materializer: rec})
	<-rec.entered

	for i := 0; i < 10; i++ {
		appendN(t, w, 1)
	}
	close(rec.hold)
	waitReady(t, e)

	batches := rec.Batches()
	if len(batches) != 2 || len(batches[0]) != 1 || len(batches[1]) != 10 {
		t.Fatalf("expected batches of 1 and 10, got %d batches", len(batches))
	}
	if got := seqs(rec.Entries()); len(got) != 11 || got[10] != 10 {
		t.Errorf("seqs = %v", got)
	}
}

func TestEngineCheckpointsEveryBatch(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 5)

	mem := memory.NewMemoryStorage()
	repo := memory.NewCheckpointRepo(mem, "idx")
	e := startEngine(t, Config{Source: m, Materializer: &recorder{}, Checkpoints: repo, MaxBatch: 2})
	waitReady(t, e)

	if got := mem.Writes("idx"); got != 3 {
		t.Errorf("checkpoint writes = %d, want 3", got)
	}
	set, version := storedCheckpoint(t, repo)
	if version != DefaultVersion {
		t.Errorf("version = %d, want %d", version, DefaultVersion)
	}
	if c, _ := set.Get(w.ID()); c.Max != 5 {
		t.Errorf("stored max = %d, want 5", c.Max)
	}
}

func TestEngineResumesFromCheckpoint(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 5)

	set := cursor.NewSet()
	set.Ensure(w.ID())
	_, _ = set.Advance(w.ID(), 2)
	repo := memory.NewCheckpointStore()
	_ = repo.Store(context.Background(), checkpoint.Encode(set, DefaultVersion))

	rec := &recorder{}
	e := startEngine(t, Config{Source: m, Materializer: rec, Checkpoints: repo})
	waitReady(t, e)

	if got := seqs(rec.Entries()); !equalSeqs(got, []uint32{2, 3, 4}) {
		t.Errorf("seqs = %v, want [2 3 4]", got)
	}
}

func TestEngineReplaysBatchAfterFailedCheckpoint(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 6)

	repo := memory.NewCheckpointStore()
	store := &flakyStore{inner: repo, failAt: 2}
	rec := &recorder{}
	e := startEngine(t, Config{Source: m, Materializer: rec, Checkpoints: store, MaxBatch: 2})

	eventually(t, func() bool { return e.GetState().Status == domain.StatusError }, "error status")
	if got := seqs(rec.Entries()); !equalSeqs(got, []uint32{0, 1, 2, 3}) {
		t.Fatalf("first run seqs = %v", got)
	}
	var serr *StorageError
	if !errors.As(e.GetState().Context.Error, &serr) {
		t.Errorf("context error = %v, want StorageError", e.GetState().Context.Error)
	}
	_ = e.Close()

	// The second batch was materialized but never checkpointed.
	rec2 := &recorder{}
	e2 := startEngine(t, Config{Source: m, Materializer: rec2, Checkpoints: repo, MaxBatch: 2})
	waitReady(t, e2)

	if got := seqs(rec2.Entries()); !equalSeqs(got, []uint32{2, 3, 4, 5}) {
		t.Errorf("replay seqs = %v, want [2 3 4 5]", got)
	}
}

func TestEngineFetchErrorHalts(t *testing.T) {
	m := memfeed.New()
	store := &flakyStore{inner: memory.NewCheckpointStore(), fetchErr: errors.New("connection refused")}

	e := newEngine(t, Config{Source: m, Materializer: &recorder{}, Checkpoints: store})
	var errorsSeen atomic.Int32
	e.SubscribeType(emitter.EventError, func(emitter.Event) { errorsSeen.Add(1) })
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := e.Ready(context.Background())
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("Ready = %v, want ErrHalted", err)
	}
	var serr *StorageError
	if !errors.As(err, &serr) || serr.Op != "fetch checkpoint" {
		t.Errorf("Ready = %v, want wrapped fetch StorageError", err)
	}

	state := e.GetState()
	if state.Status != domain.StatusError || state.Context.Error == nil {
		t.Errorf("state = %+v", state)
	}
	if got := errorsSeen.Load(); got != 1 {
		t.Errorf("error events = %d, want 1", got)
	}
	if err := e.Pause(context.Background()); !errors.Is(err, ErrHalted) {
		t.Errorf("Pause after error = %v, want ErrHalted", err)
	}
}

func TestEngineCorruptCheckpointHalts(t *testing.T) {
	repo := memory.NewCheckpointStore()
	_ = repo.Store(context.Background(), []byte{1, 0})

	e := startEngine(t, Config{Source: memfeed.New(), Materializer: &recorder{}, Checkpoints: repo})
	err := e.Ready(context.Background())
	if !errors.Is(err, checkpoint.ErrCorruptCheckpoint) {
		t.Errorf("Ready = %v, want ErrCorruptCheckpoint", err)
	}
}

func TestEngineMaterializerErrorHalts(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 2)

	boom := errors.New("view unavailable")
	mem := memory.NewMemoryStorage()
	rec := &recorder{err: boom}
	e := startEngine(t, Config{Source: m, Materializer: rec, Checkpoints: memory.NewCheckpointRepo(mem, "idx")})

	err := e.Ready(context.Background())
	if !errors.Is(err, boom) || !errors.Is(err, ErrHalted) {
		t.Fatalf("Ready = %v, want halted by materializer error", err)
	}
	var berr *BatchError
	if !errors.As(err, &berr) || berr.At != 0 || berr.To != 2 {
		t.Errorf("Ready = %v, want BatchError [0, 2)", err)
	}
	if got := mem.Writes("idx"); got != 0 {
		t.Errorf("checkpoint written %d times after a failed batch", got)
	}

	appendN(t, w, 1)
	time.Sleep(20 * time.Millisecond)
	if got := rec.Calls(); got != 1 {
		t.Errorf("halted engine kept indexing: %d calls", got)
	}
}

func TestEngineStateFuncs(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 2)

	var mu sync.Mutex
	var saved []byte
	cfg := Config{
		Source:       m,
		Materializer: &recorder{},
		FetchState: func(context.Context) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			return saved, nil
		},
		StoreState: func(_ context.Context, data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			saved = data
			return nil
		},
	}
	e := startEngine(t, cfg)
	waitReady(t, e)

	mu.Lock()
	defer mu.Unlock()
	set, _, err := checkpoint.Decode(saved)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c, _ := set.Get(w.ID()); c.Max != 2 {
		t.Errorf("saved max = %d, want 2", c.Max)
	}
}

func TestEngineCloseRemovesListeners(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")

	e := startEngine(t, Config{Source: m, Materializer: &recorder{}})
	waitReady(t, e)
	if got := w.Watchers(); got != 1 {
		t.Fatalf("watchers = %d, want 1", got)
	}

	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := w.Watchers(); got != 0 {
		t.Errorf("watchers after Close = %d", got)
	}
	if err := e.Ready(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ready after Close = %v, want ErrClosed", err)
	}
}

func TestEngineCloseAfterContextCancel(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 1)

	rec := holding()
	defer close(rec.hold)
	e := newEngine(t, Config{Source: m, Materializer: rec})

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.entered

	paused := make(chan error, 1)
	e.OnPause(func(err error) { paused <- err })
	cancel()
	<-e.loop.Done()

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-paused:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pause callback = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pause callback not released by Close")
	}
	if got := w.Watchers(); got != 0 {
		t.Errorf("watchers after Close = %d", got)
	}
	if err := e.Ready(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ready after Close = %v, want ErrClosed", err)
	}
}

func TestEngineMetrics(t *testing.T) {
	m := memfeed.New()
	w := m.Writer("w")
	appendN(t, w, 4)

	e := startEngine(t, Config{Source: m, Materializer: &recorder{}, MaxBatch: 2})
	waitReady(t, e)

	metrics := e.Metrics()
	if len(metrics.StateHistory) == 0 {
		t.Error("expected recorded transitions")
	}
	if metrics.AverageBatchTime < 0 {
		t.Errorf("AverageBatchTime = %v", metrics.AverageBatchTime)
	}
}
