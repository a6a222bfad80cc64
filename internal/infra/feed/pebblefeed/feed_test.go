package pebblefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/vietddude/logindex/internal/core/feed"
	pebblestore "github.com/vietddude/logindex/internal/infra/storage/pebble"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func TestAppendAndGetBatch(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	ctx := context.Background()

	src, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l, err := src.Writer("w")
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}

	seq, err := l.Append(ctx, []byte("a"), []byte("b"), []byte("c"))
	if err != nil || seq != 0 {
		t.Fatalf("Append = %d, %v", seq, err)
	}
	if seq, _ := l.Append(ctx, []byte("d")); seq != 3 {
		t.Errorf("second Append seq = %d, want 3", seq)
	}
	if l.Len() != 4 || !l.Has(0, 4) || l.Has(2, 5) {
		t.Fatalf("Len/Has inconsistent: len=%d", l.Len())
	}

	got, err := l.GetBatch(ctx, 1, 3)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "b" || string(got[1]) != "c" {
		t.Errorf("GetBatch = %q", got)
	}
	if _, err := l.GetBatch(ctx, 3, 9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("GetBatch past end = %v", err)
	}
}

func TestReopenKeepsLogsAndOrder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db := openDB(t, dir)
	src, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := src.Writer("b")
	a, _ := src.Writer("a")
	if _, err := b.Append(ctx, []byte("1"), []byte("2")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := a.Append(ctx, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = db.Close()

	db = openDB(t, dir)
	defer db.Close()
	src, err = Open(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	logs := src.Logs()
	if len(logs) != 2 || logs[0].ID() != b.ID() || logs[1].ID() != a.ID() {
		t.Fatalf("logs not in creation order after reopen")
	}
	if logs[0].Len() != 2 || logs[1].Len() != 1 {
		t.Errorf("lengths = %d, %d", logs[0].Len(), logs[1].Len())
	}
	vals, err := logs[0].GetBatch(ctx, 0, 2)
	if err != nil || string(vals[1]) != "2" {
		t.Errorf("GetBatch after reopen = %q, %v", vals, err)
	}
}

func TestNotifications(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	src, _ := Open(db)

	var discovered atomic.Int32
	cancel := src.OnLog(func(feed.Log) { discovered.Add(1) })

	l, _ := src.Writer("w")
	if _, err := src.Writer("w"); err != nil {
		t.Fatalf("Writer: %v", err)
	}
	if got := discovered.Load(); got != 1 {
		t.Errorf("discovery fired %d times, want 1", got)
	}

	var appended atomic.Int32
	stop := l.Watch(func() { appended.Add(1) })
	_, _ = l.Append(context.Background(), []byte("a"))
	stop()
	_, _ = l.Append(context.Background(), []byte("b"))
	if got := appended.Load(); got != 1 {
		t.Errorf("watch fired %d times, want 1", got)
	}

	cancel()
	_, _ = src.Writer("other")
	if got := discovered.Load(); got != 1 {
		t.Errorf("cancelled listener fired")
	}
}

func TestCorruptRecordDetected(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	ctx := context.Background()

	src, _ := Open(db)
	l, _ := src.Writer("w")
	_, _ = l.Append(ctx, []byte("good"), []byte("also good"))

	if err := db.Set(keyEntry(l.ID(), 1), []byte("garbage")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := l.GetBatch(ctx, 0, 2); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("GetBatch = %v, want ErrCorruptRecord", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	for _, p := range [][]byte{{}, []byte("x"), []byte(`{"key":"foo"}`)} {
		got, ok := decodeRecord(encodeRecord(p))
		if !ok || string(got) != string(p) {
			t.Errorf("round trip of %q = %q, %v", p, got, ok)
		}
	}
	if _, ok := decodeRecord([]byte{1, 2}); ok {
		t.Error("short record decoded")
	}
}
