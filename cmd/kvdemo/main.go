package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/indexing/emitter"
	"github.com/vietddude/logindex/internal/indexing/indexer"
	"github.com/vietddude/logindex/internal/infra/feed/memfeed"
	badgerstore "github.com/vietddude/logindex/internal/infra/storage/badger"
	"github.com/vietddude/logindex/internal/view/kv"
)

// kvdemo indexes two linked entries into an in-memory key/value view and
// prints the heads of the key.
func main() {
	stylelog.InitDefault(&tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	})

	if err := run(context.Background()); err != nil {
		slog.Error("kvdemo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	db, err := badgerstore.OpenInMemory()
	if err != nil {
		return err
	}
	defer db.Close()

	view := kv.New(db, "kv", slog.Default())
	logs := memfeed.New()

	engine, err := indexer.New(indexer.Config{
		Name:         "kv",
		Source:       logs,
		Materializer: view,
		Clearer:      view,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}
	engine.SubscribeType(emitter.EventStateUpdate, func(ev emitter.Event) {
		slog.Info("state", "status", ev.State.Status,
			"indexed", ev.State.Context.IndexedBlocks, "total", ev.State.Context.TotalBlocks)
	})
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()

	w := logs.Writer("local")
	seq, err := w.AppendJSON(map[string]any{"key": "foo", "value": "bax", "links": []string{}})
	if err != nil {
		return err
	}
	first := domain.Entry{LogID: w.ID(), Seq: seq}.ID()
	if _, err := w.AppendJSON(map[string]any{"key": "foo", "value": "baz", "links": []string{first}}); err != nil {
		return err
	}

	readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := engine.Ready(readyCtx); err != nil {
		return err
	}

	heads, err := view.Get(ctx, "foo")
	if err != nil {
		return err
	}
	for _, h := range heads {
		fmt.Printf("foo -> %s (%s)\n", h.Value, h.ID)
	}
	return nil
}
