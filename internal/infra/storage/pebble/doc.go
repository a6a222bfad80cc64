// Package pebblestore wraps Pebble with an fsync policy, batches and a
// metrics hook, and implements the checkpoint store on top of it.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/checkpoints",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	store := pebblestore.NewCheckpointRepo(db, "kv")
//	_ = store.Store(ctx, blob)
//	blob, err = store.Fetch(ctx)
package pebblestore
