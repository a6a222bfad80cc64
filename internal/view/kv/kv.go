// Package kv materializes a multi-writer key/value view into Badger.
//
// Entries are JSON documents of the form
//
//	{"key": "foo", "value": ..., "links": ["<id>", ...]}
//
// A document replaces the documents it links to. The heads of a key are the
// documents no other document links to, so concurrent writes without links
// between them show up as several heads (a fork) until a later document
// links them all. A document may carry its own "id"; otherwise the entry id
// "<hexkey>@<seq>" is used. Ids and links may be JSON strings or numbers.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/indexing/metrics"
	badgerstore "github.com/vietddude/logindex/internal/infra/storage/badger"
)

// Doc is the JSON shape of an entry.
type Doc struct {
	ID    string          `json:"id,omitempty"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	Links []string        `json:"links,omitempty"`
}

// UnmarshalJSON accepts ids and links written as strings or numbers.
func (d *Doc) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    json.RawMessage   `json:"id"`
		Key   string            `json:"key"`
		Value json.RawMessage   `json:"value"`
		Links []json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	id, err := docID(raw.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	links := make([]string, 0, len(raw.Links))
	for i, l := range raw.Links {
		link, err := docID(l)
		if err != nil {
			return fmt.Errorf("links[%d]: %w", i, err)
		}
		if link != "" {
			links = append(links, link)
		}
	}
	if len(links) == 0 {
		links = nil
	}

	*d = Doc{ID: id, Key: raw.Key, Value: raw.Value, Links: links}
	return nil
}

func docID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("want a string or a number, got %s", raw)
	}
	return n.String(), nil
}

// Head is one current value of a key.
type Head struct {
	ID    string
	Value json.RawMessage
}

// View is a key/value view stored under its own prefix of a Badger database.
type View struct {
	db     *badgerstore.DB
	prefix []byte
	log    *slog.Logger
}

// New returns the view named name. Views with different names can share db.
func New(db *badgerstore.DB, name string, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		db:     db,
		prefix: []byte("view/" + name + "/"),
		log:    logger.With("component", "kv", "view", name),
	}
}

const sep = 0x00

func (v *View) key(parts ...string) []byte {
	k := append([]byte(nil), v.prefix...)
	for i, p := range parts {
		if i > 0 {
			k = append(k, sep)
		}
		k = append(k, p...)
	}
	return k
}

func (v *View) headPrefix(key string) []byte {
	return append(v.key("h", key), sep)
}

func (v *View) headKey(key, id string) []byte { return v.key("h", key, id) }
func (v *View) linkedKey(id string) []byte    { return v.key("l", id) }
func (v *View) docKey(id string) []byte       { return v.key("d", id) }

// Batch applies entries in one transaction. Entries that are not documents
// with a key are skipped.
func (v *View) Batch(ctx context.Context, entries []domain.Entry) error {
	start := time.Now()
	err := v.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, e := range entries {
			var doc Doc
			if err := json.Unmarshal(e.Value, &doc); err != nil || doc.Key == "" {
				v.log.Debug("skipping entry without key", "id", e.ID())
				continue
			}
			if doc.ID == "" {
				doc.ID = e.ID()
			}
			if err := v.apply(txn, doc); err != nil {
				return fmt.Errorf("apply %s: %w", doc.ID, err)
			}
		}
		return nil
	})
	metrics.StorageOpLatency.WithLabelValues("badger", "batch").Observe(time.Since(start).Seconds())
	return err
}

func (v *View) apply(txn *badger.Txn, doc Doc) error {
	for _, link := range doc.Links {
		if err := txn.Set(v.linkedKey(link), nil); err != nil {
			return err
		}
		if err := txn.Delete(v.headKey(doc.Key, link)); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := txn.Set(v.docKey(doc.ID), raw); err != nil {
		return err
	}

	// A document that arrives after something already linked it is not a head.
	_, err = txn.Get(v.linkedKey(doc.ID))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return txn.Set(v.headKey(doc.Key, doc.ID), nil)
	default:
		return err
	}
}

// Get returns the heads of key ordered by id.
func (v *View) Get(ctx context.Context, key string) ([]Head, error) {
	var heads []Head
	err := v.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := v.headPrefix(key)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			id := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			head := Head{ID: id}

			item, err := txn.Get(v.docKey(id))
			if err != nil {
				return err
			}
			err = item.Value(func(raw []byte) error {
				var doc Doc
				if err := json.Unmarshal(raw, &doc); err != nil {
					return err
				}
				head.Value = doc.Value
				return nil
			})
			if err != nil {
				return err
			}
			heads = append(heads, head)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].ID < heads[j].ID })
	return heads, nil
}

// IDs returns the ids of the heads of key.
func (v *View) IDs(ctx context.Context, key string) ([]string, error) {
	heads, err := v.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(heads))
	for i, h := range heads {
		ids[i] = h.ID
	}
	return ids, nil
}

// ClearIndex drops every key of the view.
func (v *View) ClearIndex(ctx context.Context) error {
	if err := v.db.DropPrefix(ctx, v.prefix); err != nil {
		return fmt.Errorf("clear view: %w", err)
	}
	v.log.Info("view cleared")
	return nil
}
