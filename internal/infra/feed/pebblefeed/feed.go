// Package pebblefeed is a durable log source: any number of named
// append-only logs persisted in one Pebble database.
//
// Logs are enumerated in creation order, which survives restarts. Every entry
// is stored locally, so Has is true for any range below Len.
package pebblefeed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/core/feed"
	pebblestore "github.com/vietddude/logindex/internal/infra/storage/pebble"
)

var (
	// ErrCorruptRecord is returned when a stored entry fails its checksum.
	ErrCorruptRecord = errors.New("corrupt log record")
	// ErrOutOfRange is returned for reads past the end of a log.
	ErrOutOfRange = errors.New("range out of bounds")
)

// Source is the set of logs stored in one database.
type Source struct {
	db *pebblestore.DB

	mu        sync.RWMutex
	logs      []*Log
	byID      map[domain.LogID]*Log
	listeners map[int]func(feed.Log)
	nextID    int
}

// Open loads the registered logs of db.
func Open(db *pebblestore.DB) (*Source, error) {
	s := &Source{
		db:        db,
		byID:      make(map[domain.LogID]*Log),
		listeners: make(map[int]func(feed.Log)),
	}

	lower, upper := regBounds()
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("failed to scan log registry: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := domain.LogIDFromBytes(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("bad registry entry: %w", err)
		}
		l := &Log{src: s, id: id, watchers: make(map[int]func())}
		meta, err := db.Get(keyMeta(id))
		switch {
		case err == nil && len(meta) >= 4:
			l.length = binary.BigEndian.Uint32(meta[:4])
		case err != nil && !pebblestore.IsNotFound(err):
			return nil, fmt.Errorf("failed to load log %s: %w", id.Short(), err)
		}
		s.logs = append(s.logs, l)
		s.byID[id] = l
	}
	return s, iter.Error()
}

// Ready returns at once; the source is fully loaded by Open.
func (s *Source) Ready(ctx context.Context) error {
	return ctx.Err()
}

func (s *Source) Logs() []feed.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Log, len(s.logs))
	for i, l := range s.logs {
		out[i] = l
	}
	return out
}

func (s *Source) OnLog(fn func(feed.Log)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Get returns a log by id.
func (s *Source) Get(id domain.LogID) (*Log, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byID[id]
	return l, ok
}

// Writer returns the log named name, registering it on first use.
func (s *Source) Writer(name string) (*Log, error) {
	id := domain.LogIDFromName(name)

	s.mu.Lock()
	if l, ok := s.byID[id]; ok {
		s.mu.Unlock()
		return l, nil
	}
	if err := s.db.Set(keyReg(uint32(len(s.logs))), id[:]); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to register log %s: %w", name, err)
	}
	l := &Log{src: s, id: id, watchers: make(map[int]func())}
	s.logs = append(s.logs, l)
	s.byID[id] = l
	listeners := make([]func(feed.Log), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(l)
	}
	return l, nil
}

// Log is one durable append-only log.
type Log struct {
	src *Source
	id  domain.LogID

	appendMu sync.Mutex

	mu       sync.RWMutex
	length   uint32
	watchers map[int]func()
	nextID   int
}

func (l *Log) ID() domain.LogID {
	return l.id
}

func (l *Log) Len() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.length
}

func (l *Log) Has(start, end uint32) bool {
	return start <= end && end <= l.Len()
}

func (l *Log) GetBatch(ctx context.Context, start, end uint32) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.Has(start, end) {
		return nil, fmt.Errorf("%w: %s [%d, %d)", ErrOutOfRange, l.id.Short(), start, end)
	}
	if start == end {
		return nil, nil
	}

	iter, err := l.src.db.NewIter(&pebble.IterOptions{
		LowerBound: keyEntry(l.id, start),
		UpperBound: keyEntry(l.id, end),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([][]byte, 0, end-start)
	seq := start
	for iter.First(); iter.Valid(); iter.Next() {
		v, ok := decodeRecord(iter.Value())
		if !ok {
			return nil, fmt.Errorf("%w: %s@%d", ErrCorruptRecord, l.id, seq)
		}
		out = append(out, v)
		seq++
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if seq != end {
		return nil, fmt.Errorf("%w: %s has %d of %d entries", ErrCorruptRecord, l.id.Short(), seq-start, end-start)
	}
	return out, nil
}

func (l *Log) Watch(fn func()) (cancel func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.watchers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.watchers, id)
		l.mu.Unlock()
	}
}

// Append writes values as one atomic batch and returns the sequence number
// of the first one.
func (l *Log) Append(ctx context.Context, values ...[]byte) (uint32, error) {
	if len(values) == 0 {
		return l.Len(), nil
	}
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	first := l.Len()
	next := first
	b := l.src.db.NewBatch()
	defer b.Close()

	for _, v := range values {
		if err := b.Set(keyEntry(l.id, next), encodeRecord(v), nil); err != nil {
			return 0, err
		}
		next++
	}
	var meta [4]byte
	binary.BigEndian.PutUint32(meta[:], next)
	if err := b.Set(keyMeta(l.id), meta[:], nil); err != nil {
		return 0, err
	}
	if err := l.src.db.CommitBatch(ctx, b); err != nil {
		return 0, fmt.Errorf("failed to append to %s: %w", l.id.Short(), err)
	}

	l.mu.Lock()
	l.length = next
	fns := make([]func(), 0, len(l.watchers))
	for _, fn := range l.watchers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return first, nil
}
