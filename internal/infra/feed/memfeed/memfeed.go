// Package memfeed is an in-memory feed.Source.
//
// Logs are either local (written through Append, always fully available) or
// replicas whose length is announced before their entries are downloaded,
// which models sparse replication.
package memfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vietddude/logindex/internal/core/domain"
	"github.com/vietddude/logindex/internal/core/feed"
)

// ErrNotAvailable is returned by GetBatch for ranges not held locally.
var ErrNotAvailable = errors.New("range not available locally")

// Multi is a set of in-memory logs.
type Multi struct {
	mu        sync.RWMutex
	logs      []*Log
	byID      map[domain.LogID]*Log
	listeners map[int]func(feed.Log)
	nextID    int
	ready     chan struct{}
	readyOnce sync.Once
}

// New returns a source that is ready immediately.
func New() *Multi {
	m := NewDeferred()
	m.Open()
	return m
}

// NewDeferred returns a source whose Ready blocks until Open is called.
func NewDeferred() *Multi {
	return &Multi{
		byID:      make(map[domain.LogID]*Log),
		listeners: make(map[int]func(feed.Log)),
		ready:     make(chan struct{}),
	}
}

// Open marks the source ready.
func (m *Multi) Open() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Multi) Ready(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Multi) Logs() []feed.Log {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]feed.Log, len(m.logs))
	for i, l := range m.logs {
		out[i] = l
	}
	return out
}

func (m *Multi) OnLog(fn func(feed.Log)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Writer returns the local log with the given name, creating it if needed.
func (m *Multi) Writer(name string) *Log {
	return m.add(domain.LogIDFromName(name), true)
}

// Replica returns the replica log with the given id, creating it if needed.
func (m *Multi) Replica(id domain.LogID) *Log {
	return m.add(id, false)
}

// Get returns a log by id.
func (m *Multi) Get(id domain.LogID) (*Log, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.byID[id]
	return l, ok
}

func (m *Multi) add(id domain.LogID, local bool) *Log {
	m.mu.Lock()
	if l, ok := m.byID[id]; ok {
		m.mu.Unlock()
		return l
	}
	l := &Log{id: id, local: local, watchers: make(map[int]func())}
	m.logs = append(m.logs, l)
	m.byID[id] = l
	listeners := make([]func(feed.Log), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(l)
	}
	return l
}

// Log is one in-memory append-only log.
type Log struct {
	id    domain.LogID
	local bool

	mu       sync.RWMutex
	entries  [][]byte
	have     []bool
	watchers map[int]func()
	nextID   int
}

func (l *Log) ID() domain.LogID {
	return l.id
}

func (l *Log) Len() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint32(len(l.entries))
}

func (l *Log) Has(start, end uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if start > end || int(end) > len(l.have) {
		return false
	}
	for _, ok := range l.have[start:end] {
		if !ok {
			return false
		}
	}
	return true
}

func (l *Log) GetBatch(ctx context.Context, start, end uint32) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.Has(start, end) {
		return nil, fmt.Errorf("%w: %s [%d, %d)", ErrNotAvailable, l.id.Short(), start, end)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([][]byte, 0, end-start)
	for _, v := range l.entries[start:end] {
		out = append(out, append([]byte(nil), v...))
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

// Watchers returns the number of registered watchers.
func (l *Log) Watchers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.watchers)
}

// Append adds values to a local log and returns the sequence number of the
// first one.
func (l *Log) Append(values ...[]byte) (uint32, error) {
	if !l.local {
		return 0, fmt.Errorf("log %s is a replica", l.id.Short())
	}
	l.mu.Lock()
	seq := uint32(len(l.entries))
	for _, v := range values {
		l.entries = append(l.entries, append([]byte(nil), v...))
		l.have = append(l.have, true)
	}
	l.mu.Unlock()

	l.notify()
	return seq, nil
}

// AppendJSON appends the JSON encoding of each value.
func (l *Log) AppendJSON(values ...any) (uint32, error) {
	raw := make([][]byte, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal entry: %w", err)
		}
		raw[i] = b
	}
	return l.Append(raw...)
}

// Announce grows a replica to length without making new entries available.
func (l *Log) Announce(length uint32) {
	l.mu.Lock()
	for uint32(len(l.entries)) < length {
		l.entries = append(l.entries, nil)
		l.have = append(l.have, false)
	}
	l.mu.Unlock()

	l.notify()
}

// Download makes the entry at seq available locally, growing the log if needed.
func (l *Log) Download(seq uint32, value []byte) {
	l.mu.Lock()
	for uint32(len(l.entries)) <= seq {
		l.entries = append(l.entries, nil)
		l.have = append(l.have, false)
	}
	l.entries[seq] = append([]byte(nil), value...)
	l.have[seq] = true
	l.mu.Unlock()

	l.notify()
}

func (l *Log) notify() {
	l.mu.RLock()
	fns := make([]func(), 0, len(l.watchers))
	for _, fn := range l.watchers {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Sync replicates every locally held entry of a to b and of b to a. Logs
// missing on either side are created as replicas; local logs are never
// written by replication.
func Sync(a, b *Multi) {
	copyInto(a, b)
	copyInto(b, a)
}

func copyInto(src, dst *Multi) {
	src.mu.RLock()
	logs := append([]*Log(nil), src.logs...)
	src.mu.RUnlock()

	for _, l := range logs {
		target := dst.Replica(l.id)
		if target.local {
			continue
		}
		l.mu.RLock()
		entries := append([][]byte(nil), l.entries...)
		have := append([]bool(nil), l.have...)
		l.mu.RUnlock()

		for seq, ok := range have {
			if ok && !target.Has(uint32(seq), uint32(seq)+1) {
				target.Download(uint32(seq), entries[seq])
			}
		}
	}
}
