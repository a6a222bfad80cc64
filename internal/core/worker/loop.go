// Package worker provides the serial executor the indexing engine runs on.
package worker

import (
	"context"
	"sync"
)

// Loop runs posted tasks one at a time, in post order, on a single goroutine.
// Post never blocks, so tasks may post further tasks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// NewLoop creates a loop. Call Run to start executing tasks.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn. It reports false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes tasks until ctx is done. Tasks that have not run by then stay
// queued for Drain.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for i, fn := range batch {
			if ctx.Err() != nil {
				l.stop(batch[i:])
				return
			}
			fn()
		}

		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			l.stop(nil)
			return
		case <-l.wake:
		}
	}
}

// stop refuses further posts and puts unrun tasks back in front of the queue.
func (l *Loop) stop(unrun []func()) {
	l.mu.Lock()
	l.closed = true
	l.queue = append(unrun, l.queue...)
	l.mu.Unlock()
}

// Drain returns the tasks left over when Run stopped, in post order, and
// empties the queue. It returns nil while Run is active.
func (l *Loop) Drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		return nil
	}
	q := l.queue
	l.queue = nil
	return q
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Await runs fn on its own goroutine and posts then(err) back to the loop.
// It is how a task suspends on a blocking call without holding the loop.
func (l *Loop) Await(ctx context.Context, fn func(ctx context.Context) error, then func(err error)) {
	go func() {
		err := fn(ctx)
		l.Post(func() { then(err) })
	}()
}
