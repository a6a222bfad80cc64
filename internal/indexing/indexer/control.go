package indexer

import (
	"context"

	"github.com/vietddude/logindex/internal/core/domain"
)

// Pause blocks until the engine reaches a pass boundary and is paused. A
// batch already in flight is materialized and checkpointed first.
func (e *Engine) Pause(ctx context.Context) error {
	done := make(chan error, 1)
	e.OnPause(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnPause requests a pause and calls fn on the engine loop once it is in
// effect. Requests made while paused or already pausing are idempotent.
func (e *Engine) OnPause(fn func(error)) {
	if !e.loop.Post(func() { e.pause(fn) }) {
		fn(ErrClosed)
	}
}

func (e *Engine) pause(fn func(error)) {
	switch {
	case e.closed:
		fn(ErrClosed)
	case e.status == domain.StatusError:
		fn(halted(e.progress.Error))
	case e.status == domain.StatusPaused:
		fn(nil)
	case e.status == domain.StatusIdle:
		e.pauseWaiters = append(e.pauseWaiters, fn)
		e.enterPause()
	default:
		e.wantPause = true
		e.pauseWaiters = append(e.pauseWaiters, fn)
	}
}

// Resume leaves the paused status and starts a fresh pass. It is a no-op
// unless the engine is paused.
func (e *Engine) Resume() {
	e.loop.Post(func() {
		if e.closed || e.status != domain.StatusPaused {
			return
		}
		e.log.Debug("resuming")
		e.transition(domain.StatusIdle, "resume", true)
		e.run(false)
	})
}

// Ready blocks until the engine is quiescent: idle with no pending work.
// It returns at once if the engine is idle already.
func (e *Engine) Ready(ctx context.Context) error {
	done := make(chan error, 1)
	e.OnReady(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnReady calls fn on the engine loop at the next quiescent point, or right
// away if the engine is idle.
func (e *Engine) OnReady(fn func(error)) {
	if !e.loop.Post(func() { e.ready(fn) }) {
		fn(ErrClosed)
	}
}

func (e *Engine) ready(fn func(error)) {
	switch {
	case e.closed:
		fn(ErrClosed)
	case e.status == domain.StatusError:
		fn(halted(e.progress.Error))
	case e.status == domain.StatusIdle:
		fn(nil)
	default:
		e.readyWaiters = append(e.readyWaiters, fn)
	}
}
