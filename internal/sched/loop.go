// Package sched provides the cooperative event loop every engine callback
// runs on, and cancellable timers that deliver onto it.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// DefaultQueueSize is the loop's buffered queue length.
const DefaultQueueSize = 256

// ErrLoopStopped is returned when posting to a loop that is no longer running.
var ErrLoopStopped = errors.New("sched: loop stopped")

// Loop runs posted closures one at a time on a single goroutine. Handlers never
// interleave, so state touched only from the loop needs no locks.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// NewLoop creates a loop with the given queue size (DefaultQueueSize if <= 0).
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Run processes closures until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

// invoke runs fn, keeping the loop alive if it panics.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("sched: loop handler panic: %v", r)
		}
	}()
	fn()
}

// Post queues fn. It returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sched: wait for loop: %w", ctx.Err())
	case <-l.done:
		return ErrLoopStopped
	}
}

// Poster delivers a closure onto the caller's event loop.
type Poster interface {
	Post(fn func()) bool
}

// Inline runs posted closures immediately on the calling goroutine. Useful in
// tests and single-threaded tools.
type Inline struct{}

// Post runs fn synchronously.
func (Inline) Post(fn func()) bool {
	fn()
	return true
}
