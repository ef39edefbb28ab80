package sched

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// CancelHandle stops a scheduled callback. Cancel is idempotent and, once it
// returns, the callback will not run again, even if a tick is already queued.
type CancelHandle interface {
	Cancel()
}

// Scheduler creates timers whose callbacks run on the owner's event loop.
type Scheduler interface {
	// SchedulePeriodic runs fn every interval until cancelled.
	SchedulePeriodic(interval time.Duration, fn func()) CancelHandle
	// ScheduleOnce runs fn once after delay unless cancelled first.
	ScheduleOnce(delay time.Duration, fn func()) CancelHandle
}

// LoopScheduler backs timers with time.Ticker/time.Timer and posts each
// firing onto a Poster.
type LoopScheduler struct {
	poster Poster
}

// NewLoopScheduler returns a Scheduler that delivers onto p.
func NewLoopScheduler(p Poster) *LoopScheduler {
	return &LoopScheduler{poster: p}
}

// handle is the CancelHandle for LoopScheduler timers.
type handle struct {
	mu        sync.Mutex
	cancelled bool
	stop      chan struct{}
	once      sync.Once
}

func newHandle() *handle {
	return &handle{stop: make(chan struct{})}
}

func (h *handle) Cancel() {
	h.once.Do(func() {
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		close(h.stop)
	})
}

func (h *handle) live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.cancelled
}

// guard wraps fn so a callback queued before Cancel is dropped.
func (h *handle) guard(fn func()) func() {
	return func() {
		if h.live() {
			fn()
		}
	}
}

// SchedulePeriodic starts a ticker goroutine that posts fn every interval.
func (s *LoopScheduler) SchedulePeriodic(interval time.Duration, fn func()) CancelHandle {
	h := newHandle()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				if !s.poster.Post(h.guard(fn)) {
					return
				}
			}
		}
	}()
	return h
}

// ScheduleOnce posts fn after delay.
func (s *LoopScheduler) ScheduleOnce(delay time.Duration, fn func()) CancelHandle {
	h := newHandle()
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-h.stop:
		case <-timer.C:
			s.poster.Post(h.guard(fn))
		}
	}()
	return h
}
