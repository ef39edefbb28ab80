package sched

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Clock and Scheduler for tests. Time only moves
// when Advance or Set is called, and due callbacks run synchronously on the
// caller's goroutine in fire-time order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	owner     *Manual
	id        int
	next      time.Time
	interval  time.Duration // 0 for one-shot
	fn        func()
	cancelled bool
}

func (t *manualTimer) Cancel() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.cancelled = true
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SchedulePeriodic registers a repeating timer.
func (m *Manual) SchedulePeriodic(interval time.Duration, fn func()) CancelHandle {
	return m.add(interval, interval, fn)
}

// ScheduleOnce registers a one-shot timer.
func (m *Manual) ScheduleOnce(delay time.Duration, fn func()) CancelHandle {
	return m.add(delay, 0, fn)
}

func (m *Manual) add(delay, interval time.Duration, fn func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{owner: m, id: m.seq, next: m.now.Add(delay), interval: interval, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of live timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, firing every timer that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.nextDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = t.next
		if t.interval > 0 {
			t.next = t.next.Add(t.interval)
		} else {
			t.cancelled = true
		}
		fn := t.fn
		m.mu.Unlock()
		fn()
	}
}

// nextDue returns the earliest live timer due at or before target and drops
// cancelled timers. Callers hold m.mu.
func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].next.Equal(m.timers[j].next) {
			return m.timers[i].id < m.timers[j].id
		}
		return m.timers[i].next.Before(m.timers[j].next)
	})
	if len(m.timers) == 0 || m.timers[0].next.After(target) {
		return nil
	}
	return m.timers[0]
}
