package session

import (
	"fmt"
	"time"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// DefaultTick is the session clock resolution.
const DefaultTick = time.Second

// Clock tracks the elapsed time of a session. It is inactive until Start and
// ticks once per interval while active. Not safe for concurrent use; drive it
// from the event loop.
type Clock struct {
	now   sched.Clock
	sched sched.Scheduler
	tick  time.Duration

	active  bool
	start   time.Time
	elapsed int
	handle  sched.CancelHandle
}

// NewClock creates an inactive Clock. A non-positive tick uses DefaultTick.
func NewClock(now sched.Clock, s sched.Scheduler, tick time.Duration) *Clock {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Clock{now: now, sched: s, tick: tick}
}

// Start begins a new elapsed-time base. It fails with record.ErrInvalidState
// when the clock is already active.
func (c *Clock) Start() error {
	if c.active {
		return fmt.Errorf("session: clock already running: %w", record.ErrInvalidState)
	}
	c.active = true
	c.start = c.now.Now()
	c.elapsed = 0
	c.handle = c.sched.SchedulePeriodic(c.tick, func() {
		c.elapsed++
	})
	return nil
}

// Stop cancels the tick and freezes the elapsed count. No-op when inactive.
func (c *Clock) Stop() {
	if !c.active {
		return
	}
	c.active = false
	if c.handle != nil {
		c.handle.Cancel()
		c.handle = nil
	}
}

// Active reports whether the clock is running.
func (c *Clock) Active() bool { return c.active }

// Elapsed returns the number of ticks since Start.
func (c *Clock) Elapsed() int { return c.elapsed }

// StartTime returns the time of the last Start, or the zero time.
func (c *Clock) StartTime() time.Time { return c.start }
