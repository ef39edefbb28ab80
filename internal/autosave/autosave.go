// Package autosave periodically persists the live session on a cron
// schedule.
package autosave

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/fieldnote/internal/sched"
)

// DefaultTimeout bounds a single save.
const DefaultTimeout = 10 * time.Second

// cronParser accepts standard 5-field expressions (minute, hour, dom, month,
// dow) and descriptors such as "@every 30s".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Saver is the session being saved. *session.Engine implements it.
type Saver interface {
	SessionActive() bool
	Save(ctx context.Context) error
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Expr      string
	Saver     Saver
	Clock     sched.Clock
	Scheduler sched.Scheduler // fires on the engine loop
	Timeout   time.Duration
}

// Scheduler saves the session at every cron fire time while the session is
// active. All methods must be called from the engine loop.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	saver    Saver
	clock    sched.Clock
	timers   sched.Scheduler
	timeout  time.Duration

	handle  sched.CancelHandle
	saves   int
	lastErr error
}

// New parses the expression and creates a stopped Scheduler.
func New(opts Opts) (*Scheduler, error) {
	if opts.Saver == nil {
		return nil, fmt.Errorf("autosave: saver is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("autosave: scheduler is required")
	}
	schedule, err := cronParser.Parse(opts.Expr)
	if err != nil {
		return nil, fmt.Errorf("autosave: parse %q: %w", opts.Expr, err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = sched.SystemClock{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{
		expr:     opts.Expr,
		schedule: schedule,
		saver:    opts.Saver,
		clock:    clock,
		timers:   opts.Scheduler,
		timeout:  timeout,
	}, nil
}

// Start arms the next fire. No-op when already running.
func (s *Scheduler) Start() {
	if s.handle != nil {
		return
	}
	log.Printf("autosave: scheduled %q", s.expr)
	s.arm()
}

// Stop cancels the pending fire.
func (s *Scheduler) Stop() {
	if s.handle != nil {
		s.handle.Cancel()
		s.handle = nil
	}
}

// Next returns the next fire time after now.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.clock.Now())
}

// Saves returns the number of successful autosaves.
func (s *Scheduler) Saves() int { return s.saves }

// LastError returns the error of the most recent failed autosave.
func (s *Scheduler) LastError() error { return s.lastErr }

func (s *Scheduler) arm() {
	now := s.clock.Now()
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		d = 0
	}
	s.handle = s.timers.ScheduleOnce(d, s.fire)
}

func (s *Scheduler) fire() {
	if s.saver.SessionActive() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.saver.Save(ctx)
		cancel()
		if err != nil {
			s.lastErr = err
			log.Printf("autosave: %v", err)
		} else {
			s.saves++
			s.lastErr = nil
		}
	}
	s.arm()
}
