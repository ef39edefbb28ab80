package voice

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
	"github.com/zulandar/fieldnote/internal/session"
)

// Restart policy defaults.
const (
	DefaultMaxRestarts = 10
	DefaultRestartBase = 250 * time.Millisecond
	DefaultRestartMax  = 30 * time.Second
)

// Actions is the part of the session engine voice commands drive.
// *session.Engine implements it.
type Actions interface {
	ActiveDataType() record.DataType
	RecordTrial(outcome record.Outcome, promptLevel, notes string) (record.TrialRecord, error)
	SetABCField(field session.ABCField, text string) error
	IncrementFrequency() (record.FrequencyEvent, error)
	StartDuration(note string) (record.DurationInterval, error)
	StopDuration() (record.DurationInterval, error)
	NextTrial() int
	PreviousTrial() int
	StartSession() error
	StopSession()
}

// State is the supervisor state of the listener.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateListening
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateStopped; st <= StateStopping; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("voice: unknown state %q", b)
}

// Notice is a user-visible message from the dispatcher.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notice codes.
const (
	NoticePermissionDenied = "permission-denied"
	NoticeUnavailable      = "recognizer-unavailable"
)

// RestartPolicy bounds automatic listener restarts. Delays grow from Base,
// doubling up to Max. After MaxRestarts consecutive restarts without a final
// result the dispatcher gives up and disables itself.
type RestartPolicy struct {
	MaxRestarts int
	Base        time.Duration
	Max         time.Duration
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	if p.MaxRestarts <= 0 {
		p.MaxRestarts = DefaultMaxRestarts
	}
	if p.Base <= 0 {
		p.Base = DefaultRestartBase
	}
	if p.Max <= 0 {
		p.Max = DefaultRestartMax
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

// Delay returns the wait before the nth consecutive restart (n >= 1).
func (p RestartPolicy) Delay(n int) time.Duration {
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Recognizer Recognizer
	Actions    Actions
	Poster     sched.Poster    // the engine loop
	Scheduler  sched.Scheduler // restart backoff timers
	Policy     RestartPolicy
	OnNotice   func(Notice)
}

// Status is a point-in-time view of the dispatcher.
type Status struct {
	Enabled       bool    `json:"enabled"`
	State         State   `json:"state"`
	Restarts      int     `json:"restarts"`
	LastUtterance string  `json:"lastUtterance,omitempty"`
	LastCommand   Command `json:"lastCommand"`
	Notice        *Notice `json:"notice,omitempty"`
}

// Dispatcher supervises a continuous recognizer and applies recognized
// commands. All methods must be called from the engine loop.
type Dispatcher struct {
	rec      Recognizer
	actions  Actions
	poster   sched.Poster
	sched    sched.Scheduler
	policy   RestartPolicy
	onNotice func(Notice)

	ctx    context.Context
	cancel context.CancelFunc

	enabled  bool
	state    State
	gen      int
	restarts  int
	transient bool // current session reported a transient error
	backoff   sched.CancelHandle

	lastUtterance string
	lastCommand   Command
	notice        *Notice
}

// NewDispatcher creates a disabled Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Recognizer == nil {
		return nil, fmt.Errorf("voice: dispatcher: recognizer is required")
	}
	if opts.Actions == nil {
		return nil, fmt.Errorf("voice: dispatcher: actions are required")
	}
	if opts.Poster == nil || opts.Scheduler == nil {
		return nil, fmt.Errorf("voice: dispatcher: poster and scheduler are required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		rec:      opts.Recognizer,
		actions:  opts.Actions,
		poster:   opts.Poster,
		sched:    opts.Scheduler,
		policy:   opts.Policy.withDefaults(),
		onNotice: opts.OnNotice,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Enabled reports whether voice commands are on.
func (d *Dispatcher) Enabled() bool { return d.enabled }

// State returns the supervisor state.
func (d *Dispatcher) State() State { return d.state }

// Status reports the dispatcher's state for display.
func (d *Dispatcher) Status() Status {
	return Status{
		Enabled:       d.enabled,
		State:         d.state,
		Restarts:      d.restarts,
		LastUtterance: d.lastUtterance,
		LastCommand:   d.lastCommand,
		Notice:        d.notice,
	}
}

// Enable turns voice commands on and starts listening. No-op when enabled.
func (d *Dispatcher) Enable() {
	if d.enabled {
		return
	}
	d.enabled = true
	d.restarts = 0
	d.notice = nil
	log.Printf("voice: commands enabled")
	d.listen()
}

// Disable turns voice commands off and stops the listener. No-op when
// disabled.
func (d *Dispatcher) Disable() {
	if !d.enabled {
		return
	}
	d.enabled = false
	d.halt()
	log.Printf("voice: commands disabled")
}

// Toggle flips voice commands and reports the new setting.
func (d *Dispatcher) Toggle() bool {
	if d.enabled {
		d.Disable()
	} else {
		d.Enable()
	}
	return d.enabled
}

// DeviceDenied turns voice commands off after the audio device refused
// access. It matches the audio.Opts OnDeviceDenied hook.
func (d *Dispatcher) DeviceDenied(err error) {
	if !d.enabled {
		return
	}
	d.enabled = false
	d.halt()
	d.publish(Notice{
		Code:    NoticePermissionDenied,
		Message: "Microphone unavailable, voice commands were turned off.",
	})
	log.Printf("voice: disabled after device error: %v", err)
}

// Close disables the dispatcher and releases the recognizer.
func (d *Dispatcher) Close() {
	d.Disable()
	d.cancel()
}

// halt cancels pending restarts and stops the current listening session.
// Events still in flight from it are ignored.
func (d *Dispatcher) halt() {
	if d.backoff != nil {
		d.backoff.Cancel()
		d.backoff = nil
	}
	d.gen++
	if d.state == StateListening {
		d.state = StateStopping
		if err := d.rec.Stop(); err != nil {
			log.Printf("voice: stop recognizer: %v", err)
		}
	}
	d.state = StateStopped
}

// listen opens a new recognition session and relays its events onto the
// loop.
func (d *Dispatcher) listen() {
	d.state = StateStarting
	d.transient = false
	d.gen++
	gen := d.gen

	events, err := d.rec.Start(d.ctx)
	if err != nil {
		log.Printf("voice: start recognizer: %v", err)
		d.ended(gen)
		return
	}
	d.state = StateListening

	go func() {
		for ev := range events {
			ev := ev
			if !d.poster.Post(func() { d.handle(gen, ev) }) {
				return
			}
		}
		d.poster.Post(func() { d.ended(gen) })
	}()
}

func (d *Dispatcher) handle(gen int, ev Event) {
	if gen != d.gen || !d.enabled {
		return
	}
	if ev.ErrorCode != "" {
		d.handleError(ev.ErrorCode)
		return
	}
	if !ev.IsFinal {
		return
	}
	d.restarts = 0
	d.lastUtterance = ev.Text
	cmd := ParseCommand(ev.Text, d.actions.ActiveDataType())
	d.lastCommand = cmd
	if cmd.Kind == KindNone {
		return
	}
	if err := d.apply(cmd); err != nil {
		log.Printf("voice: %s ignored: %v", cmd, err)
	}
}

func (d *Dispatcher) handleError(code string) {
	switch Classify(code) {
	case ErrorTransient:
		d.transient = true
	case ErrorFatal:
		d.enabled = false
		d.halt()
		d.publish(Notice{
			Code:    NoticePermissionDenied,
			Message: "Microphone permission denied. Enable microphone access and turn voice commands back on.",
		})
	default:
		log.Printf("voice: recognizer error %q", code)
	}
}

// ended handles the end of a listening session, restarting it while enabled.
func (d *Dispatcher) ended(gen int) {
	if gen != d.gen {
		return
	}
	if !d.enabled {
		d.state = StateStopped
		return
	}
	// A session closed after a transient error restarts at the base delay
	// and does not count toward the breaker.
	delay := d.policy.Base
	if d.transient {
		d.restarts = 0
	} else {
		d.restarts++
		if d.restarts > d.policy.MaxRestarts {
			log.Printf("voice: recognizer ended %d times without a result, giving up", d.restarts-1)
			d.enabled = false
			d.state = StateStopped
			d.publish(Notice{
				Code:    NoticeUnavailable,
				Message: "Speech recognition keeps stopping. Voice commands were turned off.",
			})
			return
		}
		delay = d.policy.Delay(d.restarts)
	}
	d.state = StateStarting
	d.backoff = d.sched.ScheduleOnce(delay, func() {
		d.backoff = nil
		if d.enabled && gen == d.gen {
			d.listen()
		}
	})
}

func (d *Dispatcher) publish(n Notice) {
	d.notice = &n
	log.Printf("voice: %s", n.Message)
	if d.onNotice != nil {
		d.onNotice(n)
	}
}

// apply runs a command through the engine.
func (d *Dispatcher) apply(cmd Command) error {
	switch cmd.Kind {
	case KindTrialOutcome:
		_, err := d.actions.RecordTrial(cmd.Outcome, "", "")
		return err
	case KindABCField:
		if cmd.Text == "" {
			return nil
		}
		return d.actions.SetABCField(cmd.Field, cmd.Text)
	case KindFrequency:
		_, err := d.actions.IncrementFrequency()
		return err
	case KindDurationStart:
		_, err := d.actions.StartDuration("")
		return err
	case KindDurationStop:
		_, err := d.actions.StopDuration()
		return err
	case KindTrialNext:
		d.actions.NextTrial()
	case KindTrialPrevious:
		d.actions.PreviousTrial()
	case KindSessionStart:
		return d.actions.StartSession()
	case KindSessionStop:
		d.actions.StopSession()
	}
	return nil
}
