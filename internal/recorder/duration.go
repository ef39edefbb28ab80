package recorder

import (
	"fmt"
	"time"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// DurationRecorder times intervals. Each goal is either closed or has exactly
// one open interval; the open interval joins the history only once stopped.
type DurationRecorder struct {
	clock   sched.Clock
	open    map[string]record.DurationInterval // goalID -> open interval
	history []record.DurationInterval
}

// NewDurationRecorder creates a DurationRecorder with no open intervals.
func NewDurationRecorder(clock sched.Clock) *DurationRecorder {
	return &DurationRecorder{
		clock: clock,
		open:  make(map[string]record.DurationInterval),
	}
}

// Start opens an interval for goalID. If one is already open nothing changes
// and the error wraps record.ErrInvalidState.
func (r *DurationRecorder) Start(goalID, note string) (record.DurationInterval, error) {
	if err := requireGoal(goalID); err != nil {
		return record.DurationInterval{}, err
	}
	if cur, ok := r.open[goalID]; ok {
		return cur, fmt.Errorf("recorder: interval already open for goal %s: %w", goalID, record.ErrInvalidState)
	}
	iv := record.DurationInterval{
		ID:     record.NewID(),
		GoalID: goalID,
		Start:  r.clock.Now(),
		Note:   note,
	}
	r.open[goalID] = iv
	return iv, nil
}

// Stop closes the goal's open interval and appends it to the history. With no
// open interval nothing changes and the error wraps record.ErrInvalidState.
func (r *DurationRecorder) Stop(goalID string) (record.DurationInterval, error) {
	iv, ok := r.open[goalID]
	if !ok {
		return record.DurationInterval{}, fmt.Errorf("recorder: no open interval for goal %s: %w", goalID, record.ErrInvalidState)
	}
	end := r.clock.Now()
	iv.End = &end
	r.history = append(r.history, iv)
	delete(r.open, goalID)
	return iv, nil
}

// Open returns the goal's open interval, if any.
func (r *DurationRecorder) Open(goalID string) (record.DurationInterval, bool) {
	iv, ok := r.open[goalID]
	return iv, ok
}

// Elapsed returns the live elapsed time of the goal's open interval, or 0.
func (r *DurationRecorder) Elapsed(goalID string) time.Duration {
	iv, ok := r.open[goalID]
	if !ok {
		return 0
	}
	return iv.Duration(r.clock.Now())
}

// History returns the goal's closed intervals in the order they were stopped.
func (r *DurationRecorder) History(goalID string) []record.DurationInterval {
	var out []record.DurationInterval
	for _, iv := range r.history {
		if iv.GoalID == goalID {
			out = append(out, iv)
		}
	}
	return out
}

// Reset discards the goal's history and any open interval.
func (r *DurationRecorder) Reset(goalID string) {
	delete(r.open, goalID)
	kept := r.history[:0]
	for _, iv := range r.history {
		if iv.GoalID != goalID {
			kept = append(kept, iv)
		}
	}
	r.history = kept
}

// All returns every closed interval.
func (r *DurationRecorder) All() []record.DurationInterval {
	return append([]record.DurationInterval(nil), r.history...)
}
