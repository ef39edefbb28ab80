package recorder

import (
	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// FrequencyRecorder counts occurrences of a behavior. The rate is always
// derived from the stored events.
type FrequencyRecorder struct {
	clock  sched.Clock
	events []record.FrequencyEvent // oldest first
}

// NewFrequencyRecorder creates an empty FrequencyRecorder.
func NewFrequencyRecorder(clock sched.Clock) *FrequencyRecorder {
	return &FrequencyRecorder{clock: clock}
}

// Increment appends an event for goalID at the current time.
func (r *FrequencyRecorder) Increment(goalID string) (record.FrequencyEvent, error) {
	if err := requireGoal(goalID); err != nil {
		return record.FrequencyEvent{}, err
	}
	ev := record.FrequencyEvent{
		ID:        record.NewID(),
		GoalID:    goalID,
		Timestamp: r.clock.Now(),
	}
	r.events = append(r.events, ev)
	return ev, nil
}

// Events returns the goal's events newest first.
func (r *FrequencyRecorder) Events(goalID string) []record.FrequencyEvent {
	var out []record.FrequencyEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].GoalID == goalID {
			out = append(out, r.events[i])
		}
	}
	return out
}

// Count returns the number of events recorded for goalID.
func (r *FrequencyRecorder) Count(goalID string) int {
	n := 0
	for _, ev := range r.events {
		if ev.GoalID == goalID {
			n++
		}
	}
	return n
}

// Rate returns responses per minute over the goal's most recent window events
// (all events when window <= 0).
func (r *FrequencyRecorder) Rate(goalID string, window int) float64 {
	events := r.Events(goalID)
	if window > 0 && len(events) > window {
		events = events[:window]
	}
	return record.FrequencyRate(events)
}

// Reset clears every event recorded for goalID.
func (r *FrequencyRecorder) Reset(goalID string) {
	kept := r.events[:0]
	for _, ev := range r.events {
		if ev.GoalID != goalID {
			kept = append(kept, ev)
		}
	}
	r.events = kept
}

// All returns every event oldest first.
func (r *FrequencyRecorder) All() []record.FrequencyEvent {
	return append([]record.FrequencyEvent(nil), r.events...)
}
