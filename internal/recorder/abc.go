package recorder

import (
	"fmt"
	"strings"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// ABCInput holds the fields of a new ABC entry.
type ABCInput struct {
	Antecedent  string           `json:"antecedent" validate:"notblank"`
	Behavior    string           `json:"behavior" validate:"notblank"`
	Consequence string           `json:"consequence" validate:"notblank"`
	Intensity   record.Intensity `json:"intensity" validate:"omitempty,oneof=low moderate high"`
	Notes       string           `json:"notes"`
}

// ABCRecorder records antecedent-behavior-consequence entries and holds the
// read-only behavior support plans attached to abc-data goals.
type ABCRecorder struct {
	clock   sched.Clock
	entries []record.ABCRecord // oldest first
	plans   map[string]record.BehaviorSupportPlan
}

// NewABCRecorder creates an empty ABCRecorder.
func NewABCRecorder(clock sched.Clock) *ABCRecorder {
	return &ABCRecorder{
		clock: clock,
		plans: make(map[string]record.BehaviorSupportPlan),
	}
}

// AddEntry validates in and appends an immutable record. When antecedent,
// behavior or consequence is blank it returns a *record.ValidationError and
// creates nothing. An empty intensity defaults to moderate.
func (r *ABCRecorder) AddEntry(goalID string, in ABCInput) (record.ABCRecord, error) {
	if err := requireGoal(goalID); err != nil {
		return record.ABCRecord{}, err
	}
	if err := validateStruct(in); err != nil {
		return record.ABCRecord{}, err
	}
	if in.Intensity == "" {
		in.Intensity = record.IntensityModerate
	}
	rec := record.ABCRecord{
		ID:          record.NewID(),
		GoalID:      goalID,
		Timestamp:   r.clock.Now(),
		Antecedent:  strings.TrimSpace(in.Antecedent),
		Behavior:    strings.TrimSpace(in.Behavior),
		Consequence: strings.TrimSpace(in.Consequence),
		Intensity:   in.Intensity,
		Notes:       strings.TrimSpace(in.Notes),
	}
	r.entries = append(r.entries, rec)
	return rec, nil
}

// RemoveEntry deletes the entry with the given id.
func (r *ABCRecorder) RemoveEntry(goalID, id string) error {
	for i, e := range r.entries {
		if e.ID == id && e.GoalID == goalID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("recorder: abc entry %s: %w", id, record.ErrNotFound)
}

// Entries returns the goal's entries most recent first.
func (r *ABCRecorder) Entries(goalID string) []record.ABCRecord {
	var out []record.ABCRecord
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].GoalID == goalID {
			out = append(out, r.entries[i])
		}
	}
	return out
}

// All returns every entry oldest first.
func (r *ABCRecorder) All() []record.ABCRecord {
	return append([]record.ABCRecord(nil), r.entries...)
}

// AttachPlan makes plan available for display alongside its goal's entries.
func (r *ABCRecorder) AttachPlan(plan record.BehaviorSupportPlan) {
	r.plans[plan.GoalID] = plan
}

// Plan returns the plan attached to goalID.
func (r *ABCRecorder) Plan(goalID string) (record.BehaviorSupportPlan, bool) {
	p, ok := r.plans[goalID]
	return p, ok
}
