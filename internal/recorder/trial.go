package recorder

import (
	"fmt"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// TrialRecorder records discrete-trial outcomes for prompt-level goals.
type TrialRecorder struct {
	clock        sched.Clock
	trials       []record.TrialRecord
	promptLevels map[string]string // goalID -> current level
}

// NewTrialRecorder creates an empty TrialRecorder.
func NewTrialRecorder(clock sched.Clock) *TrialRecorder {
	return &TrialRecorder{clock: clock, promptLevels: make(map[string]string)}
}

// SetPromptLevel sets the prompt level attached to the goal's subsequently
// recorded trials. Trials already recorded keep their level.
func (r *TrialRecorder) SetPromptLevel(goalID, level string) {
	r.promptLevels[goalID] = level
}

// PromptLevel returns the level the next trial for goal will carry: the level
// set for it with SetPromptLevel, else the goal's first prompt label.
func (r *TrialRecorder) PromptLevel(goal *record.Goal) string {
	if goal == nil {
		return ""
	}
	if level := r.promptLevels[goal.ID]; level != "" {
		return level
	}
	if len(goal.Prompts) > 0 {
		return goal.Prompts[0]
	}
	return ""
}

// Record appends a trial for goal. An empty promptLevel uses the current
// prompt level. It returns record.ErrNoGoal without recording anything when
// goal is nil.
func (r *TrialRecorder) Record(goal *record.Goal, outcome record.Outcome, promptLevel, notes string) (record.TrialRecord, error) {
	if goal == nil || goal.ID == "" {
		return record.TrialRecord{}, record.ErrNoGoal
	}
	if !outcome.Valid() {
		return record.TrialRecord{}, &record.ValidationError{Fields: []string{"outcome"}}
	}
	if promptLevel == "" {
		promptLevel = r.PromptLevel(goal)
	}
	if !goal.HasPrompt(promptLevel) {
		return record.TrialRecord{}, fmt.Errorf("recorder: prompt level %q not defined for goal %s: %w",
			promptLevel, goal.ID, &record.ValidationError{Fields: []string{"promptLevel"}})
	}

	t := record.TrialRecord{
		ID:          record.NewID(),
		GoalID:      goal.ID,
		Timestamp:   r.clock.Now(),
		Outcome:     outcome,
		PromptLevel: promptLevel,
		Notes:       notes,
	}
	r.trials = append(r.trials, t)
	return t, nil
}

// Trials returns the goal's trials in recording order.
func (r *TrialRecorder) Trials(goalID string) []record.TrialRecord {
	var out []record.TrialRecord
	for _, t := range r.trials {
		if t.GoalID == goalID {
			out = append(out, t)
		}
	}
	return out
}

// Stats recomputes the goal's statistics from its full trial sequence.
func (r *TrialRecorder) Stats(goalID string) record.TrialStats {
	return record.ComputeTrialStats(r.Trials(goalID))
}

// All returns every trial in recording order.
func (r *TrialRecorder) All() []record.TrialRecord {
	return append([]record.TrialRecord(nil), r.trials...)
}
