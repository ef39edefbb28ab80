package recorder

import (
	"fmt"
	"strings"

	"github.com/zulandar/fieldnote/internal/record"
)

// TaskAnalysisRecorder keeps the ordered chain of steps for task-analysis
// goals. Steps are scored in place and may move between any statuses.
type TaskAnalysisRecorder struct {
	steps []record.TaskAnalysisStep
}

// NewTaskAnalysisRecorder creates an empty TaskAnalysisRecorder.
func NewTaskAnalysisRecorder() *TaskAnalysisRecorder {
	return &TaskAnalysisRecorder{}
}

// AddStep appends a not-attempted step to the goal's chain.
func (r *TaskAnalysisRecorder) AddStep(goalID, label string) (record.TaskAnalysisStep, error) {
	if err := requireGoal(goalID); err != nil {
		return record.TaskAnalysisStep{}, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return record.TaskAnalysisStep{}, &record.ValidationError{Fields: []string{"label"}}
	}
	step := record.TaskAnalysisStep{
		ID:     record.NewID(),
		GoalID: goalID,
		Label:  label,
		Status: record.StepNotAttempted,
	}
	r.steps = append(r.steps, step)
	return step, nil
}

// UpdateStep sets a step's status. Setting the current status again is a
// no-op.
func (r *TaskAnalysisRecorder) UpdateStep(goalID, stepID string, status record.StepStatus) (record.TaskAnalysisStep, error) {
	if !status.Valid() {
		return record.TaskAnalysisStep{}, &record.ValidationError{Fields: []string{"status"}}
	}
	i := r.index(goalID, stepID)
	if i < 0 {
		return record.TaskAnalysisStep{}, fmt.Errorf("recorder: step %s: %w", stepID, record.ErrNotFound)
	}
	r.steps[i].Status = status
	return r.steps[i], nil
}

// RemoveStep deletes a step regardless of its status.
func (r *TaskAnalysisRecorder) RemoveStep(goalID, stepID string) error {
	i := r.index(goalID, stepID)
	if i < 0 {
		return fmt.Errorf("recorder: step %s: %w", stepID, record.ErrNotFound)
	}
	r.steps = append(r.steps[:i], r.steps[i+1:]...)
	return nil
}

// Steps returns the goal's steps in chain order.
func (r *TaskAnalysisRecorder) Steps(goalID string) []record.TaskAnalysisStep {
	var out []record.TaskAnalysisStep
	for _, s := range r.steps {
		if s.GoalID == goalID {
			out = append(out, s)
		}
	}
	return out
}

// All returns every step in insertion order.
func (r *TaskAnalysisRecorder) All() []record.TaskAnalysisStep {
	return append([]record.TaskAnalysisStep(nil), r.steps...)
}

func (r *TaskAnalysisRecorder) index(goalID, stepID string) int {
	for i, s := range r.steps {
		if s.ID == stepID && s.GoalID == goalID {
			return i
		}
	}
	return -1
}
