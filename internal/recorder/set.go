package recorder

import "github.com/zulandar/fieldnote/internal/sched"

// Set bundles one recorder per modality. A new session gets a new Set, which
// is how recorder state is reset.
type Set struct {
	Trials    *TrialRecorder
	Frequency *FrequencyRecorder
	Duration  *DurationRecorder
	Tasks     *TaskAnalysisRecorder
	ABC       *ABCRecorder
}

// NewSet creates empty recorders that read time from clock.
func NewSet(clock sched.Clock) *Set {
	return &Set{
		Trials:    NewTrialRecorder(clock),
		Frequency: NewFrequencyRecorder(clock),
		Duration:  NewDurationRecorder(clock),
		Tasks:     NewTaskAnalysisRecorder(),
		ABC:       NewABCRecorder(clock),
	}
}
