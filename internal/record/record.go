// Package record defines the data captured during a live session and the
// metrics derived from it. It performs no I/O.
package record

import (
	"time"

	"github.com/google/uuid"
)

// DataType selects which modality recorder a goal uses.
type DataType string

const (
	DataPromptLevels DataType = "prompt-levels"
	DataTaskAnalysis DataType = "task-analysis"
	DataDuration     DataType = "duration"
	DataABC          DataType = "abc-data"
	DataFrequency    DataType = "frequency"
)

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case DataPromptLevels, DataTaskAnalysis, DataDuration, DataABC, DataFrequency:
		return true
	}
	return false
}

// GoalStatus is the lifecycle state of a goal in the goal bank.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalOnHold    GoalStatus = "on-hold"
)

// Outcome is the scored result of a discrete trial.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomePrompted  Outcome = "prompted"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeCorrect || o == OutcomeIncorrect || o == OutcomePrompted
}

// StepStatus is the score of a single task-analysis step.
type StepStatus string

const (
	StepNotAttempted StepStatus = "not_attempted"
	StepPrompted     StepStatus = "prompted"
	StepIndependent  StepStatus = "independent"
)

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	return s == StepNotAttempted || s == StepPrompted || s == StepIndependent
}

// Intensity grades an ABC behavior.
type Intensity string

const (
	IntensityLow      Intensity = "low"
	IntensityModerate Intensity = "moderate"
	IntensityHigh     Intensity = "high"
)

// Goal is a read-only goal bank entry. Its DataType selects the active
// modality recorder.
type Goal struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Category string     `json:"category"`
	DataType DataType   `json:"dataType"`
	Prompts  []string   `json:"prompts"`
	Status   GoalStatus `json:"status"`
}

// HasPrompt reports whether level is one of the goal's prompt labels.
// Goals without prompt labels accept any level.
func (g Goal) HasPrompt(level string) bool {
	if len(g.Prompts) == 0 {
		return true
	}
	for _, p := range g.Prompts {
		if p == level {
			return true
		}
	}
	return false
}

// TrialRecord is one scored discrete trial. Immutable once created.
type TrialRecord struct {
	ID          string    `json:"id"`
	GoalID      string    `json:"goalId"`
	Timestamp   time.Time `json:"timestamp"`
	Outcome     Outcome   `json:"outcome"`
	PromptLevel string    `json:"promptLevel"`
	Notes       string    `json:"notes,omitempty"`
}

// FrequencyEvent marks one occurrence of a counted behavior.
type FrequencyEvent struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalId"`
	Timestamp time.Time `json:"timestamp"`
}

// DurationInterval is a timed interval. End is nil while the interval is open.
type DurationInterval struct {
	ID     string     `json:"id"`
	GoalID string     `json:"goalId"`
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end"`
	Note   string     `json:"note,omitempty"`
}

// Duration returns end - start for a closed interval, or the elapsed time up
// to now for an open one.
func (d DurationInterval) Duration(now time.Time) time.Duration {
	if d.End != nil {
		return d.End.Sub(d.Start)
	}
	return now.Sub(d.Start)
}

// TaskAnalysisStep is one link of a chained task.
type TaskAnalysisStep struct {
	ID     string     `json:"id"`
	GoalID string     `json:"goalId"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// ABCRecord is an antecedent-behavior-consequence narrative entry.
type ABCRecord struct {
	ID          string    `json:"id"`
	GoalID      string    `json:"goalId"`
	Timestamp   time.Time `json:"timestamp"`
	Antecedent  string    `json:"antecedent"`
	Behavior    string    `json:"behavior"`
	Consequence string    `json:"consequence"`
	Intensity   Intensity `json:"intensity"`
	Notes       string    `json:"notes,omitempty"`
}

// BehaviorSupportPlan is a clinician-authored reference attached to an
// abc-data goal. The engine only displays it.
type BehaviorSupportPlan struct {
	ID                   string    `json:"id"`
	GoalID               string    `json:"goalId"`
	BehaviorDefinition   string    `json:"behaviorDefinition"`
	Function             string    `json:"function"` // attention, escape, access, automatic
	PreventionStrategies []string  `json:"preventionStrategies"`
	ReplacementBehaviors []string  `json:"replacementBehaviors"`
	ResponseStrategies   []string  `json:"responseStrategies"`
	CreatedBy            string    `json:"createdBy"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// VoiceNote is a transcript attached to a goal (or the session when GoalID is
// empty).
type VoiceNote struct {
	ID              string    `json:"id"`
	GoalID          string    `json:"goalId,omitempty"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds int       `json:"durationSeconds"`
}

// NoteEntry is one append-only note buffer entry. An empty GoalID means a
// session-level note.
type NoteEntry struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalId,omitempty"`
	Text      string    `json:"text"`
	Source    string    `json:"source"` // "manual" or "voice"
	Timestamp time.Time `json:"timestamp"`
}

// Session is the serializable record of one data-collection episode.
type Session struct {
	ID                string             `json:"id"`
	StudentID         string             `json:"studentId"`
	StartTime         time.Time          `json:"startTime"`
	EndTime           *time.Time         `json:"endTime"`
	ElapsedSeconds    int                `json:"elapsedSeconds"`
	OverallNotes      string             `json:"overallNotes"`
	Trials            []TrialRecord      `json:"trials"`
	FrequencyEvents   []FrequencyEvent   `json:"frequencyEvents"`
	DurationIntervals []DurationInterval `json:"durationIntervals"`
	TaskSteps         []TaskAnalysisStep `json:"taskSteps"`
	ABCRecords        []ABCRecord        `json:"abcRecords"`
	GoalNotes         map[string]string  `json:"goalNotes"`
	VoiceNotes        []VoiceNote        `json:"voiceNotes"`
	Notes             []NoteEntry        `json:"notes"`
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
