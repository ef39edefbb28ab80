// Package session coordinates one live data-collection session: the session
// clock, the modality recorders, per-goal notes and the aggregation of all of
// it into a persistable record.Session.
//
// An Engine is not safe for concurrent use. Every call, including timer
// callbacks, must run on the same sched.Loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/recorder"
	"github.com/zulandar/fieldnote/internal/sched"
)

// voiceNoteTimeFormat stamps transcripts attached to notes.
const voiceNoteTimeFormat = "3:04:05 PM"

// Store persists sessions keyed by student id.
type Store interface {
	Save(ctx context.Context, studentID string, s record.Session) error
	LoadAll(ctx context.Context, studentID string) ([]record.Session, error)
}

// GoalBank supplies read-only goals and behavior support plans. Lookups of
// unknown ids return an error wrapping record.ErrNotFound.
type GoalBank interface {
	Goal(ctx context.Context, id string) (record.Goal, error)
	Goals(ctx context.Context) ([]record.Goal, error)
	Plan(ctx context.Context, goalID string) (record.BehaviorSupportPlan, error)
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	StudentID       string
	Store           Store
	Goals           GoalBank
	Clock           sched.Clock     // defaults to sched.SystemClock
	Scheduler       sched.Scheduler // required; delivers onto the engine loop
	Tick            time.Duration   // defaults to DefaultTick
	FrequencyWindow int             // events used for the rate; <= 0 means all
}

// Engine is the session aggregator.
type Engine struct {
	studentID string
	store     Store
	goals     GoalBank
	now       sched.Clock
	window    int

	id      string
	endTime *time.Time
	clock   *Clock
	rec     *recorder.Set
	notes   *NoteBook
	voice   []record.VoiceNote
	draft   ABCDraft

	goal       *record.Goal
	plans      map[string]record.BehaviorSupportPlan
	trialIndex int
	lastSaved  time.Time
	saved      *record.Session // snapshot at lastSaved
}

// New creates an Engine holding a pending session. Data may be recorded
// before StartSession.
func New(opts Opts) (*Engine, error) {
	if strings.TrimSpace(opts.StudentID) == "" {
		return nil, fmt.Errorf("session: engine: student id is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session: engine: store is required")
	}
	if opts.Goals == nil {
		return nil, fmt.Errorf("session: engine: goal bank is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("session: engine: scheduler is required")
	}
	now := opts.Clock
	if now == nil {
		now = sched.SystemClock{}
	}
	e := &Engine{
		studentID: opts.StudentID,
		store:     opts.Store,
		goals:     opts.Goals,
		now:       now,
		window:    opts.FrequencyWindow,
		clock:     NewClock(now, opts.Scheduler, opts.Tick),
		plans:     make(map[string]record.BehaviorSupportPlan),
	}
	e.reset()
	return e, nil
}

// reset discards every recorder and note, and assigns a new session id.
func (e *Engine) reset() {
	e.id = record.NewID()
	e.endTime = nil
	e.rec = recorder.NewSet(e.now)
	e.notes = NewNoteBook()
	e.voice = nil
	e.draft = ABCDraft{}
	e.trialIndex = 0
	e.lastSaved = time.Time{}
	e.saved = nil
	for _, p := range e.plans {
		e.rec.ABC.AttachPlan(p)
	}
}

// StudentID returns the student the session belongs to.
func (e *Engine) StudentID() string { return e.studentID }

// SessionID returns the id of the current session.
func (e *Engine) SessionID() string { return e.id }

// --- goal selection ---

// SelectGoal makes the goal with the given id active. For abc-data goals the
// goal's behavior support plan, if the bank has one, is attached for display.
func (e *Engine) SelectGoal(ctx context.Context, id string) (record.Goal, error) {
	g, err := e.goals.Goal(ctx, id)
	if err != nil {
		return record.Goal{}, fmt.Errorf("session: select goal %s: %w", id, err)
	}
	if g.DataType == record.DataABC {
		plan, err := e.goals.Plan(ctx, g.ID)
		switch {
		case err == nil:
			e.plans[g.ID] = plan
			e.rec.ABC.AttachPlan(plan)
		case errors.Is(err, record.ErrNotFound):
		default:
			log.Printf("session: load plan for goal %s: %v", g.ID, err)
		}
	}
	e.goal = &g
	e.trialIndex = 0
	log.Printf("session: goal %s selected (%s)", g.ID, g.DataType)
	return g, nil
}

// ActiveGoal returns the selected goal.
func (e *Engine) ActiveGoal() (record.Goal, bool) {
	if e.goal == nil {
		return record.Goal{}, false
	}
	return *e.goal, true
}

// ActiveDataType returns the selected goal's data type, or "" with no goal.
func (e *Engine) ActiveDataType() record.DataType {
	if e.goal == nil {
		return ""
	}
	return e.goal.DataType
}

func (e *Engine) requireModality(dt record.DataType) (*record.Goal, error) {
	if e.goal == nil {
		return nil, record.ErrNoGoal
	}
	if e.goal.DataType != dt {
		return nil, fmt.Errorf("session: goal %s records %s, not %s: %w",
			e.goal.ID, e.goal.DataType, dt, record.ErrWrongModality)
	}
	return e.goal, nil
}

// --- session lifecycle ---

// StartSession starts the session clock. Starting after the session has ended
// begins a fresh session and resets every recorder; the ended session is saved
// first if it has unsaved changes, and a failed save leaves it in place.
// Starting an active session fails with record.ErrInvalidState.
func (e *Engine) StartSession() error {
	if e.clock.Active() {
		return fmt.Errorf("session: %s already active: %w", e.id, record.ErrInvalidState)
	}
	if e.endTime != nil {
		if e.Unsaved() {
			if err := e.Save(context.Background()); err != nil {
				return fmt.Errorf("session: start: ended session not saved: %w", err)
			}
			log.Printf("session: %s saved before starting a new session", e.id)
		}
		e.reset()
	}
	if err := e.clock.Start(); err != nil {
		return err
	}
	log.Printf("session: %s started for student %s", e.id, e.studentID)
	return nil
}

// StopSession stops the clock and stamps the end time. No-op when inactive.
func (e *Engine) StopSession() {
	if !e.clock.Active() {
		return
	}
	e.clock.Stop()
	end := e.now.Now()
	e.endTime = &end
	log.Printf("session: %s stopped after %ds", e.id, e.clock.Elapsed())
}

// SessionActive reports whether the session clock is running.
func (e *Engine) SessionActive() bool { return e.clock.Active() }

// Elapsed returns the session's elapsed seconds.
func (e *Engine) Elapsed() int { return e.clock.Elapsed() }

// Close cancels the session timers. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.clock.Stop()
}

// --- discrete trials ---

// RecordTrial records an outcome for the active prompt-levels goal. An empty
// promptLevel uses the current prompt level.
func (e *Engine) RecordTrial(outcome record.Outcome, promptLevel, notes string) (record.TrialRecord, error) {
	g, err := e.requireModality(record.DataPromptLevels)
	if err != nil {
		return record.TrialRecord{}, err
	}
	return e.rec.Trials.Record(g, outcome, promptLevel, notes)
}

// SetPromptLevel sets the level attached to the active goal's later trials.
// Each goal keeps its own level for the rest of the session.
func (e *Engine) SetPromptLevel(level string) error {
	if e.goal == nil {
		return record.ErrNoGoal
	}
	if !e.goal.HasPrompt(level) {
		return &record.ValidationError{Fields: []string{"promptLevel"}}
	}
	e.rec.Trials.SetPromptLevel(e.goal.ID, level)
	return nil
}

// PromptLevel returns the level the next trial will carry.
func (e *Engine) PromptLevel() string {
	return e.rec.Trials.PromptLevel(e.goal)
}

// TrialStats returns the active goal's trial statistics.
func (e *Engine) TrialStats() record.TrialStats {
	if e.goal == nil {
		return record.TrialStats{}
	}
	return e.rec.Trials.Stats(e.goal.ID)
}

// NextTrial advances the display-only trial counter.
func (e *Engine) NextTrial() int {
	e.trialIndex++
	return e.trialIndex
}

// PreviousTrial moves the display-only trial counter back, stopping at 0.
func (e *Engine) PreviousTrial() int {
	if e.trialIndex > 0 {
		e.trialIndex--
	}
	return e.trialIndex
}

// TrialIndex returns the display-only trial counter.
func (e *Engine) TrialIndex() int { return e.trialIndex }

// --- frequency ---

func (e *Engine) IncrementFrequency() (record.FrequencyEvent, error) {
	g, err := e.requireModality(record.DataFrequency)
	if err != nil {
		return record.FrequencyEvent{}, err
	}
	return e.rec.Frequency.Increment(g.ID)
}

func (e *Engine) FrequencyCount() int {
	if e.goal == nil {
		return 0
	}
	return e.rec.Frequency.Count(e.goal.ID)
}

func (e *Engine) FrequencyRate() float64 {
	if e.goal == nil {
		return 0
	}
	return e.rec.Frequency.Rate(e.goal.ID, e.window)
}

func (e *Engine) ResetFrequency() error {
	g, err := e.requireModality(record.DataFrequency)
	if err != nil {
		return err
	}
	e.rec.Frequency.Reset(g.ID)
	return nil
}

// --- duration ---

func (e *Engine) StartDuration(note string) (record.DurationInterval, error) {
	g, err := e.requireModality(record.DataDuration)
	if err != nil {
		return record.DurationInterval{}, err
	}
	return e.rec.Duration.Start(g.ID, note)
}

func (e *Engine) StopDuration() (record.DurationInterval, error) {
	g, err := e.requireModality(record.DataDuration)
	if err != nil {
		return record.DurationInterval{}, err
	}
	return e.rec.Duration.Stop(g.ID)
}

func (e *Engine) ResetDuration() error {
	g, err := e.requireModality(record.DataDuration)
	if err != nil {
		return err
	}
	e.rec.Duration.Reset(g.ID)
	return nil
}

// DurationStatus returns the open interval's live elapsed time and the closed
// history for the active goal.
func (e *Engine) DurationStatus() (open bool, elapsed time.Duration, history []record.DurationInterval) {
	if e.goal == nil {
		return false, 0, nil
	}
	_, open = e.rec.Duration.Open(e.goal.ID)
	return open, e.rec.Duration.Elapsed(e.goal.ID), e.rec.Duration.History(e.goal.ID)
}

// --- task analysis ---

func (e *Engine) AddStep(label string) (record.TaskAnalysisStep, error) {
	g, err := e.requireModality(record.DataTaskAnalysis)
	if err != nil {
		return record.TaskAnalysisStep{}, err
	}
	return e.rec.Tasks.AddStep(g.ID, label)
}

func (e *Engine) UpdateStep(id string, status record.StepStatus) (record.TaskAnalysisStep, error) {
	g, err := e.requireModality(record.DataTaskAnalysis)
	if err != nil {
		return record.TaskAnalysisStep{}, err
	}
	return e.rec.Tasks.UpdateStep(g.ID, id, status)
}

func (e *Engine) RemoveStep(id string) error {
	g, err := e.requireModality(record.DataTaskAnalysis)
	if err != nil {
		return err
	}
	return e.rec.Tasks.RemoveStep(g.ID, id)
}

func (e *Engine) Steps() []record.TaskAnalysisStep {
	if e.goal == nil {
		return nil
	}
	return e.rec.Tasks.Steps(e.goal.ID)
}

// --- ABC ---

func (e *Engine) AddABC(in recorder.ABCInput) (record.ABCRecord, error) {
	g, err := e.requireModality(record.DataABC)
	if err != nil {
		return record.ABCRecord{}, err
	}
	return e.rec.ABC.AddEntry(g.ID, in)
}

func (e *Engine) RemoveABC(id string) error {
	g, err := e.requireModality(record.DataABC)
	if err != nil {
		return err
	}
	return e.rec.ABC.RemoveEntry(g.ID, id)
}

// ABCEntries returns the active goal's entries most recent first, and its
// behavior support plan when one is attached.
func (e *Engine) ABCEntries() ([]record.ABCRecord, *record.BehaviorSupportPlan) {
	if e.goal == nil {
		return nil, nil
	}
	entries := e.rec.ABC.Entries(e.goal.ID)
	if plan, ok := e.rec.ABC.Plan(e.goal.ID); ok {
		return entries, &plan
	}
	return entries, nil
}

// --- notes ---

// AppendNote appends text to the goal's notes, or to the session notes when
// goalID is empty.
func (e *Engine) AppendNote(goalID, text string) (record.NoteEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return record.NoteEntry{}, &record.ValidationError{Fields: []string{"text"}}
	}
	return e.notes.Append(goalID, text, NoteSourceManual, e.now.Now()), nil
}

// UndoNote removes the most recent entry from the goal's notes.
func (e *Engine) UndoNote(goalID string) (record.NoteEntry, error) {
	n, ok := e.notes.Undo(goalID)
	if !ok {
		return record.NoteEntry{}, fmt.Errorf("session: no notes for goal %q: %w", goalID, record.ErrNotFound)
	}
	return n, nil
}

// Notes returns the rendered notes of a goal, or the session notes for "".
func (e *Engine) Notes(goalID string) string {
	return e.notes.Text(goalID)
}

// AttachVoiceNote stores a transcript as a VoiceNote and appends it, stamped
// with the time, to the goal's notes or the session notes.
func (e *Engine) AttachVoiceNote(goalID, text string, length time.Duration) (record.VoiceNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return record.VoiceNote{}, &record.ValidationError{Fields: []string{"transcript"}}
	}
	now := e.now.Now()
	vn := record.VoiceNote{
		ID:              record.NewID(),
		GoalID:          goalID,
		Text:            text,
		Timestamp:       now,
		DurationSeconds: int(length / time.Second),
	}
	e.voice = append(e.voice, vn)
	e.notes.Append(goalID, fmt.Sprintf("[Voice Note %s]: %s", now.Format(voiceNoteTimeFormat), text), NoteSourceVoice, now)
	return vn, nil
}

// --- aggregation ---

// Snapshot assembles the current state into a Session record. It does not
// modify the engine.
func (e *Engine) Snapshot() record.Session {
	s := record.Session{
		ID:                e.id,
		StudentID:         e.studentID,
		StartTime:         e.clock.StartTime(),
		ElapsedSeconds:    e.clock.Elapsed(),
		OverallNotes:      e.notes.Text(""),
		Trials:            e.rec.Trials.All(),
		FrequencyEvents:   e.rec.Frequency.All(),
		DurationIntervals: e.rec.Duration.All(),
		TaskSteps:         e.rec.Tasks.All(),
		ABCRecords:        e.rec.ABC.All(),
		GoalNotes:         e.notes.GoalTexts(),
		VoiceNotes:        append([]record.VoiceNote(nil), e.voice...),
		Notes:             e.notes.All(),
	}
	if e.endTime != nil {
		end := *e.endTime
		s.EndTime = &end
	}
	return s
}

// Save persists a snapshot. The session stays live; a failed save wraps
// record.ErrStorage and may be retried.
func (e *Engine) Save(ctx context.Context) error {
	snap := e.Snapshot()
	if err := e.store.Save(ctx, e.studentID, snap); err != nil {
		return fmt.Errorf("session: save %s: %w: %w", snap.ID, record.ErrStorage, err)
	}
	e.lastSaved = e.now.Now()
	e.saved = &snap
	return nil
}

// Unsaved reports whether the session differs from its last save. A session
// never saved is unsaved once it holds any data.
func (e *Engine) Unsaved() bool {
	snap := e.Snapshot()
	if e.saved == nil {
		return hasData(snap)
	}
	return !reflect.DeepEqual(*e.saved, snap)
}

func hasData(s record.Session) bool {
	return len(s.Trials) > 0 || len(s.FrequencyEvents) > 0 || len(s.DurationIntervals) > 0 ||
		len(s.TaskSteps) > 0 || len(s.ABCRecords) > 0 || len(s.VoiceNotes) > 0 || len(s.Notes) > 0
}

// LastSaved returns the time of the last successful Save, or the zero time.
func (e *Engine) LastSaved() time.Time { return e.lastSaved }

// History loads every stored session of the student.
func (e *Engine) History(ctx context.Context) ([]record.Session, error) {
	sessions, err := e.store.LoadAll(ctx, e.studentID)
	if err != nil {
		return nil, fmt.Errorf("session: history: %w: %w", record.ErrStorage, err)
	}
	return sessions, nil
}

// Goals lists the goal bank.
func (e *Engine) Goals(ctx context.Context) ([]record.Goal, error) {
	return e.goals.Goals(ctx)
}
