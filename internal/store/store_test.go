package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/fieldnote/internal/config"
	"github.com/zulandar/fieldnote/internal/db"
	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
	"github.com/zulandar/fieldnote/internal/session"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("db.Connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("db.AutoMigrate: %v", err)
	}
	return gdb
}

var seedGoals = []config.GoalConfig{
	{ID: "g-colors", Title: "Identify colors", Category: "Academic", DataType: "prompt-levels", Prompts: []string{"Independent", "Verbal", "Physical"}, Status: "active"},
	{ID: "g-agg", Title: "Reduce aggression", Category: "Behavior", DataType: "abc-data", Status: "active", Plan: &config.PlanConfig{
		BehaviorDefinition:   "Hitting or kicking peers",
		Function:             "escape",
		PreventionStrategies: []string{"Visual schedule"},
		ReplacementBehaviors: []string{"Ask for a break"},
		CreatedBy:            "Dr. Rivera",
	}},
	{ID: "g-hand", Title: "Hand raising", Category: "Behavior", DataType: "frequency", Status: "on-hold"},
}

func seededGoals(t *testing.T, gdb *gorm.DB) *Goals {
	t.Helper()
	if err := db.SeedGoals(gdb, seedGoals); err != nil {
		t.Fatalf("db.SeedGoals: %v", err)
	}
	return NewGoals(gdb)
}

func TestSessions_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testDB(t))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := record.Session{
		ID:             "sess-1",
		StudentID:      "stu-1",
		StartTime:      start,
		ElapsedSeconds: 42,
		Trials: []record.TrialRecord{
			{ID: "t1", GoalID: "g-colors", Timestamp: start, Outcome: record.OutcomeCorrect, PromptLevel: "Independent"},
		},
		GoalNotes: map[string]string{"g-colors": "good focus"},
	}
	if err := s.Save(ctx, "stu-1", sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.LoadAll(ctx, "stu-1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LoadAll returned %d sessions, want 1", len(got))
	}
	if got[0].ID != "sess-1" || got[0].ElapsedSeconds != 42 {
		t.Errorf("session = %+v", got[0])
	}
	if !got[0].StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", got[0].StartTime, start)
	}
	if len(got[0].Trials) != 1 || got[0].Trials[0].Outcome != record.OutcomeCorrect {
		t.Errorf("Trials = %+v", got[0].Trials)
	}
	if got[0].GoalNotes["g-colors"] != "good focus" {
		t.Errorf("GoalNotes = %v", got[0].GoalNotes)
	}
}

func TestSessions_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	s := NewSessions(gdb)

	sess := record.Session{ID: "sess-1", StudentID: "stu-1", ElapsedSeconds: 10}
	if err := s.Save(ctx, "stu-1", sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sess.ElapsedSeconds = 20
	end := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sess.EndTime = &end
	if err := s.Save(ctx, "stu-1", sess); err != nil {
		t.Fatalf("Save (again): %v", err)
	}

	got, err := s.LoadAll(ctx, "stu-1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LoadAll returned %d sessions, want 1 after upsert", len(got))
	}
	if got[0].ElapsedSeconds != 20 || got[0].EndTime == nil {
		t.Errorf("session = %+v, want the second save", got[0])
	}
}

func TestSessions_LoadAllScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testDB(t))

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	saves := []struct {
		student string
		id      string
		start   time.Time
	}{
		{"stu-1", "late", base.Add(2 * time.Hour)},
		{"stu-2", "other", base},
		{"stu-1", "early", base},
	}
	for _, sv := range saves {
		if err := s.Save(ctx, sv.student, record.Session{ID: sv.id, StudentID: sv.student, StartTime: sv.start}); err != nil {
			t.Fatalf("Save %s: %v", sv.id, err)
		}
	}

	got, err := s.LoadAll(ctx, "stu-1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadAll returned %d sessions, want 2", len(got))
	}
	if got[0].ID != "early" || got[1].ID != "late" {
		t.Errorf("order = [%s %s], want [early late]", got[0].ID, got[1].ID)
	}

	none, err := s.LoadAll(ctx, "stu-3")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("LoadAll for unknown student = %d sessions, want 0", len(none))
	}
}

func TestSessions_SaveRequiresID(t *testing.T) {
	s := NewSessions(testDB(t))
	err := s.Save(context.Background(), "stu-1", record.Session{})
	if !errors.Is(err, record.ErrValidation) {
		t.Errorf("Save error = %v, want ErrValidation", err)
	}
}

func TestSessions_Get(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testDB(t))
	if err := s.Save(ctx, "stu-1", record.Session{ID: "sess-1", StudentID: "stu-1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StudentID != "stu-1" {
		t.Errorf("StudentID = %q, want stu-1", got.StudentID)
	}

	_, err = s.Get(ctx, "missing")
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGoals_Goal(t *testing.T) {
	g := seededGoals(t, testDB(t))

	goal, err := g.Goal(context.Background(), "g-colors")
	if err != nil {
		t.Fatalf("Goal: %v", err)
	}
	if goal.DataType != record.DataPromptLevels {
		t.Errorf("DataType = %q, want prompt-levels", goal.DataType)
	}
	if len(goal.Prompts) != 3 || goal.Prompts[2] != "Physical" {
		t.Errorf("Prompts = %v", goal.Prompts)
	}
	if goal.Status != record.GoalActive {
		t.Errorf("Status = %q, want active", goal.Status)
	}

	hand, err := g.Goal(context.Background(), "g-hand")
	if err != nil {
		t.Fatalf("Goal: %v", err)
	}
	if len(hand.Prompts) != 0 {
		t.Errorf("Prompts = %v, want none", hand.Prompts)
	}
}

func TestGoals_GoalNotFound(t *testing.T) {
	g := seededGoals(t, testDB(t))
	_, err := g.Goal(context.Background(), "nope")
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGoals_List(t *testing.T) {
	g := seededGoals(t, testDB(t))

	goals, err := g.Goals(context.Background())
	if err != nil {
		t.Fatalf("Goals: %v", err)
	}
	var ids []string
	for _, goal := range goals {
		ids = append(ids, goal.ID)
	}
	want := []string{"g-colors", "g-hand", "g-agg"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestGoals_Plan(t *testing.T) {
	g := seededGoals(t, testDB(t))

	plan, err := g.Plan(context.Background(), "g-agg")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Function != "escape" || plan.CreatedBy != "Dr. Rivera" {
		t.Errorf("plan = %+v", plan)
	}
	if len(plan.PreventionStrategies) != 1 || plan.ReplacementBehaviors[0] != "Ask for a break" {
		t.Errorf("plan lists = %+v", plan)
	}
	if plan.LastUpdated.IsZero() {
		t.Error("LastUpdated is zero")
	}

	_, err = g.Plan(context.Background(), "g-colors")
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("Plan(no plan) error = %v, want ErrNotFound", err)
	}
}

func TestEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	goals := seededGoals(t, gdb)
	sessions := NewSessions(gdb)
	m := sched.NewManual(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	eng, err := session.New(session.Opts{StudentID: "stu-1", Store: sessions, Goals: goals, Clock: m, Scheduler: m})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if _, err := eng.SelectGoal(ctx, "g-agg"); err != nil {
		t.Fatalf("SelectGoal: %v", err)
	}
	if _, plan := eng.ABCEntries(); plan == nil || plan.Function != "escape" {
		t.Errorf("plan = %+v, want escape plan attached", plan)
	}
	if err := eng.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	m.Advance(3 * time.Second)
	if _, err := eng.AppendNote("g-agg", "calm after break"); err != nil {
		t.Fatalf("AppendNote: %v", err)
	}
	eng.StopSession()
	if err := eng.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	history, err := eng.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History = %d sessions, want 1", len(history))
	}
	if history[0].ElapsedSeconds != 3 || history[0].EndTime == nil {
		t.Errorf("session = %+v", history[0])
	}
	if history[0].GoalNotes["g-agg"] != "calm after break" {
		t.Errorf("GoalNotes = %v", history[0].GoalNotes)
	}
}
