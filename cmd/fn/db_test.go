package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/fieldnote/internal/config"
	"github.com/zulandar/fieldnote/internal/db"
	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/store"
)

// writeConfig writes a sqlite-backed config into a temp dir and returns its
// path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yaml := fmt.Sprintf(`
student: stu-7
database:
  driver: sqlite
  path: %s
transcription:
  url: http://127.0.0.1:9/v1/audio/transcriptions
goals:
  - id: g-colors
    title: Identify colors
    category: Academic
    data_type: prompt-levels
    prompts: [Independent, Verbal]
  - id: g-agg
    title: Reduce aggression
    category: Behavior
    data_type: abc-data
    plan:
      function: escape
`, filepath.Join(dir, "fieldnote.db"))
	path := filepath.Join(dir, "fieldnote.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestDBCmd_Help(t *testing.T) {
	out, err := run(t, "db", "--help")
	if err != nil {
		t.Fatalf("db --help failed: %v", err)
	}
	if !strings.Contains(out, "Database management") {
		t.Errorf("expected help to mention 'Database management', got: %s", out)
	}
	if !strings.Contains(out, "init") {
		t.Errorf("expected help to list 'init' subcommand, got: %s", out)
	}
}

func TestDBInitCmd_Help(t *testing.T) {
	out, err := run(t, "db", "init", "--help")
	if err != nil {
		t.Fatalf("db init --help failed: %v", err)
	}
	if !strings.Contains(out, "--config") {
		t.Errorf("expected help to mention '--config' flag, got: %s", out)
	}
	if !strings.Contains(out, "fieldnote.yaml") {
		t.Errorf("expected default config path 'fieldnote.yaml', got: %s", out)
	}
}

func TestDBInitCmd_MissingConfig(t *testing.T) {
	_, err := run(t, "db", "init", "--config", "/nonexistent/fieldnote.yaml")
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain 'load config'", err.Error())
	}
}

func TestDBInitThenGoalsList(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "db", "init", "--config", path)
	if err != nil {
		t.Fatalf("db init failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `student "stu-7"`) {
		t.Errorf("expected student in output, got: %s", out)
	}
	if !strings.Contains(out, "Migrated 3 tables") {
		t.Errorf("expected migrated table count, got: %s", out)
	}
	if !strings.Contains(out, "Seeded 2 goals (1 with behavior support plans)") {
		t.Errorf("expected seed summary, got: %s", out)
	}

	out, err = run(t, "goals", "list", "--config", path)
	if err != nil {
		t.Fatalf("goals list failed: %v", err)
	}
	for _, want := range []string{"ID", "g-colors", "prompt-levels", "Independent, Verbal", "g-agg", "abc-data"} {
		if !strings.Contains(out, want) {
			t.Errorf("goals list missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "g-colors") > strings.Index(out, "g-agg") {
		t.Errorf("expected Academic goals before Behavior goals:\n%s", out)
	}
}

func TestSessionsListAndShow(t *testing.T) {
	path := writeConfig(t)
	if _, err := run(t, "db", "init", "--config", path); err != nil {
		t.Fatalf("db init failed: %v", err)
	}

	out, err := run(t, "sessions", "list", "--config", path)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "No sessions for student stu-7") {
		t.Errorf("expected empty message, got: %s", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := record.Session{
		ID:             "sess-42",
		StudentID:      "stu-7",
		StartTime:      start,
		ElapsedSeconds: 3725,
		Trials: []record.TrialRecord{
			{ID: "t1", GoalID: "g-colors", Outcome: record.OutcomeCorrect},
			{ID: "t2", GoalID: "g-colors", Outcome: record.OutcomeIncorrect},
		},
		GoalNotes: map[string]string{"g-colors": "strong finish"},
	}
	if err := store.NewSessions(gormDB).Save(context.Background(), "stu-7", sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err = run(t, "sessions", "list", "--config", path)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	for _, want := range []string{"sess-42", "1:02:05", "50%"} {
		if !strings.Contains(out, want) {
			t.Errorf("sessions list missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "sessions", "show", "sess-42", "--config", path)
	if err != nil {
		t.Fatalf("sessions show failed: %v", err)
	}
	for _, want := range []string{"Session:  sess-42", "g-colors", "strong finish"} {
		if !strings.Contains(out, want) {
			t.Errorf("sessions show missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "sessions", "show", "sess-42", "--json", "--config", path)
	if err != nil {
		t.Fatalf("sessions show --json failed: %v", err)
	}
	if !strings.Contains(out, `"elapsedSeconds": 3725`) {
		t.Errorf("expected raw JSON, got: %s", out)
	}

	if _, err := run(t, "sessions", "show", "missing", "--config", path); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00:00"},
		{59, "0:00:59"},
		{61, "0:01:01"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.seconds); got != tt.want {
			t.Errorf("formatElapsed(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
