package db

import (
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/zulandar/fieldnote/internal/config"
	"github.com/zulandar/fieldnote/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Name: "fieldnote"},
			want: "root@tcp(127.0.0.1:3306)/fieldnote?parseTime=true",
		},
		{
			name: "password and custom port",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, User: "fn", Password: "s3cret", Name: "fieldnote_prod"},
			want: "fn:s3cret@tcp(10.0.0.5:3307)/fieldnote_prod?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_IPv6Host(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "::1", Port: 3306, User: "root", Name: "fn"})
	if !strings.Contains(dsn, "tcp([::1]:3306)") {
		t.Errorf("DSN should bracket IPv6 hosts: %s", dsn)
	}
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), `unknown driver "postgres"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldnote.db")
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T missing", m)
		}
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 3 {
		t.Errorf("AllModels() returned %d models, want 3", got)
	}
}

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{name: "nil returns empty", input: nil, want: ""},
		{name: "string slice", input: []string{"Independent", "Verbal"}, want: `["Independent","Verbal"]`},
		{name: "empty slice", input: []string{}, want: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalJSON(tt.input)
			if err != nil {
				t.Fatalf("marshalJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("marshalJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gdb
}

func TestSeedGoals(t *testing.T) {
	gdb := testDB(t)

	goals := []config.GoalConfig{
		{ID: "g-colors", Title: "Identify colors", Category: "Academic", DataType: "prompt-levels", Prompts: []string{"Independent", "Verbal"}, Status: "active"},
		{ID: "g-agg", Title: "Reduce aggression", DataType: "abc-data", Status: "active", Plan: &config.PlanConfig{
			BehaviorDefinition:   "Hitting peers",
			Function:             "escape",
			ReplacementBehaviors: []string{"Ask for a break"},
		}},
	}
	if err := SeedGoals(gdb, goals); err != nil {
		t.Fatalf("SeedGoals: %v", err)
	}

	var g models.Goal
	if err := gdb.First(&g, "id = ?", "g-colors").Error; err != nil {
		t.Fatalf("load goal: %v", err)
	}
	if g.Prompts != `["Independent","Verbal"]` {
		t.Errorf("Prompts = %q", g.Prompts)
	}

	var plan models.BehaviorSupportPlan
	if err := gdb.First(&plan, "goal_id = ?", "g-agg").Error; err != nil {
		t.Fatalf("load plan: %v", err)
	}
	if plan.Function != "escape" || plan.ReplacementBehaviors != `["Ask for a break"]` {
		t.Errorf("plan = %+v", plan)
	}
}

func TestSeedGoals_Upsert(t *testing.T) {
	gdb := testDB(t)

	first := []config.GoalConfig{{ID: "g1", Title: "Old title", DataType: "frequency", Status: "active"}}
	if err := SeedGoals(gdb, first); err != nil {
		t.Fatalf("SeedGoals: %v", err)
	}
	second := []config.GoalConfig{{ID: "g1", Title: "New title", DataType: "frequency", Status: "on-hold"}}
	if err := SeedGoals(gdb, second); err != nil {
		t.Fatalf("SeedGoals (again): %v", err)
	}

	var count int64
	gdb.Model(&models.Goal{}).Count(&count)
	if count != 1 {
		t.Errorf("goal count = %d, want 1", count)
	}
	var g models.Goal
	gdb.First(&g, "id = ?", "g1")
	if g.Title != "New title" || g.Status != "on-hold" {
		t.Errorf("goal = %+v, want updated title and status", g)
	}
}

func TestSeedGoals_PlanUpsert(t *testing.T) {
	gdb := testDB(t)

	goal := config.GoalConfig{ID: "g1", Title: "T", DataType: "abc-data", Status: "active", Plan: &config.PlanConfig{Function: "attention"}}
	if err := SeedGoals(gdb, []config.GoalConfig{goal}); err != nil {
		t.Fatalf("SeedGoals: %v", err)
	}
	goal.Plan = &config.PlanConfig{Function: "access"}
	if err := SeedGoals(gdb, []config.GoalConfig{goal}); err != nil {
		t.Fatalf("SeedGoals (again): %v", err)
	}

	var plans []models.BehaviorSupportPlan
	gdb.Find(&plans)
	if len(plans) != 1 {
		t.Fatalf("plan count = %d, want 1", len(plans))
	}
	if plans[0].Function != "access" {
		t.Errorf("Function = %q, want access", plans[0].Function)
	}
}
