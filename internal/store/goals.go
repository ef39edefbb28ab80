package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/fieldnote/internal/models"
	"github.com/zulandar/fieldnote/internal/record"
)

// Goals is the read-only goal bank. It implements session.GoalBank.
type Goals struct {
	db *gorm.DB
}

// NewGoals returns a goal bank backed by db.
func NewGoals(db *gorm.DB) *Goals {
	return &Goals{db: db}
}

// Goal returns the goal with the given id.
func (g *Goals) Goal(ctx context.Context, id string) (record.Goal, error) {
	var row models.Goal
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record.Goal{}, fmt.Errorf("store: goal %s: %w", id, record.ErrNotFound)
	}
	if err != nil {
		return record.Goal{}, fmt.Errorf("store: get goal %s: %w", id, err)
	}
	return toGoal(row)
}

// Goals lists the goal bank ordered by category and title.
func (g *Goals) Goals(ctx context.Context) ([]record.Goal, error) {
	var rows []models.Goal
	if err := g.db.WithContext(ctx).Order("category ASC, title ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list goals: %w", err)
	}
	out := make([]record.Goal, 0, len(rows))
	for _, row := range rows {
		goal, err := toGoal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, goal)
	}
	return out, nil
}

// Plan returns the behavior support plan attached to a goal.
func (g *Goals) Plan(ctx context.Context, goalID string) (record.BehaviorSupportPlan, error) {
	var row models.BehaviorSupportPlan
	err := g.db.WithContext(ctx).Where("goal_id = ?", goalID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record.BehaviorSupportPlan{}, fmt.Errorf("store: plan for goal %s: %w", goalID, record.ErrNotFound)
	}
	if err != nil {
		return record.BehaviorSupportPlan{}, fmt.Errorf("store: get plan for goal %s: %w", goalID, err)
	}

	plan := record.BehaviorSupportPlan{
		ID:                 row.ID,
		GoalID:             row.GoalID,
		BehaviorDefinition: row.BehaviorDefinition,
		Function:           row.Function,
		CreatedBy:          row.CreatedBy,
		LastUpdated:        row.UpdatedAt,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *[]string
	}{
		{"prevention_strategies", row.PreventionStrategies, &plan.PreventionStrategies},
		{"replacement_behaviors", row.ReplacementBehaviors, &plan.ReplacementBehaviors},
		{"response_strategies", row.ResponseStrategies, &plan.ResponseStrategies},
	} {
		if err := unmarshalList(f.raw, f.dst); err != nil {
			return record.BehaviorSupportPlan{}, fmt.Errorf("store: decode %s for goal %s: %w", f.name, goalID, err)
		}
	}
	return plan, nil
}

func toGoal(row models.Goal) (record.Goal, error) {
	goal := record.Goal{
		ID:       row.ID,
		Title:    row.Title,
		Category: row.Category,
		DataType: record.DataType(row.DataType),
		Status:   record.GoalStatus(row.Status),
	}
	if err := unmarshalList(row.Prompts, &goal.Prompts); err != nil {
		return record.Goal{}, fmt.Errorf("store: decode prompts for goal %s: %w", row.ID, err)
	}
	return goal, nil
}

// unmarshalList decodes a JSON string array column. Empty means none.
func unmarshalList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
