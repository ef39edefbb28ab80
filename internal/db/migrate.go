package db

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/fieldnote/internal/config"
	"github.com/zulandar/fieldnote/internal/models"
	"github.com/zulandar/fieldnote/internal/record"
)

// AllModels returns the GORM models managed by AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&models.SessionRecord{},
		&models.Goal{},
		&models.BehaviorSupportPlan{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedGoals upserts goals and their behavior support plans from
// configuration. A goal whose plan was removed from the config keeps its
// stored plan.
func SeedGoals(db *gorm.DB, goals []config.GoalConfig) error {
	for _, gc := range goals {
		prompts, err := marshalJSON(gc.Prompts)
		if err != nil {
			return fmt.Errorf("db: marshal prompts for goal %q: %w", gc.ID, err)
		}

		goal := models.Goal{
			ID:       gc.ID,
			Title:    gc.Title,
			Category: gc.Category,
			DataType: gc.DataType,
			Prompts:  prompts,
			Status:   gc.Status,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "category", "data_type", "prompts", "status", "updated_at"}),
		}).Create(&goal)
		if result.Error != nil {
			return fmt.Errorf("db: seed goal %q: %w", gc.ID, result.Error)
		}

		if gc.Plan != nil {
			if err := seedPlan(db, gc.ID, gc.Plan); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedPlan(db *gorm.DB, goalID string, pc *config.PlanConfig) error {
	prevention, err := marshalJSON(pc.PreventionStrategies)
	if err != nil {
		return fmt.Errorf("db: marshal prevention_strategies for goal %q: %w", goalID, err)
	}
	replacement, err := marshalJSON(pc.ReplacementBehaviors)
	if err != nil {
		return fmt.Errorf("db: marshal replacement_behaviors for goal %q: %w", goalID, err)
	}
	response, err := marshalJSON(pc.ResponseStrategies)
	if err != nil {
		return fmt.Errorf("db: marshal response_strategies for goal %q: %w", goalID, err)
	}

	plan := models.BehaviorSupportPlan{
		ID:                   record.NewID(),
		GoalID:               goalID,
		BehaviorDefinition:   pc.BehaviorDefinition,
		Function:             pc.Function,
		PreventionStrategies: prevention,
		ReplacementBehaviors: replacement,
		ResponseStrategies:   response,
		CreatedBy:            pc.CreatedBy,
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "goal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"behavior_definition", "function", "prevention_strategies",
			"replacement_behaviors", "response_strategies", "created_by", "updated_at",
		}),
	}).Create(&plan)
	if result.Error != nil {
		return fmt.Errorf("db: seed plan for goal %q: %w", goalID, result.Error)
	}
	return nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
