package models

import "time"

// Goal is a goal bank entry seeded from configuration.
type Goal struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:255;not null"`
	Category  string `gorm:"size:64"`
	DataType  string `gorm:"size:32;not null;index"`
	Prompts   string `gorm:"type:text"` // JSON array of prompt labels
	Status    string `gorm:"size:16;default:active;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Plan *BehaviorSupportPlan `gorm:"foreignKey:GoalID"`
}

// BehaviorSupportPlan is the clinician-authored plan for an abc-data goal.
// At most one plan exists per goal.
type BehaviorSupportPlan struct {
	ID                   string `gorm:"primaryKey;size:64"`
	GoalID               string `gorm:"size:64;uniqueIndex;not null"`
	BehaviorDefinition   string `gorm:"type:text"`
	Function             string `gorm:"size:16"` // attention, escape, access, automatic
	PreventionStrategies string `gorm:"type:text"` // JSON array
	ReplacementBehaviors string `gorm:"type:text"` // JSON array
	ResponseStrategies   string `gorm:"type:text"` // JSON array
	CreatedBy            string `gorm:"size:128"`
	UpdatedAt            time.Time
}
