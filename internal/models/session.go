package models

import "time"

// SessionRecord stores one saved data-collection session. The full
// record.Session is kept as a JSON document in Data; the indexed columns
// exist for listing and ordering without decoding it.
type SessionRecord struct {
	ID             uint       `gorm:"primaryKey;autoIncrement"`
	SessionID      string     `gorm:"size:64;uniqueIndex;not null"`
	StudentID      string     `gorm:"size:64;not null;index"`
	StartTime      time.Time  `gorm:"index"`
	EndTime        *time.Time
	ElapsedSeconds int        `gorm:"default:0"`
	Trials         int        `gorm:"default:0"`
	Data           string     `gorm:"type:text;not null"` // JSON record.Session
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
