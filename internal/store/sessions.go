// Package store implements the session store and goal bank on top of GORM.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/fieldnote/internal/models"
	"github.com/zulandar/fieldnote/internal/record"
)

// Sessions persists record.Session documents keyed by student id. It
// implements session.Store.
type Sessions struct {
	db *gorm.DB
}

// NewSessions returns a Sessions store backed by db.
func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

// Save inserts the session or replaces the stored copy with the same id.
func (s *Sessions) Save(ctx context.Context, studentID string, sess record.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("store: save session: %w", &record.ValidationError{Fields: []string{"id"}})
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("store: marshal session %s: %w", sess.ID, err)
	}

	row := models.SessionRecord{
		SessionID:      sess.ID,
		StudentID:      studentID,
		StartTime:      sess.StartTime,
		EndTime:        sess.EndTime,
		ElapsedSeconds: sess.ElapsedSeconds,
		Trials:         len(sess.Trials),
		Data:           string(data),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"student_id", "start_time", "end_time", "elapsed_seconds", "trials", "data", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("store: save session %s: %w", sess.ID, result.Error)
	}
	return nil
}

// LoadAll returns every session of the student, oldest first.
func (s *Sessions) LoadAll(ctx context.Context, studentID string) ([]record.Session, error) {
	var rows []models.SessionRecord
	err := s.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("start_time ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: load sessions for %s: %w", studentID, err)
	}

	out := make([]record.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := decodeSession(row)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Get returns one stored session by id.
func (s *Sessions) Get(ctx context.Context, sessionID string) (record.Session, error) {
	var row models.SessionRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record.Session{}, fmt.Errorf("store: session %s: %w", sessionID, record.ErrNotFound)
	}
	if err != nil {
		return record.Session{}, fmt.Errorf("store: get session %s: %w", sessionID, err)
	}
	return decodeSession(row)
}

func decodeSession(row models.SessionRecord) (record.Session, error) {
	var sess record.Session
	if err := json.Unmarshal([]byte(row.Data), &sess); err != nil {
		return record.Session{}, fmt.Errorf("store: decode session %s: %w", row.SessionID, err)
	}
	return sess, nil
}
