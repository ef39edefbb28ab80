package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState means the operation is not valid in the current state,
	// e.g. starting an already-active session. Nothing was changed.
	ErrInvalidState = errors.New("invalid state")
	// ErrWrongModality means the active goal records a different data type.
	ErrWrongModality = fmt.Errorf("%w: goal uses a different data type", ErrInvalidState)
	// ErrNoGoal means the operation needs a selected goal.
	ErrNoGoal = errors.New("no goal selected")
	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means required fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrDeviceAccess means the audio device refused access.
	ErrDeviceAccess = errors.New("audio device access denied")
	// ErrTranscriptionService means the transcription collaborator failed.
	// The source audio is retained for a retry.
	ErrTranscriptionService = errors.New("transcription service error")
	// ErrStorage means persistence failed. Session state is retained.
	ErrStorage = errors.New("storage error")
)

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }
