package session

import (
	"fmt"
	"strings"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/recorder"
)

// ABCField names one of the three narrative fields of an ABC entry.
type ABCField string

const (
	FieldAntecedent  ABCField = "antecedent"
	FieldBehavior    ABCField = "behavior"
	FieldConsequence ABCField = "consequence"
)

// ABCDraft collects ABC fields dictated one at a time before the entry is
// committed.
type ABCDraft struct {
	Antecedent  string `json:"antecedent"`
	Behavior    string `json:"behavior"`
	Consequence string `json:"consequence"`
}

// SetABCField fills one field of the draft for the active abc-data goal,
// replacing any earlier value.
func (e *Engine) SetABCField(field ABCField, text string) error {
	if _, err := e.requireModality(record.DataABC); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	switch field {
	case FieldAntecedent:
		e.draft.Antecedent = text
	case FieldBehavior:
		e.draft.Behavior = text
	case FieldConsequence:
		e.draft.Consequence = text
	default:
		return fmt.Errorf("session: abc field %q: %w", field, &record.ValidationError{Fields: []string{"field"}})
	}
	return nil
}

// ABCDraft returns the pending draft.
func (e *Engine) ABCDraft() ABCDraft { return e.draft }

// CommitABCDraft records the draft as an entry and clears it. An incomplete
// draft is rejected and kept so the missing fields can still be dictated.
func (e *Engine) CommitABCDraft(intensity record.Intensity, notes string) (record.ABCRecord, error) {
	rec, err := e.AddABC(recorder.ABCInput{
		Antecedent:  e.draft.Antecedent,
		Behavior:    e.draft.Behavior,
		Consequence: e.draft.Consequence,
		Intensity:   intensity,
		Notes:       notes,
	})
	if err != nil {
		return record.ABCRecord{}, err
	}
	e.draft = ABCDraft{}
	return rec, nil
}

// DiscardABCDraft clears the draft.
func (e *Engine) DiscardABCDraft() {
	e.draft = ABCDraft{}
}
