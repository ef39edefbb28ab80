package session

import (
	"strings"
	"time"

	"github.com/zulandar/fieldnote/internal/record"
)

const (
	NoteSourceManual = "manual"
	NoteSourceVoice  = "voice"
)

// noteSeparator joins consecutive entries when a buffer is rendered as text.
const noteSeparator = "\n\n"

// NoteBook is the session's arena of append-only note buffers, one per goal
// plus the session-level buffer under the empty goal id.
type NoteBook struct {
	entries []record.NoteEntry
}

// NewNoteBook returns an empty NoteBook.
func NewNoteBook() *NoteBook {
	return &NoteBook{}
}

// Append adds text to the goal's buffer.
func (n *NoteBook) Append(goalID, text, source string, ts time.Time) record.NoteEntry {
	e := record.NoteEntry{
		ID:        record.NewID(),
		GoalID:    goalID,
		Text:      text,
		Source:    source,
		Timestamp: ts,
	}
	n.entries = append(n.entries, e)
	return e
}

// Undo removes the most recent entry of the goal's buffer.
func (n *NoteBook) Undo(goalID string) (record.NoteEntry, bool) {
	for i := len(n.entries) - 1; i >= 0; i-- {
		if n.entries[i].GoalID == goalID {
			e := n.entries[i]
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			return e, true
		}
	}
	return record.NoteEntry{}, false
}

// Entries returns the goal's buffer in append order.
func (n *NoteBook) Entries(goalID string) []record.NoteEntry {
	var out []record.NoteEntry
	for _, e := range n.entries {
		if e.GoalID == goalID {
			out = append(out, e)
		}
	}
	return out
}

// Text renders the goal's buffer as one string.
func (n *NoteBook) Text(goalID string) string {
	var parts []string
	for _, e := range n.entries {
		if e.GoalID == goalID {
			parts = append(parts, e.Text)
		}
	}
	return strings.Join(parts, noteSeparator)
}

// GoalTexts renders every non-empty goal buffer, keyed by goal id. The
// session-level buffer is not included.
func (n *NoteBook) GoalTexts() map[string]string {
	out := make(map[string]string)
	for _, e := range n.entries {
		if e.GoalID == "" {
			continue
		}
		if _, ok := out[e.GoalID]; ok {
			continue
		}
		out[e.GoalID] = n.Text(e.GoalID)
	}
	return out
}

// All returns every entry in append order.
func (n *NoteBook) All() []record.NoteEntry {
	return append([]record.NoteEntry(nil), n.entries...)
}
