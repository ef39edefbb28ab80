// Package voice turns continuously recognized speech into session actions.
// Utterances are matched against an ordered classifier table; the first rule
// that matches produces a Command, which the Dispatcher applies through the
// same engine methods a manual action uses.
package voice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/session"
)

// Kind tags a Command.
type Kind int

const (
	KindNone Kind = iota
	KindTrialOutcome
	KindABCField
	KindFrequency
	KindDurationStart
	KindDurationStop
	KindTrialNext
	KindTrialPrevious
	KindSessionStart
	KindSessionStop
)

var kindNames = map[Kind]string{
	KindNone:          "none",
	KindTrialOutcome:  "trial-outcome",
	KindABCField:      "abc-field",
	KindFrequency:     "frequency",
	KindDurationStart: "duration-start",
	KindDurationStop:  "duration-stop",
	KindTrialNext:     "trial-next",
	KindTrialPrevious: "trial-previous",
	KindSessionStart:  "session-start",
	KindSessionStop:   "session-stop",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("voice: unknown command kind %q", b)
}

// Command is a classified utterance. Outcome is set for KindTrialOutcome;
// Field and Text for KindABCField.
type Command struct {
	Kind    Kind             `json:"kind"`
	Outcome record.Outcome   `json:"outcome,omitempty"`
	Field   session.ABCField `json:"field,omitempty"`
	Text    string           `json:"text,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case KindTrialOutcome:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Outcome)
	case KindABCField:
		return fmt.Sprintf("%s(%s=%q)", c.Kind, c.Field, c.Text)
	}
	return c.Kind.String()
}

// keyword matches a word or phrase on word boundaries, case-insensitively.
type keyword struct {
	phrase string
	re     *regexp.Regexp
}

func kw(phrase string) keyword {
	parts := strings.Fields(phrase)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return keyword{
		phrase: phrase,
		re:     regexp.MustCompile(`(?i)\b` + strings.Join(parts, `\s+`) + `\b`),
	}
}

func anyOf(text string, kws []keyword) bool {
	for _, k := range kws {
		if k.re.MatchString(text) {
			return true
		}
	}
	return false
}

// rule is one row of the classifier table. A non-empty only restricts the
// rule to goals of that data type.
type rule struct {
	name  string
	only  record.DataType
	match func(text string) (Command, bool)
}

// choice maps a keyword group to the command it produces.
type choice struct {
	kws []keyword
	cmd Command
}

func firstOf(choices ...choice) func(string) (Command, bool) {
	return func(text string) (Command, bool) {
		for _, c := range choices {
			if anyOf(text, c.kws) {
				return c.cmd, true
			}
		}
		return Command{}, false
	}
}

func kws(phrases ...string) []keyword {
	out := make([]keyword, len(phrases))
	for i, p := range phrases {
		out[i] = kw(p)
	}
	return out
}

var abcFields = []struct {
	field session.ABCField
	kw    keyword
}{
	{session.FieldAntecedent, kw("antecedent")},
	{session.FieldBehavior, kw("behavior")},
	{session.FieldConsequence, kw("consequence")},
}

// matchABCField takes the first field keyword present and treats the rest of
// the utterance as the field content.
func matchABCField(text string) (Command, bool) {
	for _, f := range abcFields {
		loc := f.kw.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		rest := strings.TrimSpace(text[:loc[0]] + " " + text[loc[1]:])
		rest = strings.Join(strings.Fields(rest), " ")
		return Command{Kind: KindABCField, Field: f.field, Text: rest}, true
	}
	return Command{}, false
}

// classifiers is evaluated top to bottom; the first match wins.
var classifiers = []rule{
	{
		name: "trial-outcome",
		only: record.DataPromptLevels,
		match: firstOf(
			choice{kws("correct", "right", "yes"), Command{Kind: KindTrialOutcome, Outcome: record.OutcomeCorrect}},
			choice{kws("incorrect", "wrong", "no"), Command{Kind: KindTrialOutcome, Outcome: record.OutcomeIncorrect}},
			choice{kws("prompt", "prompted"), Command{Kind: KindTrialOutcome, Outcome: record.OutcomePrompted}},
		),
	},
	{
		name:  "abc-field",
		only:  record.DataABC,
		match: matchABCField,
	},
	{
		name: "frequency",
		match: firstOf(
			choice{kws("count", "frequency", "increment"), Command{Kind: KindFrequency}},
		),
	},
	{
		name: "duration",
		match: firstOf(
			choice{kws("start duration", "begin duration"), Command{Kind: KindDurationStart}},
			choice{kws("stop duration", "end duration"), Command{Kind: KindDurationStop}},
		),
	},
	{
		name: "navigation",
		match: firstOf(
			choice{kws("next trial", "next"), Command{Kind: KindTrialNext}},
			choice{kws("previous trial", "previous", "back"), Command{Kind: KindTrialPrevious}},
		),
	},
	{
		name: "session",
		match: firstOf(
			choice{kws("start session"), Command{Kind: KindSessionStart}},
			choice{kws("stop session", "end session"), Command{Kind: KindSessionStop}},
		),
	},
}

// ParseCommand classifies an utterance for a goal of the given data type.
// Unrecognized text yields a KindNone command.
func ParseCommand(text string, dt record.DataType) Command {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Command{}
	}
	for _, r := range classifiers {
		if r.only != "" && r.only != dt {
			continue
		}
		if cmd, ok := r.match(text); ok {
			return cmd
		}
	}
	return Command{}
}
