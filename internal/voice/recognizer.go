package voice

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"
	"sync"
)

// Event is one message from a recognition session: either a recognized
// utterance or an error code.
type Event struct {
	Text      string
	IsFinal   bool
	ErrorCode string
}

// Recognizer is a continuous speech recognition service. Start opens a
// listening session whose events arrive on the returned channel; the channel
// is closed when the session ends, whether by Stop or by the service.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Event, error)
	Stop() error
}

// ErrorClass groups recognizer error codes by how the dispatcher reacts.
type ErrorClass int

const (
	// ErrorTransient errors are ignored; the listener restarts on end.
	ErrorTransient ErrorClass = iota
	// ErrorFatal errors disable voice commands until re-enabled.
	ErrorFatal
	// ErrorOther errors are logged and otherwise ignored.
	ErrorOther
)

// Error codes reported by recognizers.
const (
	CodeNoSpeech     = "no-speech"
	CodeAudioCapture = "audio-capture"
	CodeAborted      = "aborted"
	CodeNetwork      = "network"
	CodeNotAllowed   = "not-allowed"
)

// Classify maps a recognizer error code to its class.
func Classify(code string) ErrorClass {
	switch code {
	case CodeNoSpeech, CodeAudioCapture, CodeAborted, CodeNetwork:
		return ErrorTransient
	case CodeNotAllowed:
		return ErrorFatal
	}
	return ErrorOther
}

// LineRecognizer treats each line of a reader as a final recognition result,
// which makes a terminal or a pipe usable as a voice front end. Special
// lines:
//
//	!error <code>   emit an error event
//	!end            end the current listening session
//	~<text>         emit an interim (non-final) result
type LineRecognizer struct {
	r     io.Reader
	once  sync.Once
	lines chan string

	mu   sync.Mutex
	stop chan struct{}
}

// NewLineRecognizer reads lines from r.
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r, lines: make(chan string)}
}

// scan feeds lines to whichever session is listening. It runs once for the
// lifetime of the recognizer and closes lines at EOF.
func (l *LineRecognizer) scan() {
	defer close(l.lines)
	sc := bufio.NewScanner(l.r)
	for sc.Scan() {
		l.lines <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		log.Printf("voice: read input: %v", err)
	}
}

// Start begins a listening session. Once the reader is exhausted every
// session ends immediately.
func (l *LineRecognizer) Start(ctx context.Context) (<-chan Event, error) {
	l.once.Do(func() { go l.scan() })

	stop := make(chan struct{})
	l.mu.Lock()
	if l.stop != nil {
		close(l.stop)
	}
	l.stop = stop
	l.mu.Unlock()

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			var line string
			var ok bool
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case line, ok = <-l.lines:
				if !ok {
					return
				}
			}
			ev, end, skip := parseLine(line)
			if end {
				return
			}
			if skip {
				continue
			}
			select {
			case out <- ev:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Stop ends the current listening session.
func (l *LineRecognizer) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
	return nil
}

func parseLine(line string) (ev Event, end, skip bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Event{}, false, true
	case line == "!end":
		return Event{}, true, false
	case strings.HasPrefix(line, "!error"):
		code := strings.TrimSpace(strings.TrimPrefix(line, "!error"))
		if code == "" {
			return Event{}, false, true
		}
		return Event{ErrorCode: code}, false, false
	case strings.HasPrefix(line, "~"):
		return Event{Text: strings.TrimSpace(line[1:])}, false, false
	}
	return Event{Text: line, IsFinal: true}, false, false
}
