// Package audio captures spoken notes, hands the recording to a transcription
// service and turns the transcript into session notes.
package audio

import (
	"context"
	"fmt"
	"time"
)

// State is the capture state of a Pipeline.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StatePaused; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("audio: unknown state %q", b)
}

// Blob is a finalized recording.
type Blob struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
}

// Device is an audio capture source. Acquire returns an error wrapping
// record.ErrDeviceAccess when access is refused.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired capture. Chunks delivers raw audio and is closed once
// capture ends, either because Stop was called or the source ran dry.
type Stream interface {
	Chunks() <-chan []byte
	MIMEType() string
	Stop() error
}

// Pauser is implemented by streams that can suspend capture at the source.
// Streams without it keep capturing while paused and the pipeline drops the
// audio.
type Pauser interface {
	Pause() error
	Resume() error
}

// Transcriber converts a recording to text.
type Transcriber interface {
	Transcribe(ctx context.Context, b Blob) (string, error)
}
