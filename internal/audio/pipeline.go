package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// NoteSink receives attached transcripts. session.Engine implements it.
type NoteSink interface {
	AttachVoiceNote(goalID, text string, length time.Duration) (record.VoiceNote, error)
}

// Opts holds parameters for creating a Pipeline.
type Opts struct {
	Device      Device
	Transcriber Transcriber
	Notes       NoteSink
	Poster      sched.Poster    // the engine loop; transcription results are delivered here
	Scheduler   sched.Scheduler // drives the recording elapsed counter
	Tick        time.Duration   // defaults to one second

	// OnDeviceDenied fires when the device refuses access.
	OnDeviceDenied func(err error)
	// OnTranscribed fires on the loop when a transcription attempt finishes.
	// err is nil on success.
	OnTranscribed func(text string, err error)
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	State          State  `json:"state"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Transcribing   bool   `json:"transcribing"`
	Transcript     string `json:"transcript"`
	HasRecording   bool   `json:"hasRecording"`
	LastError      string `json:"lastError,omitempty"`
	Unavailable    bool   `json:"unavailable"`
}

// Pipeline records a voice note, transcribes it and attaches the transcript
// to the session notes. All methods must be called from the engine loop.
type Pipeline struct {
	opts Opts

	ctx    context.Context
	cancel context.CancelFunc

	state     State
	stream    Stream
	collector *collector
	elapsed   int
	tick      sched.CancelHandle

	blob         *Blob
	transcript   string
	transcribing bool
	gen          int
	lastErr      error
	unavailable  bool
}

// NewPipeline creates an idle Pipeline.
func NewPipeline(opts Opts) (*Pipeline, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("audio: pipeline: device is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("audio: pipeline: transcriber is required")
	}
	if opts.Notes == nil {
		return nil, fmt.Errorf("audio: pipeline: note sink is required")
	}
	if opts.Poster == nil || opts.Scheduler == nil {
		return nil, fmt.Errorf("audio: pipeline: poster and scheduler are required")
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{opts: opts, ctx: ctx, cancel: cancel}, nil
}

// State returns the capture state.
func (p *Pipeline) State() State { return p.state }

// Status reports the pipeline's state for display.
func (p *Pipeline) Status() Status {
	s := Status{
		State:          p.state,
		ElapsedSeconds: p.elapsed,
		Transcribing:   p.transcribing,
		Transcript:     p.transcript,
		HasRecording:   p.blob != nil,
		Unavailable:    p.unavailable,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// Start acquires the device and begins recording. A refused device returns an
// error wrapping record.ErrDeviceAccess and marks the pipeline unavailable
// until a later Start succeeds.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.state != StateIdle {
		return fmt.Errorf("audio: start while %s: %w", p.state, record.ErrInvalidState)
	}
	stream, err := p.opts.Device.Acquire(ctx)
	if err != nil {
		if errors.Is(err, record.ErrDeviceAccess) {
			p.unavailable = true
			p.lastErr = err
			log.Printf("audio: device access denied: %v", err)
			if p.opts.OnDeviceDenied != nil {
				p.opts.OnDeviceDenied(err)
			}
		}
		return fmt.Errorf("audio: acquire device: %w", err)
	}

	p.unavailable = false
	p.lastErr = nil
	p.stream = stream
	p.collector = newCollector(stream)
	p.elapsed = 0
	p.state = StateRecording
	p.startTick()
	return nil
}

// Pause suspends capture and the elapsed counter.
func (p *Pipeline) Pause() error {
	if p.state != StateRecording {
		return fmt.Errorf("audio: pause while %s: %w", p.state, record.ErrInvalidState)
	}
	p.stopTick()
	p.collector.paused.Store(true)
	if pz, ok := p.stream.(Pauser); ok {
		if err := pz.Pause(); err != nil {
			log.Printf("audio: pause stream: %v", err)
		}
	}
	p.state = StatePaused
	return nil
}

// Resume continues a paused recording.
func (p *Pipeline) Resume() error {
	if p.state != StatePaused {
		return fmt.Errorf("audio: resume while %s: %w", p.state, record.ErrInvalidState)
	}
	if pz, ok := p.stream.(Pauser); ok {
		if err := pz.Resume(); err != nil {
			log.Printf("audio: resume stream: %v", err)
		}
	}
	p.collector.paused.Store(false)
	p.state = StateRecording
	p.startTick()
	return nil
}

// Stop finalizes the recording into a Blob, returns to idle and starts
// transcription in the background.
func (p *Pipeline) Stop(ctx context.Context) (Blob, error) {
	if p.state == StateIdle {
		return Blob{}, fmt.Errorf("audio: stop while idle: %w", record.ErrInvalidState)
	}
	p.stopTick()
	if err := p.stream.Stop(); err != nil {
		log.Printf("audio: stop stream: %v", err)
	}
	data, err := p.collector.wait(ctx)
	mime := p.stream.MIMEType()
	p.stream = nil
	p.collector = nil
	p.state = StateIdle
	if err != nil {
		return Blob{}, fmt.Errorf("audio: finalize recording: %w", err)
	}

	blob := Blob{
		Data:     data,
		MIMEType: mime,
		Duration: time.Duration(p.elapsed) * p.opts.Tick,
	}
	p.blob = &blob
	p.transcript = ""
	p.transcribe()
	return blob, nil
}

// Retry re-submits the retained recording after a failed transcription.
func (p *Pipeline) Retry() error {
	if p.blob == nil {
		return fmt.Errorf("audio: no recording to transcribe: %w", record.ErrInvalidState)
	}
	if p.transcribing {
		return fmt.Errorf("audio: transcription already running: %w", record.ErrInvalidState)
	}
	p.transcribe()
	return nil
}

func (p *Pipeline) transcribe() {
	p.gen++
	gen := p.gen
	blob := *p.blob
	p.transcribing = true
	p.lastErr = nil

	go func() {
		text, err := p.opts.Transcriber.Transcribe(p.ctx, blob)
		p.opts.Poster.Post(func() {
			p.finishTranscription(gen, text, err)
		})
	}()
}

func (p *Pipeline) finishTranscription(gen int, text string, err error) {
	if gen != p.gen {
		return
	}
	p.transcribing = false
	if err != nil {
		p.lastErr = fmt.Errorf("audio: transcribe: %w: %w", record.ErrTranscriptionService, err)
		log.Printf("audio: transcription failed, recording kept for retry: %v", err)
	} else {
		p.transcript = strings.TrimSpace(text)
	}
	if p.opts.OnTranscribed != nil {
		p.opts.OnTranscribed(p.transcript, p.lastErr)
	}
}

// LastError returns the error of the last failed operation, if any.
func (p *Pipeline) LastError() error { return p.lastErr }

// Transcript returns the editable transcript buffer.
func (p *Pipeline) Transcript() string { return p.transcript }

// SetTranscript replaces the transcript with the user's edit.
func (p *Pipeline) SetTranscript(text string) {
	p.transcript = text
}

// AttachToNotes appends the transcript to the goal's notes, or the session
// notes when goalID is empty, and clears the transcript and recording.
func (p *Pipeline) AttachToNotes(goalID string) (record.VoiceNote, error) {
	if strings.TrimSpace(p.transcript) == "" {
		return record.VoiceNote{}, &record.ValidationError{Fields: []string{"transcript"}}
	}
	var length time.Duration
	if p.blob != nil {
		length = p.blob.Duration
	}
	vn, err := p.opts.Notes.AttachVoiceNote(goalID, p.transcript, length)
	if err != nil {
		return record.VoiceNote{}, err
	}
	p.Discard()
	return vn, nil
}

// Discard drops the transcript and retained recording. A transcription still
// in flight is ignored when it completes.
func (p *Pipeline) Discard() {
	p.gen++
	p.transcript = ""
	p.blob = nil
	p.transcribing = false
	p.lastErr = nil
}

// Close stops any recording and abandons in-flight transcription.
func (p *Pipeline) Close() {
	p.stopTick()
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			log.Printf("audio: stop stream: %v", err)
		}
		p.stream = nil
		p.collector = nil
	}
	p.state = StateIdle
	p.gen++
	p.cancel()
}

func (p *Pipeline) startTick() {
	p.tick = p.opts.Scheduler.SchedulePeriodic(p.opts.Tick, func() {
		p.elapsed++
	})
}

func (p *Pipeline) stopTick() {
	if p.tick != nil {
		p.tick.Cancel()
		p.tick = nil
	}
}

// collector drains a stream's chunks into a buffer off the loop.
type collector struct {
	paused atomic.Bool
	done   chan struct{}

	mu  sync.Mutex
	buf bytes.Buffer
}

func newCollector(s Stream) *collector {
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for chunk := range s.Chunks() {
			if c.paused.Load() {
				continue
			}
			c.mu.Lock()
			c.buf.Write(chunk)
			c.mu.Unlock()
		}
	}()
	return c
}

// wait blocks until the stream has closed its chunk channel.
func (c *collector) wait(ctx context.Context) ([]byte, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...), nil
}
