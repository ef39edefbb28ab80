package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// queuePoster stands in for the engine loop; tests drain it explicitly.
type queuePoster struct {
	ch chan func()
}

func newQueuePoster() *queuePoster {
	return &queuePoster{ch: make(chan func(), 8)}
}

func (q *queuePoster) Post(fn func()) bool {
	q.ch <- fn
	return true
}

func (q *queuePoster) runNext(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted callback")
	}
}

// fakeStream delivers its data when stopped so the collector sees it
// regardless of goroutine scheduling.
type fakeStream struct {
	data   []string
	chunks chan []byte
	once   sync.Once
	paused bool
}

func newFakeStream(data ...string) *fakeStream {
	return &fakeStream{data: data, chunks: make(chan []byte, len(data))}
}

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeStream) MIMEType() string      { return "audio/wav" }
func (s *fakeStream) Pause() error          { s.paused = true; return nil }
func (s *fakeStream) Resume() error         { s.paused = false; return nil }
func (s *fakeStream) Stop() error {
	s.once.Do(func() {
		for _, d := range s.data {
			s.chunks <- []byte(d)
		}
		close(s.chunks)
	})
	return nil
}

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Acquire(context.Context) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	fail  bool
	text  string
	blobs []Blob
}

func (f *fakeTranscriber) Transcribe(_ context.Context, b Blob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.blobs = append(f.blobs, b)
	if f.fail {
		return "", errors.New("503 from upstream")
	}
	return f.text, nil
}

type fakeNotes struct {
	goalID string
	text   string
	length time.Duration
}

func (n *fakeNotes) AttachVoiceNote(goalID, text string, length time.Duration) (record.VoiceNote, error) {
	n.goalID, n.text, n.length = goalID, text, length
	return record.VoiceNote{ID: "vn", GoalID: goalID, Text: text, DurationSeconds: int(length / time.Second)}, nil
}

type pipelineFixture struct {
	p      *Pipeline
	clock  *sched.Manual
	poster *queuePoster
	dev    *fakeDevice
	tr     *fakeTranscriber
	notes  *fakeNotes
	denied []error
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		clock:  sched.NewManual(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		poster: newQueuePoster(),
		dev:    &fakeDevice{stream: newFakeStream("RIFF", "data")},
		tr:     &fakeTranscriber{text: " Worked on sharing. "},
		notes:  &fakeNotes{},
	}
	p, err := NewPipeline(Opts{
		Device:         f.dev,
		Transcriber:    f.tr,
		Notes:          f.notes,
		Poster:         f.poster,
		Scheduler:      f.clock,
		OnDeviceDenied: func(err error) { f.denied = append(f.denied, err) },
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	f.p = p
	return f
}

func TestPipeline_RecordTranscribeAttach(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.Start(ctx))
	assert.Equal(t, StateRecording, f.p.State())
	f.clock.Advance(3 * time.Second)

	require.NoError(t, f.p.Pause())
	f.clock.Advance(10 * time.Second)
	assert.Equal(t, 3, f.p.Status().ElapsedSeconds, "elapsed pauses with capture")
	assert.True(t, f.dev.stream.paused)

	require.NoError(t, f.p.Resume())
	f.clock.Advance(2 * time.Second)

	blob, err := f.p.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, f.p.State())
	assert.Equal(t, "RIFFdata", string(blob.Data))
	assert.Equal(t, 5*time.Second, blob.Duration)
	assert.True(t, f.p.Status().Transcribing)

	f.poster.runNext(t)
	assert.Equal(t, "Worked on sharing.", f.p.Transcript())

	f.p.SetTranscript("Worked on sharing toys.")
	vn, err := f.p.AttachToNotes("g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", vn.GoalID)
	assert.Equal(t, "Worked on sharing toys.", f.notes.text)
	assert.Equal(t, 5*time.Second, f.notes.length)

	st := f.p.Status()
	assert.Empty(t, st.Transcript)
	assert.False(t, st.HasRecording)
}

func TestPipeline_InvalidTransitions(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.p.Pause(), record.ErrInvalidState)
	assert.ErrorIs(t, f.p.Resume(), record.ErrInvalidState)
	_, err := f.p.Stop(ctx)
	assert.ErrorIs(t, err, record.ErrInvalidState)

	require.NoError(t, f.p.Start(ctx))
	assert.ErrorIs(t, f.p.Start(ctx), record.ErrInvalidState)
	assert.ErrorIs(t, f.p.Resume(), record.ErrInvalidState)
}

func TestPipeline_DeviceDenied(t *testing.T) {
	f := newPipelineFixture(t)
	f.dev.err = fmt.Errorf("mic blocked: %w", record.ErrDeviceAccess)

	err := f.p.Start(context.Background())
	assert.ErrorIs(t, err, record.ErrDeviceAccess)
	assert.Equal(t, StateIdle, f.p.State())
	assert.True(t, f.p.Status().Unavailable)
	require.Len(t, f.denied, 1)

	// The user retries after granting access.
	f.dev.err = nil
	require.NoError(t, f.p.Start(context.Background()))
	assert.False(t, f.p.Status().Unavailable)
}

func TestPipeline_TranscriptionFailureKeepsBlob(t *testing.T) {
	f := newPipelineFixture(t)
	f.tr.fail = true
	ctx := context.Background()

	require.NoError(t, f.p.Start(ctx))
	_, err := f.p.Stop(ctx)
	require.NoError(t, err)
	f.poster.runNext(t)

	assert.ErrorIs(t, f.p.LastError(), record.ErrTranscriptionService)
	assert.True(t, f.p.Status().HasRecording)
	assert.Empty(t, f.p.Transcript())

	_, err = f.p.AttachToNotes("")
	assert.ErrorIs(t, err, record.ErrValidation)

	f.tr.mu.Lock()
	f.tr.fail = false
	f.tr.mu.Unlock()
	require.NoError(t, f.p.Retry())
	f.poster.runNext(t)

	assert.NoError(t, f.p.LastError())
	assert.Equal(t, "Worked on sharing.", f.p.Transcript())

	f.tr.mu.Lock()
	defer f.tr.mu.Unlock()
	require.Len(t, f.tr.blobs, 2)
	assert.Equal(t, f.tr.blobs[0].Data, f.tr.blobs[1].Data, "retry resubmits the same recording")
}

func TestPipeline_RetryWithoutRecording(t *testing.T) {
	f := newPipelineFixture(t)

	assert.ErrorIs(t, f.p.Retry(), record.ErrInvalidState)
}

func TestPipeline_DiscardIgnoresLateResult(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.Start(ctx))
	_, err := f.p.Stop(ctx)
	require.NoError(t, err)

	f.p.Discard()
	f.poster.runNext(t)
	assert.Empty(t, f.p.Transcript())
	assert.False(t, f.p.Status().Transcribing)
}

func TestPipeline_StopCancelsTick(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.Start(ctx))
	assert.Equal(t, 1, f.clock.Pending())
	require.NoError(t, f.p.Pause())
	assert.Zero(t, f.clock.Pending())
	require.NoError(t, f.p.Resume())
	_, err := f.p.Stop(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.clock.Pending())
	f.poster.runNext(t)
}

func TestFileDevice_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.wav")
	want := make([]byte, 10000)
	for i := range want {
		want[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, want, 0o644))

	dev := &FileDevice{Path: path, ChunkSize: 1024}
	s, err := dev.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", s.MIMEType())

	var got []byte
	for c := range s.Chunks() {
		got = append(got, c...)
	}
	assert.Equal(t, want, got)
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestFileDevice_Missing(t *testing.T) {
	dev := &FileDevice{Path: filepath.Join(t.TempDir(), "missing.wav")}

	_, err := dev.Acquire(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, record.ErrDeviceAccess))
}

func TestCommandDevice_NotFound(t *testing.T) {
	dev := &CommandDevice{Command: "fieldnote-no-such-recorder"}

	_, err := dev.Acquire(context.Background())
	assert.ErrorIs(t, err, record.ErrDeviceAccess)
}

func TestReaderStream_PauseBlocksUntilStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	s, err := (&FileDevice{Path: path}).Acquire(context.Background())
	require.NoError(t, err)
	rs := s.(*readerStream)
	require.NoError(t, rs.Pause())
	require.NoError(t, rs.Stop())

	// The channel closes whether or not the pump got to read first.
	for range s.Chunks() {
	}
}
