package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zulandar/fieldnote/internal/record"
)

// DefaultChunkSize is the read size of file and command streams.
const DefaultChunkSize = 4096

// FileDevice replays an audio file as a capture source.
type FileDevice struct {
	Path      string
	ChunkSize int
}

// Acquire opens the file. Permission errors map to record.ErrDeviceAccess.
func (d *FileDevice) Acquire(_ context.Context) (Stream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("audio: open %s: %w: %w", d.Path, record.ErrDeviceAccess, err)
		}
		return nil, fmt.Errorf("audio: open %s: %w", d.Path, err)
	}
	return newReaderStream(f, f, mimeForPath(d.Path), d.ChunkSize), nil
}

// CommandDevice captures the stdout of a recorder subprocess, for example
// "sox -d -t wav -" or "arecord -f cd -t wav".
type CommandDevice struct {
	Command   string
	Args      []string
	MIME      string // defaults to audio/wav
	ChunkSize int
}

// Acquire starts the recorder. A missing or non-executable binary maps to
// record.ErrDeviceAccess.
func (d *CommandDevice) Acquire(ctx context.Context) (Stream, error) {
	if strings.TrimSpace(d.Command) == "" {
		return nil, fmt.Errorf("audio: command device: command is required")
	}
	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, d.Command, d.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio: command device: stdout pipe: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, os.ErrPermission) || errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("audio: start %s: %w: %w", d.Command, record.ErrDeviceAccess, err)
		}
		return nil, fmt.Errorf("audio: start %s: %w", d.Command, err)
	}
	mime := d.MIME
	if mime == "" {
		mime = "audio/wav"
	}
	return newReaderStream(stdout, &procCloser{cmd: cmd, cancel: cancel}, mime, d.ChunkSize), nil
}

// procCloser kills the recorder and reaps it.
type procCloser struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (p *procCloser) Close() error {
	p.cancel()
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed on purpose.
		return nil
	}
	return err
}

// readerStream pumps an io.Reader into a chunk channel.
type readerStream struct {
	closer io.Closer
	mime   string
	chunks chan []byte
	stop   chan struct{}

	once sync.Once

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func newReaderStream(r io.Reader, c io.Closer, mime string, size int) *readerStream {
	if size <= 0 {
		size = DefaultChunkSize
	}
	s := &readerStream{
		closer: c,
		mime:   mime,
		chunks: make(chan []byte, 16),
		stop:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump(r, size)
	return s
}

func (s *readerStream) pump(r io.Reader, size int) {
	defer close(s.chunks)
	for {
		if !s.waitRunning() {
			return
		}
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("audio: read stream: %v", err)
			}
			return
		}
	}
}

// waitRunning blocks while paused and reports false once stopped.
func (s *readerStream) waitRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused {
		select {
		case <-s.stop:
			return false
		default:
		}
		s.cond.Wait()
	}
	select {
	case <-s.stop:
		return false
	default:
		return true
	}
}

func (s *readerStream) Chunks() <-chan []byte { return s.chunks }

func (s *readerStream) MIMEType() string { return s.mime }

func (s *readerStream) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return nil
}

func (s *readerStream) Resume() error {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

func (s *readerStream) Stop() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		close(s.stop)
		s.paused = false
		s.mu.Unlock()
		s.cond.Broadcast()
		err = s.closer.Close()
	})
	return err
}

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	}
	return "application/octet-stream"
}
