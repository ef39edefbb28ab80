package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zulandar/fieldnote/internal/audio"
)

// FilePlaceholder in a command's arguments is replaced by the path of a
// temporary file holding the recording. Without it the recording is written
// to the command's stdin.
const FilePlaceholder = "{file}"

// Command runs a local speech-to-text program, e.g. whisper.cpp, and reads
// the transcript from its stdout.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// Transcribe runs the command for b.
func (c *Command) Transcribe(ctx context.Context, b audio.Blob) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("transcribe: command is required")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string(nil), c.Args...)
	useFile := false
	for _, a := range args {
		if strings.Contains(a, FilePlaceholder) {
			useFile = true
			break
		}
	}

	cmd := exec.CommandContext(ctx, c.Name)
	if useFile {
		f, err := os.CreateTemp("", "fieldnote-*"+extFor(b.MIMEType))
		if err != nil {
			return "", fmt.Errorf("transcribe: temp file: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(b.Data); err != nil {
			f.Close()
			return "", fmt.Errorf("transcribe: write temp file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("transcribe: write temp file: %w", err)
		}
		for i, a := range args {
			args[i] = strings.ReplaceAll(a, FilePlaceholder, f.Name())
		}
	} else {
		cmd.Stdin = bytes.NewReader(b.Data)
	}
	cmd.Args = append([]string{c.Name}, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transcribe: run %s: %w: %s", c.Name, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
