// Package transcribe provides audio.Transcriber implementations backed by an
// HTTP speech-to-text service or a local command.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/fieldnote/internal/audio"
)

// DefaultTimeout bounds a single transcription request.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of an error response is quoted.
const maxErrorBody = 512

// HTTPOpts holds parameters for creating an HTTP transcriber.
type HTTPOpts struct {
	URL      string // endpoint accepting a multipart "file" upload
	APIKey   string // sent as a bearer token when set
	Model    string // optional "model" form field
	Language string // optional "language" form field
	Timeout  time.Duration
	Client   *http.Client
}

// HTTP posts recordings to an OpenAI-compatible transcription endpoint and
// reads the "text" field of the JSON response.
type HTTP struct {
	url      string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewHTTP creates an HTTP transcriber.
func NewHTTP(opts HTTPOpts) (*HTTP, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("transcribe: http: url is required")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{
		url:      opts.URL,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		language: opts.Language,
		client:   client,
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads b and returns the recognized text.
func (h *HTTP) Transcribe(ctx context.Context, b audio.Blob) (string, error) {
	body, contentType, err := h.form(b)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: post %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("transcribe: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (h *HTTP) form(b audio.Blob) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "recording"+extFor(b.MIMEType))
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := part.Write(b.Data); err != nil {
		return nil, "", fmt.Errorf("transcribe: build form: %w", err)
	}
	for name, value := range map[string]string{"model": h.model, "language": h.language} {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("transcribe: build form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transcribe: build form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func extFor(mime string) string {
	switch mime {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/flac":
		return ".flac"
	}
	return ".bin"
}
