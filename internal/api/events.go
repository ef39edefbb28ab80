package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams status frames over SSE. A frame is sent on connect
// and then whenever the status changes.
func (s *Server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	var last []byte
	push := func() bool {
		var resp statusResponse
		if err := s.opts.Loop.Do(ctx, func() { resp = s.status() }); err != nil {
			return false
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return false
		}
		if bytes.Equal(data, last) {
			return true
		}
		last = data
		fmt.Fprintf(c.Writer, "event: status\ndata: %s\n\n", data)
		c.Writer.Flush()
		return true
	}

	if !push() {
		return
	}

	ticker := time.NewTicker(s.opts.EventInterval)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
