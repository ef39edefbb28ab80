// Package api exposes the live session over a JSON HTTP control API. Every
// handler runs its engine work on the engine loop.
package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/fieldnote/internal/audio"
	"github.com/zulandar/fieldnote/internal/session"
	"github.com/zulandar/fieldnote/internal/voice"
)

// DefaultEventInterval is how often the event stream pushes a status frame.
const DefaultEventInterval = time.Second

// Runner executes a closure on the engine loop and waits for it.
// *sched.Loop implements it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Opts holds configuration for the API server.
type Opts struct {
	Loop   Runner
	Engine *session.Engine
	Audio  *audio.Pipeline   // optional; audio routes are omitted when nil
	Voice  *voice.Dispatcher // optional; voice routes are omitted when nil

	Host          string
	Port          int
	Out           io.Writer
	EventInterval time.Duration
}

// Server is the HTTP control API.
type Server struct {
	opts   Opts
	router *gin.Engine
}

// New builds the router. It does not listen.
func New(opts Opts) (*Server, error) {
	if opts.Loop == nil {
		return nil, fmt.Errorf("api: loop is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("api: engine is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8742
	}
	if opts.EventInterval <= 0 {
		opts.EventInterval = DefaultEventInterval
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{opts: opts, router: router}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address. It blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if s.opts.Out != nil {
		fmt.Fprintf(s.opts.Out, "Control API listening on http://%s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
