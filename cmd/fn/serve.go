package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/fieldnote/internal/api"
	"github.com/zulandar/fieldnote/internal/audio"
	"github.com/zulandar/fieldnote/internal/autosave"
	"github.com/zulandar/fieldnote/internal/config"
	"github.com/zulandar/fieldnote/internal/db"
	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
	"github.com/zulandar/fieldnote/internal/session"
	"github.com/zulandar/fieldnote/internal/store"
	"github.com/zulandar/fieldnote/internal/transcribe"
	"github.com/zulandar/fieldnote/internal/voice"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		voiceOn    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a live session",
		Long: "Runs the session engine with the HTTP control API, audio notes, autosave and voice commands. " +
			"Voice commands are read line by line from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, voiceOn)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to fieldnote config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "API port (overrides config)")
	cmd.Flags().BoolVar(&voiceOn, "voice", false, "enable voice commands at startup (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, voiceOn bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.API.Port = port
	}
	if cmd.Flags().Changed("voice") {
		cfg.Voice.Enabled = voiceOn
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := sched.NewLoop(0)
	timers := sched.NewLoopScheduler(loop)

	eng, err := session.New(session.Opts{
		StudentID:       cfg.Student,
		Store:           store.NewSessions(gormDB),
		Goals:           store.NewGoals(gormDB),
		Scheduler:       timers,
		Tick:            cfg.Tick(),
		FrequencyWindow: cfg.Session.FrequencyWindow,
	})
	if err != nil {
		return err
	}

	disp, err := voice.NewDispatcher(voice.DispatcherOpts{
		Recognizer: voice.NewLineRecognizer(cmd.InOrStdin()),
		Actions:    eng,
		Poster:     loop,
		Scheduler:  timers,
		Policy: voice.RestartPolicy{
			MaxRestarts: cfg.Voice.MaxRestarts,
			Base:        time.Duration(cfg.Voice.RestartBaseMs) * time.Millisecond,
			Max:         time.Duration(cfg.Voice.RestartMaxMs) * time.Millisecond,
		},
		OnNotice: func(n voice.Notice) {
			fmt.Fprintf(out, "Voice: %s\n", n.Message)
		},
	})
	if err != nil {
		return err
	}

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return err
	}
	pipe, err := audio.NewPipeline(audio.Opts{
		Device:         newDevice(cfg.Audio),
		Transcriber:    transcriber,
		Notes:          eng,
		Poster:         loop,
		Scheduler:      timers,
		Tick:           cfg.Tick(),
		OnDeviceDenied: disp.DeviceDenied,
		OnTranscribed: func(text string, err error) {
			if err != nil {
				fmt.Fprintf(out, "Transcription failed (recording kept, retry with POST /api/audio/retry): %v\n", err)
				return
			}
			fmt.Fprintf(out, "Transcript ready (%d chars)\n", len(text))
		},
	})
	if err != nil {
		return err
	}

	var saver *autosave.Scheduler
	if cfg.Session.Autosave != "" {
		saver, err = autosave.New(autosave.Opts{
			Expr:      cfg.Session.Autosave,
			Saver:     eng,
			Scheduler: timers,
		})
		if err != nil {
			return err
		}
	}

	srv, err := api.New(api.Opts{
		Loop:   loop,
		Engine: eng,
		Audio:  pipe,
		Voice:  disp,
		Host:   cfg.API.Host,
		Port:   cfg.API.Port,
		Out:    out,
	})
	if err != nil {
		return err
	}

	// The loop outlives ctx so shutdown can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go loop.Run(loopCtx)

	if err := loop.Do(ctx, func() {
		if saver != nil {
			saver.Start()
		}
		if cfg.Voice.Enabled {
			disp.Enable()
		}
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Student %s, session %s ready\n", cfg.Student, eng.SessionID())
	if saver != nil {
		fmt.Fprintf(out, "Autosave: %s\n", cfg.Session.Autosave)
	}
	if cfg.Voice.Enabled && cfg.Voice.PromptTerminal && isTerminal(cmd.InOrStdin()) {
		fmt.Fprintln(out, voiceHint())
	}

	serveErr := srv.Start(ctx)
	stop()
	fmt.Fprintln(out, "Shutting down...")

	if err := shutdown(loop, eng, pipe, disp, saver, out); err != nil {
		log.Printf("serve: %v", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

// shutdown releases every timer and listener on the loop and saves a live
// session.
func shutdown(loop *sched.Loop, eng *session.Engine, pipe *audio.Pipeline, disp *voice.Dispatcher, saver *autosave.Scheduler, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var saveErr error
	err := loop.Do(ctx, func() {
		if saver != nil {
			saver.Stop()
		}
		disp.Close()
		pipe.Close()
		if eng.SessionActive() {
			eng.StopSession()
			if saveErr = eng.Save(ctx); saveErr == nil {
				fmt.Fprintf(out, "Session %s saved\n", eng.SessionID())
			}
		}
		eng.Close()
	})
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return saveErr
}

// hintPhrases are example voice commands, each with the goal type it applies
// to.
var hintPhrases = []struct {
	text string
	dt   record.DataType
}{
	{"correct", record.DataPromptLevels},
	{"start duration", record.DataDuration},
}

func voiceHint() string {
	quoted := make([]string, len(hintPhrases))
	for i, p := range hintPhrases {
		quoted[i] = strconv.Quote(p.text)
	}
	return "Voice commands on: type a phrase and press Enter (e.g. " + strings.Join(quoted, ", ") + ")."
}

// newDevice builds the capture device named by the audio config.
func newDevice(cfg config.AudioConfig) audio.Device {
	if cfg.Device == "file" {
		return &audio.FileDevice{Path: cfg.Path}
	}
	return &audio.CommandDevice{Command: cfg.Command, Args: cfg.Args, MIME: cfg.MIME}
}

// newTranscriber builds the transcription backend named by the config.
func newTranscriber(cfg *config.Config) (audio.Transcriber, error) {
	tc := cfg.Transcription
	timeout := time.Duration(tc.TimeoutSeconds) * time.Second
	if tc.Provider == "command" {
		return &transcribe.Command{Name: tc.Command, Args: tc.Args, Timeout: timeout}, nil
	}
	return transcribe.NewHTTP(transcribe.HTTPOpts{
		URL:      tc.URL,
		APIKey:   cfg.APIKey(),
		Model:    tc.Model,
		Language: tc.Language,
		Timeout:  timeout,
	})
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
