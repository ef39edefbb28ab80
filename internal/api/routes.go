package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/fieldnote/internal/audio"
	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/recorder"
	"github.com/zulandar/fieldnote/internal/session"
	"github.com/zulandar/fieldnote/internal/voice"
)

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes() {
	r := s.router.Group("/api")

	r.GET("/status", s.handleStatus)
	r.GET("/events", s.handleEvents)

	// Session lifecycle and goal bank.
	r.POST("/session/start", s.handleSessionStart)
	r.POST("/session/stop", s.handleSessionStop)
	r.POST("/session/save", s.handleSessionSave)
	r.GET("/session/snapshot", s.handleSnapshot)
	r.GET("/sessions", s.handleHistory)
	r.GET("/goals", s.handleGoals)
	r.POST("/goal", s.handleSelectGoal)

	// Discrete trials.
	r.POST("/trials", s.handleRecordTrial)
	r.GET("/trials", s.handleTrialStats)
	r.PUT("/trials/prompt", s.handleSetPromptLevel)
	r.POST("/trials/next", s.handleNextTrial)
	r.POST("/trials/previous", s.handlePreviousTrial)

	// Frequency.
	r.POST("/frequency", s.handleIncrementFrequency)
	r.GET("/frequency", s.handleFrequency)
	r.DELETE("/frequency", s.handleResetFrequency)

	// Duration.
	r.POST("/duration/start", s.handleStartDuration)
	r.POST("/duration/stop", s.handleStopDuration)
	r.GET("/duration", s.handleDuration)
	r.DELETE("/duration", s.handleResetDuration)

	// Task analysis.
	r.GET("/steps", s.handleSteps)
	r.POST("/steps", s.handleAddStep)
	r.PATCH("/steps/:id", s.handleUpdateStep)
	r.DELETE("/steps/:id", s.handleRemoveStep)

	// ABC narrative and the dictation draft.
	r.GET("/abc", s.handleABC)
	r.POST("/abc", s.handleAddABC)
	r.DELETE("/abc/:id", s.handleRemoveABC)
	r.PUT("/abc/draft/:field", s.handleSetDraftField)
	r.POST("/abc/draft/commit", s.handleCommitDraft)
	r.DELETE("/abc/draft", s.handleDiscardDraft)

	// Notes.
	r.GET("/notes", s.handleNotes)
	r.POST("/notes", s.handleAppendNote)
	r.POST("/notes/undo", s.handleUndoNote)

	if s.opts.Audio != nil {
		a := r.Group("/audio")
		a.GET("", s.handleAudioStatus)
		a.POST("/start", s.handleAudioStart)
		a.POST("/pause", s.audioAction((*audio.Pipeline).Pause))
		a.POST("/resume", s.audioAction((*audio.Pipeline).Resume))
		a.POST("/stop", s.handleAudioStop)
		a.POST("/retry", s.audioAction((*audio.Pipeline).Retry))
		a.POST("/discard", s.handleAudioDiscard)
		a.PUT("/transcript", s.handleSetTranscript)
		a.POST("/attach", s.handleAttachTranscript)
	}

	if s.opts.Voice != nil {
		v := r.Group("/voice")
		v.GET("", s.handleVoiceStatus)
		v.POST("/enable", s.handleVoiceEnable)
		v.POST("/disable", s.voiceAction((*voice.Dispatcher).Disable))
		v.POST("/toggle", s.handleVoiceToggle)
	}
}

// do runs fn on the engine loop and writes its result as JSON. A nil result
// is answered with 204.
func (s *Server) do(c *gin.Context, fn func(ctx context.Context) (any, error)) {
	var (
		out any
		err error
	)
	ctx := c.Request.Context()
	if lerr := s.opts.Loop.Do(ctx, func() { out, err = fn(ctx) }); lerr != nil {
		writeError(c, lerr)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, out)
}

// bind decodes an optional JSON body. An empty body leaves req untouched.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

// --- status ---

type sessionStatus struct {
	ID             string       `json:"id"`
	StudentID      string       `json:"studentId"`
	Active         bool         `json:"active"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
	Goal           *record.Goal `json:"goal"`
	TrialIndex     int          `json:"trialIndex"`
	LastSaved      *time.Time   `json:"lastSaved,omitempty"`
}

type statusResponse struct {
	Session sessionStatus `json:"session"`
	Audio   *audio.Status `json:"audio,omitempty"`
	Voice   *voice.Status `json:"voice,omitempty"`
}

// status must run on the engine loop.
func (s *Server) status() statusResponse {
	e := s.opts.Engine
	resp := statusResponse{
		Session: sessionStatus{
			ID:             e.SessionID(),
			StudentID:      e.StudentID(),
			Active:         e.SessionActive(),
			ElapsedSeconds: e.Elapsed(),
			TrialIndex:     e.TrialIndex(),
		},
	}
	if g, ok := e.ActiveGoal(); ok {
		resp.Session.Goal = &g
	}
	if t := e.LastSaved(); !t.IsZero() {
		resp.Session.LastSaved = &t
	}
	if s.opts.Audio != nil {
		st := s.opts.Audio.Status()
		resp.Audio = &st
	}
	if s.opts.Voice != nil {
		st := s.opts.Voice.Status()
		resp.Voice = &st
	}
	return resp
}

func (s *Server) handleStatus(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.status(), nil
	})
}

// --- session ---

func (s *Server) handleSessionStart(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		if err := s.opts.Engine.StartSession(); err != nil {
			return nil, err
		}
		return s.status(), nil
	})
}

func (s *Server) handleSessionStop(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		s.opts.Engine.StopSession()
		return s.status(), nil
	})
}

func (s *Server) handleSessionSave(c *gin.Context) {
	s.do(c, func(ctx context.Context) (any, error) {
		if err := s.opts.Engine.Save(ctx); err != nil {
			return nil, err
		}
		return gin.H{"id": s.opts.Engine.SessionID(), "lastSaved": s.opts.Engine.LastSaved()}, nil
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.Snapshot(), nil
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	s.do(c, func(ctx context.Context) (any, error) {
		return s.opts.Engine.History(ctx)
	})
}

func (s *Server) handleGoals(c *gin.Context) {
	s.do(c, func(ctx context.Context) (any, error) {
		return s.opts.Engine.Goals(ctx)
	})
}

type selectGoalRequest struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) handleSelectGoal(c *gin.Context) {
	var req selectGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.do(c, func(ctx context.Context) (any, error) {
		return s.opts.Engine.SelectGoal(ctx, req.ID)
	})
}

// --- trials ---

type trialRequest struct {
	Outcome     record.Outcome `json:"outcome"`
	PromptLevel string         `json:"promptLevel"`
	Notes       string         `json:"notes"`
}

func (s *Server) handleRecordTrial(c *gin.Context) {
	var req trialRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.RecordTrial(req.Outcome, req.PromptLevel, req.Notes)
	})
}

type trialsResponse struct {
	Stats       record.TrialStats `json:"stats"`
	PromptLevel string            `json:"promptLevel"`
	TrialIndex  int               `json:"trialIndex"`
}

func (s *Server) trials() trialsResponse {
	e := s.opts.Engine
	return trialsResponse{Stats: e.TrialStats(), PromptLevel: e.PromptLevel(), TrialIndex: e.TrialIndex()}
}

func (s *Server) handleTrialStats(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.trials(), nil
	})
}

type promptLevelRequest struct {
	Level string `json:"level"`
}

func (s *Server) handleSetPromptLevel(c *gin.Context) {
	var req promptLevelRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		if err := s.opts.Engine.SetPromptLevel(req.Level); err != nil {
			return nil, err
		}
		return s.trials(), nil
	})
}

func (s *Server) handleNextTrial(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		s.opts.Engine.NextTrial()
		return s.trials(), nil
	})
}

func (s *Server) handlePreviousTrial(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		s.opts.Engine.PreviousTrial()
		return s.trials(), nil
	})
}

// --- frequency ---

type frequencyResponse struct {
	Count int     `json:"count"`
	Rate  float64 `json:"ratePerMinute"`
}

func (s *Server) frequency() frequencyResponse {
	return frequencyResponse{Count: s.opts.Engine.FrequencyCount(), Rate: s.opts.Engine.FrequencyRate()}
}

func (s *Server) handleIncrementFrequency(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		if _, err := s.opts.Engine.IncrementFrequency(); err != nil {
			return nil, err
		}
		return s.frequency(), nil
	})
}

func (s *Server) handleFrequency(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.frequency(), nil
	})
}

func (s *Server) handleResetFrequency(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		if err := s.opts.Engine.ResetFrequency(); err != nil {
			return nil, err
		}
		return s.frequency(), nil
	})
}

// --- duration ---

type durationStartRequest struct {
	Note string `json:"note"`
}

type durationResponse struct {
	Open           bool                      `json:"open"`
	ElapsedSeconds int                       `json:"elapsedSeconds"`
	TotalSeconds   int                       `json:"totalSeconds"`
	History        []record.DurationInterval `json:"history"`
}

func (s *Server) duration() durationResponse {
	open, elapsed, history := s.opts.Engine.DurationStatus()
	return durationResponse{
		Open:           open,
		ElapsedSeconds: int(elapsed / time.Second),
		TotalSeconds:   int(record.TotalDuration(history) / time.Second),
		History:        history,
	}
}

func (s *Server) handleStartDuration(c *gin.Context) {
	var req durationStartRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.StartDuration(req.Note)
	})
}

func (s *Server) handleStopDuration(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.StopDuration()
	})
}

func (s *Server) handleDuration(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.duration(), nil
	})
}

func (s *Server) handleResetDuration(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		if err := s.opts.Engine.ResetDuration(); err != nil {
			return nil, err
		}
		return s.duration(), nil
	})
}

// --- task analysis ---

type addStepRequest struct {
	Label string `json:"label"`
}

type updateStepRequest struct {
	Status record.StepStatus `json:"status"`
}

func (s *Server) handleSteps(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.Steps(), nil
	})
}

func (s *Server) handleAddStep(c *gin.Context) {
	var req addStepRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.AddStep(req.Label)
	})
}

func (s *Server) handleUpdateStep(c *gin.Context) {
	var req updateStepRequest
	if !bind(c, &req) {
		return
	}
	id := c.Param("id")
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.UpdateStep(id, req.Status)
	})
}

func (s *Server) handleRemoveStep(c *gin.Context) {
	id := c.Param("id")
	s.do(c, func(context.Context) (any, error) {
		return nil, s.opts.Engine.RemoveStep(id)
	})
}

// --- abc ---

type abcResponse struct {
	Entries []record.ABCRecord          `json:"entries"`
	Plan    *record.BehaviorSupportPlan `json:"plan"`
	Draft   session.ABCDraft            `json:"draft"`
}

func (s *Server) handleABC(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		entries, plan := s.opts.Engine.ABCEntries()
		return abcResponse{Entries: entries, Plan: plan, Draft: s.opts.Engine.ABCDraft()}, nil
	})
}

func (s *Server) handleAddABC(c *gin.Context) {
	var req recorder.ABCInput
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.AddABC(req)
	})
}

func (s *Server) handleRemoveABC(c *gin.Context) {
	id := c.Param("id")
	s.do(c, func(context.Context) (any, error) {
		return nil, s.opts.Engine.RemoveABC(id)
	})
}

type draftFieldRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetDraftField(c *gin.Context) {
	var req draftFieldRequest
	if !bind(c, &req) {
		return
	}
	field := session.ABCField(c.Param("field"))
	s.do(c, func(context.Context) (any, error) {
		if err := s.opts.Engine.SetABCField(field, req.Text); err != nil {
			return nil, err
		}
		return s.opts.Engine.ABCDraft(), nil
	})
}

type commitDraftRequest struct {
	Intensity record.Intensity `json:"intensity"`
	Notes     string           `json:"notes"`
}

func (s *Server) handleCommitDraft(c *gin.Context) {
	var req commitDraftRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.CommitABCDraft(req.Intensity, req.Notes)
	})
}

func (s *Server) handleDiscardDraft(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		s.opts.Engine.DiscardABCDraft()
		return nil, nil
	})
}

// --- notes ---

type noteRequest struct {
	GoalID string `json:"goalId"`
	Text   string `json:"text"`
}

func (s *Server) handleNotes(c *gin.Context) {
	goalID := c.Query("goal")
	s.do(c, func(context.Context) (any, error) {
		return gin.H{"goalId": goalID, "text": s.opts.Engine.Notes(goalID)}, nil
	})
}

func (s *Server) handleAppendNote(c *gin.Context) {
	var req noteRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.AppendNote(req.GoalID, req.Text)
	})
}

func (s *Server) handleUndoNote(c *gin.Context) {
	var req noteRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Engine.UndoNote(req.GoalID)
	})
}

// --- audio ---

func (s *Server) handleAudioStatus(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Audio.Status(), nil
	})
}

func (s *Server) handleAudioStart(c *gin.Context) {
	s.do(c, func(ctx context.Context) (any, error) {
		if err := s.opts.Audio.Start(ctx); err != nil {
			return nil, err
		}
		return s.opts.Audio.Status(), nil
	})
}

func (s *Server) audioAction(fn func(*audio.Pipeline) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.do(c, func(context.Context) (any, error) {
			if err := fn(s.opts.Audio); err != nil {
				return nil, err
			}
			return s.opts.Audio.Status(), nil
		})
	}
}

func (s *Server) handleAudioStop(c *gin.Context) {
	s.do(c, func(ctx context.Context) (any, error) {
		blob, err := s.opts.Audio.Stop(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"bytes":           len(blob.Data),
			"mimeType":        blob.MIMEType,
			"durationSeconds": int(blob.Duration / time.Second),
			"status":          s.opts.Audio.Status(),
		}, nil
	})
}

func (s *Server) handleAudioDiscard(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		s.opts.Audio.Discard()
		return s.opts.Audio.Status(), nil
	})
}

type transcriptRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetTranscript(c *gin.Context) {
	var req transcriptRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		s.opts.Audio.SetTranscript(req.Text)
		return s.opts.Audio.Status(), nil
	})
}

type attachRequest struct {
	GoalID string `json:"goalId"`
}

func (s *Server) handleAttachTranscript(c *gin.Context) {
	var req attachRequest
	if !bind(c, &req) {
		return
	}
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Audio.AttachToNotes(req.GoalID)
	})
}

// --- voice ---

func (s *Server) handleVoiceStatus(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		return s.opts.Voice.Status(), nil
	})
}

// audioUnavailable reports a refused audio device. Voice commands stay off
// until a later recording start succeeds.
func (s *Server) audioUnavailable() error {
	if s.opts.Audio != nil && s.opts.Audio.Status().Unavailable {
		return fmt.Errorf("api: voice commands need the microphone: %w", record.ErrDeviceAccess)
	}
	return nil
}

func (s *Server) handleVoiceEnable(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		if err := s.audioUnavailable(); err != nil {
			return nil, err
		}
		s.opts.Voice.Enable()
		return s.opts.Voice.Status(), nil
	})
}

func (s *Server) handleVoiceToggle(c *gin.Context) {
	s.do(c, func(context.Context) (any, error) {
		if !s.opts.Voice.Enabled() {
			if err := s.audioUnavailable(); err != nil {
				return nil, err
			}
		}
		s.opts.Voice.Toggle()
		return s.opts.Voice.Status(), nil
	})
}

func (s *Server) voiceAction(fn func(*voice.Dispatcher)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.do(c, func(context.Context) (any, error) {
			fn(s.opts.Voice)
			return s.opts.Voice.Status(), nil
		})
	}
}
