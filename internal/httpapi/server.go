package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/antoniostano/huddle/internal/agents"
	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/call"
	"github.com/antoniostano/huddle/internal/config"
	"github.com/antoniostano/huddle/internal/confirm"
	"github.com/antoniostano/huddle/internal/finalize"
	"github.com/antoniostano/huddle/internal/logging"
	"github.com/antoniostano/huddle/internal/meetings"
	"github.com/antoniostano/huddle/internal/observability"
	"github.com/antoniostano/huddle/internal/voice"
)

// Speech is the synthesis and transcription backend behind /v1/ai.
type Speech interface {
	voice.Synthesizer
	voice.Transcriber
}

// Recordings resolves a meeting's stitched recording on disk.
type Recordings interface {
	Path(meetingID string) (string, error)
}

// Deps are the services the API exposes. Ready is optional and reports
// backing store health for /readyz. Recordings is nil when recording is off.
type Deps struct {
	Config     config.Config
	Auth       auth.Provider
	Agents     *agents.Service
	Meetings   *meetings.Service
	Calls      *call.Controller
	Finalize   *finalize.Service
	Recordings Recordings
	Confirm    *confirm.Registry
	Completer  brain.Completer
	Speech     Speech
	Metrics    *observability.Metrics
	Log        zerolog.Logger
	Ready      func(ctx context.Context) error
}

type Server struct {
	cfg        config.Config
	auth       auth.Provider
	agents     *agents.Service
	meetings   *meetings.Service
	calls      *call.Controller
	finalize   *finalize.Service
	recordings Recordings
	confirm    *confirm.Registry
	completer  brain.Completer
	speech     Speech
	metrics    *observability.Metrics
	log        zerolog.Logger
	ready      func(ctx context.Context) error
	upgrader   websocket.Upgrader
}

func New(d Deps) *Server {
	cfg := d.Config
	return &Server{
		cfg:        cfg,
		auth:       d.Auth,
		agents:     d.Agents,
		meetings:   d.Meetings,
		calls:      d.Calls,
		finalize:   d.Finalize,
		recordings: d.Recordings,
		confirm:    d.Confirm,
		completer:  d.Completer,
		speech:     d.Speech,
		metrics:    d.Metrics,
		log:        d.Log,
		ready:      d.Ready,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a call socket.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)

		r.Get("/v1/session", s.handleSession)

		r.Get("/v1/agents", s.handleListAgents)
		r.Post("/v1/agents", s.handleCreateAgent)
		r.Get("/v1/agents/{id}", s.handleGetAgent)
		r.Put("/v1/agents/{id}", s.handleUpdateAgent)
		r.Delete("/v1/agents/{id}", s.handleDeleteAgent)

		r.Get("/v1/meetings", s.handleListMeetings)
		r.Post("/v1/meetings", s.handleCreateMeeting)
		r.Get("/v1/meetings/{id}", s.handleGetMeeting)
		r.Put("/v1/meetings/{id}", s.handleUpdateMeeting)
		r.Delete("/v1/meetings/{id}", s.handleDeleteMeeting)
		r.Post("/v1/meetings/{id}/cancel", s.handleCancelMeeting)
		r.Get("/v1/meetings/{id}/report", s.handleMeetingReport)
		r.Get("/v1/meetings/{id}/recording", s.handleMeetingRecording)
		r.Post("/v1/finalize-meeting", s.handleFinalizeMeeting)

		r.Get("/v1/confirmations/{id}", s.handleGetConfirmation)
		r.Post("/v1/confirmations/{id}", s.handleResolveConfirmation)

		r.Post("/v1/calls", s.handleCreateCall)
		r.Get("/v1/calls/{id}", s.handleGetCall)
		r.Post("/v1/calls/{id}/join", s.handleJoinCall)
		r.Post("/v1/calls/{id}/leave", s.handleLeaveCall)
		r.Post("/v1/calls/{id}/turns", s.handleSubmitTurn)
		r.Get("/v1/calls/{id}/audio/{handle}", s.handleCallAudio)
		r.Get("/v1/calls/{id}/ws", s.handleCallWS)

		r.Post("/v1/ai/respond", s.handleAIRespond)
		r.Post("/v1/ai/speech", s.handleAISpeech)
		r.Post("/v1/ai/transcribe", s.handleAITranscribe)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.activeCalls(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"active_calls": s.activeCalls(),
	})
}

func (s *Server) activeCalls() int {
	if s.calls == nil {
		return 0
	}
	return s.calls.Sessions().ActiveCount()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondErr maps a classified error to its status and code.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindInvalidState:
		status = http.StatusConflict
	case apperr.KindExternalService:
		status = http.StatusBadGateway
	case apperr.KindPlayback:
		status = http.StatusUnprocessableEntity
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		if kind == apperr.KindInternal {
			kind = "timeout"
		}
	case errors.Is(err, context.Canceled) && kind == apperr.KindInternal:
		status = 499
		kind = "canceled"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	respondError(w, status, string(kind), msg)
}
