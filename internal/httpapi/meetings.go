package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/finalize"
	"github.com/antoniostano/huddle/internal/meetings"
	"github.com/antoniostano/huddle/internal/recording"
	"github.com/antoniostano/huddle/internal/records"
)

// maxReportWait caps the ?wait= long-poll on the report endpoint.
const maxReportWait = 60 * time.Second

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := meetings.ListParams{
		Page:     queryInt(q.Get("page")),
		PageSize: queryInt(q.Get("pageSize")),
		Search:   q.Get("search"),
		AgentID:  strings.TrimSpace(q.Get("agentId")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := records.ParseStatus(raw)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		in.Status = status
	}
	page, err := s.meetings.GetMany(r.Context(), identity(r), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.meetings.GetOne(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var in meetings.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	m, err := s.meetings.Create(r.Context(), identity(r), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMeeting(w http.ResponseWriter, r *http.Request) {
	var in meetings.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in.ID = chi.URLParam(r, "id")
	m, err := s.meetings.Update(r.Context(), identity(r), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	id := chi.URLParam(r, "id")
	m, err := s.meetings.GetOne(r.Context(), who, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	d := s.confirm.Open(who.UserID, "Are you sure?",
		"The following action will remove the meeting \""+m.Name+"\".",
		func(ctx context.Context) (any, error) {
			return s.meetings.Remove(ctx, who, id)
		})
	respondJSON(w, http.StatusAccepted, deleteResponse{Confirmation: d})
}

func (s *Server) handleCancelMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.meetings.Cancel(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

type finalizeRequest struct {
	MeetingID string `json:"meetingId"`
}

func (s *Server) handleFinalizeMeeting(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ack, err := s.finalize.Trigger(r.Context(), identity(r), req.MeetingID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, ack)
}

// handleMeetingReport returns the report. With ?wait=<duration> it holds
// the request until the meeting settles or the wait runs out.
func (s *Server) handleMeetingReport(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	id := chi.URLParam(r, "id")
	fetch := func(ctx context.Context) (finalize.Report, error) {
		return s.finalize.Report(ctx, who, id)
	}

	raw := strings.TrimSpace(r.URL.Query().Get("wait"))
	if raw == "" {
		report, err := fetch(r.Context())
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, report)
		return
	}

	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		s.respondErr(w, r, apperr.Validation("meetings.report", "wait must be a duration such as 30s"))
		return
	}
	if wait > maxReportWait {
		wait = maxReportWait
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	report, err := finalize.PollReport(ctx, fetch, s.cfg.ReportPollInterval)
	if err != nil && ctx.Err() == nil {
		s.respondErr(w, r, err)
		return
	}
	if err != nil && report.MeetingID == "" {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// handleMeetingRecording serves the stitched recording of a meeting the caller
// owns. Another user's meeting reads as NotFound.
func (s *Server) handleMeetingRecording(w http.ResponseWriter, r *http.Request) {
	const op = "meetings.recording"
	m, err := s.meetings.GetOne(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if s.recordings == nil || m.RecordingURL == "" {
		s.respondErr(w, r, apperr.NotFound(op, "recording not available"))
		return
	}
	path, err := s.recordings.Path(m.ID)
	if errors.Is(err, recording.ErrNoRecording) {
		s.respondErr(w, r, apperr.NotFound(op, "recording not available"))
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeFile(w, r, path)
}
