package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/huddle/internal/agents"
	"github.com/antoniostano/huddle/internal/apperr"
)

type deleteResponse struct {
	Confirmation any `json:"confirmation"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.agents.GetMany(r.Context(), identity(r), agents.ListParams{
		Page:     queryInt(q.Get("page")),
		PageSize: queryInt(q.Get("pageSize")),
		Search:   q.Get("search"),
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.agents.GetOne(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var in agents.Input
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a, err := s.agents.Create(r.Context(), identity(r), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var in agents.Input
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a, err := s.agents.Update(r.Context(), identity(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// handleDeleteAgent opens a confirmation that names how many meetings go
// with the agent. Nothing is removed until it is confirmed.
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	id := chi.URLParam(r, "id")
	n, err := s.agents.RemovalImpact(r.Context(), who, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	d := s.confirm.Open(who.UserID, "Are you sure?",
		fmt.Sprintf("The following action will remove %d associated %s.", n, plural(n, "meeting", "meetings")),
		func(ctx context.Context) (any, error) {
			removed, err := s.agents.Remove(ctx, who, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"agent_id": id, "removed_meetings": removed}, nil
		})
	respondJSON(w, http.StatusAccepted, deleteResponse{Confirmation: d})
}

type resolveRequest struct {
	Confirmed *bool `json:"confirmed"`
}

func (s *Server) handleGetConfirmation(w http.ResponseWriter, r *http.Request) {
	d, err := s.confirm.Get(identity(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleResolveConfirmation(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Confirmed == nil {
		s.respondErr(w, r, apperr.Validation("confirm.resolve", "confirmed is required"))
		return
	}
	out, err := s.confirm.Resolve(r.Context(), identity(r).UserID, chi.URLParam(r, "id"), *req.Confirmed)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
