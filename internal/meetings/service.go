// Package meetings implements the owner-scoped meeting queries and the
// lifecycle transitions a meeting goes through from scheduling to report.
package meetings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/paging"
	"github.com/antoniostano/huddle/internal/records"
)

type ListParams struct {
	Page     int
	PageSize int
	Search   string
	Status   records.Status
	AgentID  string
}

type CreateInput struct {
	Name    string `json:"name"`
	AgentID string `json:"agent_id"`
}

type UpdateInput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	AgentID string `json:"agent_id"`
}

// Artifacts are written when finalization completes.
type Artifacts struct {
	RecordingURL string
	Summary      string
	Transcript   string
}

type Service struct {
	store  records.Store
	bounds paging.Bounds
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store records.Store, bounds paging.Bounds, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		bounds: bounds,
		log:    log.With().Str("component", "meetings").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetOne(ctx context.Context, who auth.Identity, id string) (records.MeetingDetail, error) {
	const op = "meetings.get_one"
	id = strings.TrimSpace(id)
	if id == "" {
		return records.MeetingDetail{}, apperr.Validation(op, "id is required")
	}
	d, err := s.store.GetMeeting(ctx, who.UserID, id)
	if err != nil {
		return records.MeetingDetail{}, storeErr(op, err)
	}
	return d, nil
}

// GetMany returns one page of the caller's meetings, newest first.
func (s *Service) GetMany(ctx context.Context, who auth.Identity, in ListParams) (paging.Result[records.MeetingDetail], error) {
	const op = "meetings.get_many"
	if in.Status != "" && !in.Status.Valid() {
		return paging.Result[records.MeetingDetail]{}, apperr.Validation(op, "unknown status "+string(in.Status))
	}
	p := s.bounds.Normalize(in.Page, in.PageSize)
	f := records.MeetingFilter{
		UserID:  who.UserID,
		Search:  strings.TrimSpace(in.Search),
		Status:  in.Status,
		AgentID: strings.TrimSpace(in.AgentID),
	}

	var (
		items []records.MeetingDetail
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.store.ListMeetings(gctx, f, p.Limit(), p.Offset())
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountMeetings(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return paging.Result[records.MeetingDetail]{}, storeErr(op, err)
	}
	return paging.NewResult(items, total, p), nil
}

func (s *Service) Create(ctx context.Context, who auth.Identity, in CreateInput) (records.Meeting, error) {
	const op = "meetings.create"
	name := strings.TrimSpace(in.Name)
	agentID := strings.TrimSpace(in.AgentID)
	if name == "" {
		return records.Meeting{}, apperr.Validation(op, "name is required")
	}
	if agentID == "" {
		return records.Meeting{}, apperr.Validation(op, "agent_id is required")
	}
	now := s.now()
	m := records.Meeting{
		ID:        uuid.NewString(),
		UserID:    who.UserID,
		AgentID:   agentID,
		Name:      name,
		Status:    records.StatusUpcoming,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertMeeting(ctx, m); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return records.Meeting{}, apperr.NotFound(op, "agent not found")
		}
		return records.Meeting{}, storeErr(op, err)
	}
	s.log.Info().Str("meeting_id", m.ID).Str("agent_id", agentID).Str("user_id", who.UserID).Msg("meeting created")
	return m, nil
}

func (s *Service) Update(ctx context.Context, who auth.Identity, in UpdateInput) (records.Meeting, error) {
	const op = "meetings.update"
	u := records.MeetingUpdate{
		ID:      strings.TrimSpace(in.ID),
		UserID:  who.UserID,
		Name:    strings.TrimSpace(in.Name),
		AgentID: strings.TrimSpace(in.AgentID),
		At:      s.now(),
	}
	switch {
	case u.ID == "":
		return records.Meeting{}, apperr.Validation(op, "id is required")
	case u.Name == "":
		return records.Meeting{}, apperr.Validation(op, "name is required")
	case u.AgentID == "":
		return records.Meeting{}, apperr.Validation(op, "agent_id is required")
	}
	m, err := s.store.UpdateMeeting(ctx, u)
	if err != nil {
		return records.Meeting{}, storeErr(op, err)
	}
	return m, nil
}

func (s *Service) Remove(ctx context.Context, who auth.Identity, id string) (records.Meeting, error) {
	const op = "meetings.remove"
	id = strings.TrimSpace(id)
	if id == "" {
		return records.Meeting{}, apperr.Validation(op, "id is required")
	}
	m, err := s.store.DeleteMeeting(ctx, who.UserID, id)
	if err != nil {
		return records.Meeting{}, storeErr(op, err)
	}
	s.log.Info().Str("meeting_id", id).Str("user_id", who.UserID).Msg("meeting removed")
	return m, nil
}

// Cancel moves an upcoming meeting to cancelled.
func (s *Service) Cancel(ctx context.Context, who auth.Identity, id string) (records.Meeting, error) {
	return s.transition(ctx, "meetings.cancel", who.UserID, id, records.StatusCancelled, nil)
}

// Start marks the meeting active when the participant joins. Joining a
// meeting that is already active leaves it untouched.
func (s *Service) Start(ctx context.Context, who auth.Identity, id string) (records.Meeting, error) {
	const op = "meetings.start"
	cur, err := s.lookup(ctx, op, who.UserID, id)
	if err != nil {
		return records.Meeting{}, err
	}
	if cur.Status == records.StatusActive {
		return cur, nil
	}
	return s.transition(ctx, op, who.UserID, id, records.StatusActive, func(t *records.Transition) {
		started := t.At
		t.StartedAt = &started
	})
}

// BeginProcessing closes the call side of the meeting and stamps ended_at.
func (s *Service) BeginProcessing(ctx context.Context, who auth.Identity, id string) (records.Meeting, error) {
	return s.transition(ctx, "meetings.begin_processing", who.UserID, id, records.StatusProcessing, func(t *records.Transition) {
		ended := t.At
		t.EndedAt = &ended
	})
}

// AbortProcessing undoes BeginProcessing when the finalize job could not be
// queued, so the meeting can be finalized again. It is the only move from
// processing back to active.
func (s *Service) AbortProcessing(ctx context.Context, who auth.Identity, id string) (records.Meeting, error) {
	const op = "meetings.abort_processing"
	cur, err := s.lookup(ctx, op, who.UserID, id)
	if err != nil {
		return records.Meeting{}, err
	}
	if cur.Status != records.StatusProcessing {
		return records.Meeting{}, apperr.InvalidState(op, "meeting is "+string(cur.Status))
	}
	m, err := s.store.TransitionMeeting(ctx, records.Transition{
		MeetingID:    cur.ID,
		UserID:       who.UserID,
		From:         records.StatusProcessing,
		To:           records.StatusActive,
		At:           s.now(),
		ClearEndedAt: true,
	})
	if err != nil {
		return records.Meeting{}, storeErr(op, err)
	}
	s.log.Warn().Str("meeting_id", m.ID).Msg("meeting returned to active")
	return m, nil
}

// Processing lists meetings waiting on finalize across all owners.
func (s *Service) Processing(ctx context.Context, limit int) ([]records.Meeting, error) {
	out, err := s.store.ListMeetingsByStatus(ctx, records.StatusProcessing, limit)
	if err != nil {
		return nil, storeErr("meetings.processing", err)
	}
	return out, nil
}

// Complete is the system-side transition run by the finalizer; it is not
// scoped to a caller.
func (s *Service) Complete(ctx context.Context, id string, a Artifacts) (records.Meeting, error) {
	return s.transition(ctx, "meetings.complete", "", id, records.StatusCompleted, func(t *records.Transition) {
		t.RecordingURL = a.RecordingURL
		t.Summary = a.Summary
		t.Transcript = a.Transcript
	})
}

// Lookup reads a meeting regardless of owner. Used by background workers.
func (s *Service) Lookup(ctx context.Context, id string) (records.Meeting, error) {
	return s.lookup(ctx, "meetings.lookup", "", id)
}

func (s *Service) lookup(ctx context.Context, op, userID, id string) (records.Meeting, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return records.Meeting{}, apperr.Validation(op, "id is required")
	}
	m, err := s.store.LookupMeeting(ctx, id)
	if err != nil {
		return records.Meeting{}, storeErr(op, err)
	}
	if userID != "" && m.UserID != userID {
		return records.Meeting{}, apperr.NotFound(op, "meeting not found")
	}
	return m, nil
}

func (s *Service) transition(ctx context.Context, op, userID, id string, to records.Status, mutate func(*records.Transition)) (records.Meeting, error) {
	cur, err := s.lookup(ctx, op, userID, id)
	if err != nil {
		return records.Meeting{}, err
	}
	if !cur.Status.CanTransitionTo(to) {
		return records.Meeting{}, apperr.InvalidState(op, "cannot move meeting from "+string(cur.Status)+" to "+string(to))
	}
	t := records.Transition{
		MeetingID: cur.ID,
		UserID:    userID,
		From:      cur.Status,
		To:        to,
		At:        s.now(),
	}
	if mutate != nil {
		mutate(&t)
	}
	m, err := s.store.TransitionMeeting(ctx, t)
	if err != nil {
		return records.Meeting{}, storeErr(op, err)
	}
	s.log.Info().
		Str("meeting_id", m.ID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("meeting status changed")
	return m, nil
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return apperr.NotFound(op, "meeting not found")
	case errors.Is(err, records.ErrStatusMismatch):
		return apperr.InvalidState(op, "meeting status changed concurrently")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &apperr.Error{Kind: apperr.KindInternal, Op: op, Message: "store failure", Err: err}
	}
}
