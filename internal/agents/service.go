// Package agents implements owner-scoped CRUD for AI agents.
package agents

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
}

type Input struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
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
		log:    log.With().Str("component", "agents").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetOne(ctx context.Context, who auth.Identity, id string) (records.AgentDetail, error) {
	const op = "agents.get_one"
	id = strings.TrimSpace(id)
	if id == "" {
		return records.AgentDetail{}, apperr.Validation(op, "id is required")
	}
	d, err := s.store.GetAgent(ctx, who.UserID, id)
	if err != nil {
		return records.AgentDetail{}, storeErr(op, err)
	}
	return d, nil
}

// GetMany pages through the caller's agents. Search matches a name prefix.
func (s *Service) GetMany(ctx context.Context, who auth.Identity, in ListParams) (paging.Result[records.AgentDetail], error) {
	p := s.bounds.Normalize(in.Page, in.PageSize)
	f := records.AgentFilter{UserID: who.UserID, Search: strings.TrimSpace(in.Search)}

	var (
		items []records.AgentDetail
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.store.ListAgents(gctx, f, p.Limit(), p.Offset())
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountAgents(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return paging.Result[records.AgentDetail]{}, storeErr("agents.get_many", err)
	}
	return paging.NewResult(items, total, p), nil
}

func (s *Service) Create(ctx context.Context, who auth.Identity, in Input) (records.Agent, error) {
	const op = "agents.create"
	name, instructions, err := validate(op, in)
	if err != nil {
		return records.Agent{}, err
	}
	now := s.now()
	a := records.Agent{
		ID:           uuid.NewString(),
		UserID:       who.UserID,
		Name:         name,
		Instructions: instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertAgent(ctx, a); err != nil {
		return records.Agent{}, storeErr(op, err)
	}
	s.log.Info().Str("agent_id", a.ID).Str("user_id", who.UserID).Msg("agent created")
	return a, nil
}

func (s *Service) Update(ctx context.Context, who auth.Identity, id string, in Input) (records.Agent, error) {
	const op = "agents.update"
	id = strings.TrimSpace(id)
	if id == "" {
		return records.Agent{}, apperr.Validation(op, "id is required")
	}
	name, instructions, err := validate(op, in)
	if err != nil {
		return records.Agent{}, err
	}
	a, err := s.store.UpdateAgent(ctx, records.Agent{
		ID:           id,
		UserID:       who.UserID,
		Name:         name,
		Instructions: instructions,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return records.Agent{}, storeErr(op, err)
	}
	return a, nil
}

// RemovalImpact reports how many meetings a removal would take with it.
func (s *Service) RemovalImpact(ctx context.Context, who auth.Identity, id string) (int, error) {
	d, err := s.GetOne(ctx, who, id)
	if err != nil {
		return 0, err
	}
	return d.MeetingCount, nil
}

// Remove deletes the agent and cascades to its meetings.
func (s *Service) Remove(ctx context.Context, who auth.Identity, id string) (int, error) {
	const op = "agents.remove"
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, apperr.Validation(op, "id is required")
	}
	removed, err := s.store.DeleteAgent(ctx, who.UserID, id)
	if err != nil {
		return 0, storeErr(op, err)
	}
	s.log.Info().Str("agent_id", id).Int("meetings_removed", removed).Msg("agent removed")
	return removed, nil
}

func validate(op string, in Input) (string, string, error) {
	name := strings.TrimSpace(in.Name)
	instructions := strings.TrimSpace(in.Instructions)
	if name == "" {
		return "", "", apperr.Validation(op, "name is required")
	}
	if instructions == "" {
		return "", "", apperr.Validation(op, "instructions are required")
	}
	return name, instructions, nil
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return apperr.NotFound(op, "agent not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &apperr.Error{Kind: apperr.KindInternal, Op: op, Message: "store failure", Err: err}
	}
}
