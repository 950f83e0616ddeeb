package records

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore is an in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	agents   map[string]Agent
	meetings map[string]Meeting
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		agents:   make(map[string]Agent),
		meetings: make(map[string]Meeting),
	}
}

func (s *InMemoryStore) InsertAgent(_ context.Context, a Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *InMemoryStore) GetAgent(_ context.Context, userID, id string) (AgentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok || a.UserID != userID {
		return AgentDetail{}, ErrNotFound
	}
	return AgentDetail{Agent: a, MeetingCount: s.meetingCountLocked(a.ID)}, nil
}

func (s *InMemoryStore) ListAgents(_ context.Context, f AgentFilter, limit, offset int) ([]AgentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchAgentsLocked(f)
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt.UnixNano(), matched[j].CreatedAt.UnixNano(), matched[i].ID, matched[j].ID)
	})
	matched = window(matched, limit, offset)
	out := make([]AgentDetail, 0, len(matched))
	for _, a := range matched {
		out = append(out, AgentDetail{Agent: a, MeetingCount: s.meetingCountLocked(a.ID)})
	}
	return out, nil
}

func (s *InMemoryStore) CountAgents(_ context.Context, f AgentFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchAgentsLocked(f)), nil
}

func (s *InMemoryStore) UpdateAgent(_ context.Context, a Agent) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.agents[a.ID]
	if !ok || cur.UserID != a.UserID {
		return Agent{}, ErrNotFound
	}
	cur.Name = a.Name
	cur.Instructions = a.Instructions
	cur.UpdatedAt = a.UpdatedAt
	s.agents[a.ID] = cur
	return cur, nil
}

func (s *InMemoryStore) DeleteAgent(_ context.Context, userID, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok || a.UserID != userID {
		return 0, ErrNotFound
	}
	removed := 0
	for mid, m := range s.meetings {
		if m.AgentID == id {
			delete(s.meetings, mid)
			removed++
		}
	}
	delete(s.agents, id)
	return removed, nil
}

func (s *InMemoryStore) InsertMeeting(_ context.Context, m Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[m.AgentID]
	if !ok || a.UserID != m.UserID {
		return ErrNotFound
	}
	s.meetings[m.ID] = m
	return nil
}

func (s *InMemoryStore) GetMeeting(_ context.Context, userID, id string) (MeetingDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok || m.UserID != userID {
		return MeetingDetail{}, ErrNotFound
	}
	return s.detailLocked(m), nil
}

func (s *InMemoryStore) ListMeetingsByStatus(_ context.Context, status Status, limit int) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Meeting
	for _, m := range s.meetings {
		if m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) LookupMeeting(_ context.Context, id string) (Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemoryStore) ListMeetings(_ context.Context, f MeetingFilter, limit, offset int) ([]MeetingDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchMeetingsLocked(f)
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt.UnixNano(), matched[j].CreatedAt.UnixNano(), matched[i].ID, matched[j].ID)
	})
	matched = window(matched, limit, offset)
	out := make([]MeetingDetail, 0, len(matched))
	for _, m := range matched {
		out = append(out, s.detailLocked(m))
	}
	return out, nil
}

func (s *InMemoryStore) CountMeetings(_ context.Context, f MeetingFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchMeetingsLocked(f)), nil
}

func (s *InMemoryStore) UpdateMeeting(_ context.Context, u MeetingUpdate) (Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[u.ID]
	if !ok || m.UserID != u.UserID {
		return Meeting{}, ErrNotFound
	}
	if u.AgentID != "" {
		a, ok := s.agents[u.AgentID]
		if !ok || a.UserID != u.UserID {
			return Meeting{}, ErrNotFound
		}
		m.AgentID = u.AgentID
	}
	if u.Name != "" {
		m.Name = u.Name
	}
	m.UpdatedAt = u.At
	s.meetings[m.ID] = m
	return m, nil
}

func (s *InMemoryStore) DeleteMeeting(_ context.Context, userID, id string) (Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok || m.UserID != userID {
		return Meeting{}, ErrNotFound
	}
	delete(s.meetings, id)
	return m, nil
}

func (s *InMemoryStore) TransitionMeeting(_ context.Context, t Transition) (Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[t.MeetingID]
	if !ok || (t.UserID != "" && m.UserID != t.UserID) {
		return Meeting{}, ErrNotFound
	}
	if m.Status != t.From {
		return Meeting{}, ErrStatusMismatch
	}
	m.Status = t.To
	m.UpdatedAt = t.At
	if t.StartedAt != nil {
		started := *t.StartedAt
		m.StartedAt = &started
	}
	if t.EndedAt != nil {
		ended := *t.EndedAt
		m.EndedAt = &ended
	}
	if t.ClearEndedAt {
		m.EndedAt = nil
	}
	if t.RecordingURL != "" {
		m.RecordingURL = t.RecordingURL
	}
	if t.Summary != "" {
		m.Summary = t.Summary
	}
	if t.Transcript != "" {
		m.Transcript = t.Transcript
	}
	s.meetings[m.ID] = m
	return m, nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) matchAgentsLocked(f AgentFilter) []Agent {
	prefix := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Agent, 0)
	for _, a := range s.agents {
		if a.UserID != f.UserID {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(a.Name), prefix) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *InMemoryStore) matchMeetingsLocked(f MeetingFilter) []Meeting {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Meeting, 0)
	for _, m := range s.meetings {
		if m.UserID != f.UserID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(m.Name), needle) {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.AgentID != "" && m.AgentID != f.AgentID {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *InMemoryStore) meetingCountLocked(agentID string) int {
	n := 0
	for _, m := range s.meetings {
		if m.AgentID == agentID {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) detailLocked(m Meeting) MeetingDetail {
	return MeetingDetail{Meeting: m, Agent: s.agents[m.AgentID], DurationSeconds: m.Duration()}
}

func newerFirst(ai, aj int64, idi, idj string) bool {
	if ai != aj {
		return ai > aj
	}
	return idi > idj
}

func window[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
