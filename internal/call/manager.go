package call

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/huddle/internal/apperr"
)

// Manager owns call sessions in memory and fans their events out to
// websocket subscribers.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	joining           map[string]bool
	inactivityTimeout time.Duration
	onExpire          func(s Session, from Phase)
	now               func() time.Time

	subscribers map[string]map[int]chan any
	nextSubID   int
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		joining:           make(map[string]bool),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
		subscribers:       make(map[string]map[int]chan any),
	}
}

// SetExpireHook registers the callback run for sessions ended by the janitor.
func (m *Manager) SetExpireHook(hook func(s Session, from Phase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) Create(userID, meetingID, instructions string) Session {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		MeetingID:      meetingID,
		Instructions:   instructions,
		Phase:          PhaseLobby,
		AIStatus:       AIIdle,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return *s
}

// Get returns the session when it exists and belongs to userID.
func (m *Manager) Get(userID, callID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.ownedLocked("call.get", userID, callID)
	if err != nil {
		return Session{}, err
	}
	return *s, nil
}

func (m *Manager) Touch(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[callID]; ok {
		s.LastActivityAt = m.now()
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Phase == PhaseActive {
			count++
		}
	}
	return count
}

// beginJoin reserves the lobby -> active move so only one Join runs the
// transport and meeting side effects.
func (m *Manager) beginJoin(userID, callID string) (Session, error) {
	const op = "call.join"
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ownedLocked(op, userID, callID)
	if err != nil {
		return Session{}, err
	}
	if s.Phase != PhaseLobby || m.joining[callID] {
		return Session{}, apperr.InvalidState(op, "call already joined")
	}
	m.joining[callID] = true
	return *s, nil
}

func (m *Manager) abortJoin(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.joining, callID)
}

func (m *Manager) completeJoin(callID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.joining, callID)
	s := m.sessions[callID]
	now := m.now()
	s.Phase = PhaseActive
	s.JoinedAt = &now
	s.LastActivityAt = now
	return *s
}

// end moves an active session to ended. Leaving from the lobby is rejected.
func (m *Manager) end(userID, callID string) (Session, error) {
	const op = "call.leave"
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ownedLocked(op, userID, callID)
	if err != nil {
		return Session{}, err
	}
	switch s.Phase {
	case PhaseActive:
	case PhaseLobby:
		return Session{}, apperr.InvalidState(op, "call has not been joined")
	case PhaseEnded:
		return Session{}, apperr.InvalidState(op, "call already ended")
	}
	m.endLocked(s)
	return *s, nil
}

func (m *Manager) endLocked(s *Session) {
	now := m.now()
	s.Phase = PhaseEnded
	s.EndedAt = &now
	s.LastActivityAt = now
}

// beginTurn claims the AI for one turn. ok is false when a turn is already
// in flight.
func (m *Manager) beginTurn(userID, callID string) (Session, string, bool, error) {
	const op = "call.submit"
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ownedLocked(op, userID, callID)
	if err != nil {
		return Session{}, "", false, err
	}
	if s.Phase != PhaseActive {
		return Session{}, "", false, apperr.InvalidState(op, "call is not active")
	}
	if s.AIStatus != AIIdle {
		return *s, "", false, nil
	}
	turnID := uuid.NewString()
	s.AIStatus = AIThinking
	s.ActiveTurnID = turnID
	s.TurnCount++
	s.LastActivityAt = m.now()
	return *s, turnID, true, nil
}

// setStatus updates the AI status of the turn that owns it. Stale turn ids
// are ignored.
func (m *Manager) setStatus(callID, turnID string, status AIStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok || s.ActiveTurnID != turnID {
		return
	}
	s.AIStatus = status
	if status == AIIdle {
		s.ActiveTurnID = ""
	}
	s.LastActivityAt = m.now()
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

type expired struct {
	session Session
	from    Phase
}

// expireInactive ends idle sessions and forgets ended ones once they have
// been quiet for a full timeout.
func (m *Manager) expireInactive() {
	now := m.now()
	var ended []expired

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt) >= m.inactivityTimeout
		if !idle {
			continue
		}
		switch s.Phase {
		case PhaseEnded:
			delete(m.sessions, id)
			m.closeSubscribersLocked(id)
		case PhaseLobby, PhaseActive:
			if s.AIStatus != AIIdle || m.joining[id] {
				continue
			}
			from := s.Phase
			m.endLocked(s)
			ended = append(ended, expired{session: *s, from: from})
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, e := range ended {
			hook(e.session, e.from)
		}
	}
}

func (m *Manager) ownedLocked(op, userID, callID string) (*Session, error) {
	s, ok := m.sessions[strings.TrimSpace(callID)]
	if !ok || s.UserID != userID {
		return nil, apperr.NotFound(op, "call not found")
	}
	return s, nil
}

// Subscribe streams the events of one call until cancel is called.
func (m *Manager) Subscribe(callID string) (<-chan any, func()) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		ch := make(chan any)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan any, 64)
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if _, ok := m.subscribers[callID]; !ok {
		m.subscribers[callID] = make(map[int]chan any)
	}
	m.subscribers[callID][id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[callID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(m.subscribers, callID)
		}
	}
}

// Subscribers is the number of live listeners on a call.
func (m *Manager) Subscribers(callID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[callID])
}

// Publish delivers evt to every subscriber without blocking; slow readers
// miss events.
func (m *Manager) Publish(callID string, evt any) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subscribers[callID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *Manager) closeSubscribersLocked(callID string) {
	for id, ch := range m.subscribers[callID] {
		delete(m.subscribers[callID], id)
		close(ch)
	}
	delete(m.subscribers, callID)
}
