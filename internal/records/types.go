package records

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("record not found in store")
	ErrStatusMismatch = errors.New("meeting status changed concurrently")
)

// Agent is an AI persona owned by one user.
type Agent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AgentDetail adds the derived meeting count.
type AgentDetail struct {
	Agent
	MeetingCount int `json:"meeting_count"`
}

// Meeting is a scheduled or live session between a user and an agent.
type Meeting struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	AgentID      string     `json:"agent_id"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	RecordingURL string     `json:"recording_url,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Transcript   string     `json:"transcript,omitempty"`
}

// Duration is nil until the meeting has both started and ended.
func (m Meeting) Duration() *float64 {
	if m.StartedAt == nil || m.EndedAt == nil {
		return nil
	}
	secs := m.EndedAt.Sub(*m.StartedAt).Seconds()
	return &secs
}

// MeetingDetail is a meeting with its joined agent and computed duration.
type MeetingDetail struct {
	Meeting
	Agent           Agent    `json:"agent"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// MeetingFilter scopes meeting queries. UserID is always required.
type MeetingFilter struct {
	UserID  string
	Search  string
	Status  Status
	AgentID string
}

// AgentFilter scopes agent queries. Search is a name prefix.
type AgentFilter struct {
	UserID string
	Search string
}

// MeetingUpdate replaces the editable fields of an owned meeting.
type MeetingUpdate struct {
	ID      string
	UserID  string
	Name    string
	AgentID string
	At      time.Time
}

// Transition moves a meeting from one status to another with compare-and-set
// semantics. Empty UserID means an unscoped (system) transition. Zero-valued
// artifact fields are left untouched. ClearEndedAt resets ended_at and wins
// over EndedAt.
type Transition struct {
	MeetingID    string
	UserID       string
	From         Status
	To           Status
	At           time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	ClearEndedAt bool
	RecordingURL string
	Summary      string
	Transcript   string
}

// Store persists agents and meetings. Every user-scoped method filters on
// the owner; rows owned by someone else are reported as ErrNotFound.
type Store interface {
	InsertAgent(ctx context.Context, a Agent) error
	GetAgent(ctx context.Context, userID, id string) (AgentDetail, error)
	ListAgents(ctx context.Context, f AgentFilter, limit, offset int) ([]AgentDetail, error)
	CountAgents(ctx context.Context, f AgentFilter) (int, error)
	UpdateAgent(ctx context.Context, a Agent) (Agent, error)
	DeleteAgent(ctx context.Context, userID, id string) (int, error)

	InsertMeeting(ctx context.Context, m Meeting) error
	GetMeeting(ctx context.Context, userID, id string) (MeetingDetail, error)
	LookupMeeting(ctx context.Context, id string) (Meeting, error)
	ListMeetings(ctx context.Context, f MeetingFilter, limit, offset int) ([]MeetingDetail, error)
	CountMeetings(ctx context.Context, f MeetingFilter) (int, error)
	UpdateMeeting(ctx context.Context, u MeetingUpdate) (Meeting, error)
	DeleteMeeting(ctx context.Context, userID, id string) (Meeting, error)
	TransitionMeeting(ctx context.Context, t Transition) (Meeting, error)
	// ListMeetingsByStatus is unscoped and oldest-updated first. Used by
	// background recovery.
	ListMeetingsByStatus(ctx context.Context, status Status, limit int) ([]Meeting, error)

	Close() error
}
