// Package call runs live meeting calls: the lobby/active/ended phase machine
// and the single-flight AI turn loop that answers the user.
package call

import (
	"context"
	"time"

	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/records"
	"github.com/antoniostano/huddle/internal/voice"
)

type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

type AIStatus string

const (
	AIIdle     AIStatus = "idle"
	AIThinking AIStatus = "thinking"
	AISpeaking AIStatus = "speaking"
)

// FinalizeOutcome reports what Leave did about the meeting report.
type FinalizeOutcome string

const (
	FinalizeTriggered FinalizeOutcome = "triggered"
	FinalizeSkipped   FinalizeOutcome = "skipped"
	FinalizeFailed    FinalizeOutcome = "failed"
)

// Session is a snapshot of one call. MeetingID is empty for ad-hoc calls.
type Session struct {
	ID             string     `json:"call_id"`
	UserID         string     `json:"user_id"`
	MeetingID      string     `json:"meeting_id,omitempty"`
	Instructions   string     `json:"-"`
	Phase          Phase      `json:"phase"`
	AIStatus       AIStatus   `json:"ai_status"`
	ActiveTurnID   string     `json:"active_turn_id,omitempty"`
	TurnCount      int        `json:"turn_count"`
	CreatedAt      time.Time  `json:"created_at"`
	JoinedAt       *time.Time `json:"joined_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
}

// LeaveResult is the session after Leave plus where the caller goes next.
type LeaveResult struct {
	Session   Session         `json:"session"`
	Outcome   FinalizeOutcome `json:"finalize_outcome"`
	ReportURL string          `json:"report_url,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// TurnResult describes one Submit. Submitted is false when the input was
// blank or another turn was in flight.
type TurnResult struct {
	Submitted   bool   `json:"submitted"`
	TurnID      string `json:"turn_id,omitempty"`
	Reply       string `json:"reply,omitempty"`
	HandleID    string `json:"handle_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Audio       []byte `json:"audio,omitempty"`
}

// Transport is the media session underneath a call.
type Transport interface {
	Join(ctx context.Context, s Session) error
	End(ctx context.Context, s Session) error
}

// NoopTransport accepts every join and end. Audio travels over HTTP and the
// call websocket, so there is no separate media leg to set up.
type NoopTransport struct{}

func (NoopTransport) Join(context.Context, Session) error { return nil }
func (NoopTransport) End(context.Context, Session) error  { return nil }

// Meetings is the slice of the meetings service a call needs.
type Meetings interface {
	GetOne(ctx context.Context, who auth.Identity, id string) (records.MeetingDetail, error)
	Start(ctx context.Context, who auth.Identity, id string) (records.Meeting, error)
}

// Finalizer kicks off report generation for a meeting.
type Finalizer interface {
	Finalize(ctx context.Context, who auth.Identity, meetingID string) error
}

// FinalizerFunc adapts a function to Finalizer.
type FinalizerFunc func(ctx context.Context, who auth.Identity, meetingID string) error

func (f FinalizerFunc) Finalize(ctx context.Context, who auth.Identity, meetingID string) error {
	return f(ctx, who, meetingID)
}

// Player plays a synthesized clip to the caller and returns once playback
// ends or fails.
type Player interface {
	Play(ctx context.Context, h *AudioHandle) error
}

// TranscriptSink receives each side of a completed exchange.
type TranscriptSink interface {
	RecordExchange(ctx context.Context, meetingID, userID, userText, replyText string) error
}

// SegmentSink keeps synthesized clips for the meeting recording.
type SegmentSink interface {
	SaveSegment(ctx context.Context, meetingID string, clip voice.Audio) error
}

// ReportURL is where a caller reads the report for a meeting.
func ReportURL(meetingID string) string {
	return "/v1/meetings/" + meetingID + "/report"
}
