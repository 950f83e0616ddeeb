package transcript

import (
	"context"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance in a meeting transcript.
type Entry struct {
	ID          string    `json:"id"`
	MeetingID   string    `json:"meeting_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists transcript entries per meeting.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, meetingID string) ([]Entry, error)
	Close() error
}

// Format renders entries as "User: ..." / "AI: ..." lines.
func Format(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch e.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("AI: ")
		default:
			b.WriteString(string(e.Role) + ": ")
		}
		b.WriteString(strings.TrimSpace(e.Content))
	}
	return b.String()
}
