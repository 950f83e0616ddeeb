package transcript

import (
	"context"
	"strings"

	"github.com/antoniostano/huddle/internal/policy"
)

// Recorder redacts PII before anything reaches the store.
type Recorder struct {
	store    Store
	redactor *policy.Redactor
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, redactor: policy.NewRedactor()}
}

func (r *Recorder) Record(ctx context.Context, meetingID, userID string, role Role, content string) error {
	content = strings.TrimSpace(content)
	if meetingID == "" || content == "" {
		return nil
	}
	red := r.redactor.Redact(content)
	return r.store.Append(ctx, Entry{
		MeetingID:   meetingID,
		UserID:      userID,
		Role:        role,
		Content:     red.Text,
		PIIRedacted: red.Changed(),
	})
}

// Text returns the formatted transcript of a meeting.
func (r *Recorder) Text(ctx context.Context, meetingID string) (string, error) {
	entries, err := r.store.List(ctx, meetingID)
	if err != nil {
		return "", err
	}
	return Format(entries), nil
}

// RecordExchange appends the user turn and the assistant reply in order.
func (r *Recorder) RecordExchange(ctx context.Context, meetingID, userID, userText, replyText string) error {
	if err := r.Record(ctx, meetingID, userID, RoleUser, userText); err != nil {
		return err
	}
	return r.Record(ctx, meetingID, userID, RoleAssistant, replyText)
}
