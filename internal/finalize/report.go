package finalize

import (
	"context"
	"time"

	"github.com/antoniostano/huddle/internal/records"
)

// Report is the post-call view of a meeting.
type Report struct {
	MeetingID       string         `json:"meeting_id"`
	Name            string         `json:"name"`
	Status          records.Status `json:"status"`
	AgentID         string         `json:"agent_id"`
	AgentName       string         `json:"agent_name"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	RecordingURL    string         `json:"recording_url,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	Transcript      string         `json:"transcript,omitempty"`
}

func ReportFrom(d records.MeetingDetail) Report {
	return Report{
		MeetingID:       d.ID,
		Name:            d.Name,
		Status:          d.Status,
		AgentID:         d.Agent.ID,
		AgentName:       d.Agent.Name,
		StartedAt:       d.StartedAt,
		EndedAt:         d.EndedAt,
		DurationSeconds: d.DurationSeconds,
		RecordingURL:    d.RecordingURL,
		Summary:         d.Summary,
		Transcript:      d.Transcript,
	}
}

// Ready reports whether the report artifacts are available.
func (r Report) Ready() bool {
	return r.Status == records.StatusCompleted
}

// FetchFunc loads the current report.
type FetchFunc func(ctx context.Context) (Report, error)

// PollReport fetches until the meeting reaches a terminal status, waiting
// interval between attempts. It returns the last report seen alongside a
// fetch error or ctx.Err().
func PollReport(ctx context.Context, fetch FetchFunc, interval time.Duration) (Report, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Report
	for {
		r, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = r
		if r.Status.Terminal() {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
