// Package finalize turns an ended meeting into its report. Trigger moves the
// meeting to processing and queues a job; workers stitch the recording,
// summarize the transcript and complete the meeting out of band.
package finalize

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
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/meetings"
	"github.com/antoniostano/huddle/internal/observability"
	"github.com/antoniostano/huddle/internal/records"
	"github.com/antoniostano/huddle/internal/reliability"
)

// Meetings is the slice of the meetings service finalization needs.
type Meetings interface {
	GetOne(ctx context.Context, who auth.Identity, id string) (records.MeetingDetail, error)
	BeginProcessing(ctx context.Context, who auth.Identity, id string) (records.Meeting, error)
	AbortProcessing(ctx context.Context, who auth.Identity, id string) (records.Meeting, error)
	Processing(ctx context.Context, limit int) ([]records.Meeting, error)
	Lookup(ctx context.Context, id string) (records.Meeting, error)
	Complete(ctx context.Context, id string, a meetings.Artifacts) (records.Meeting, error)
}

type Transcripts interface {
	Text(ctx context.Context, meetingID string) (string, error)
}

type Recordings interface {
	Stitch(ctx context.Context, meetingID string) (string, error)
}

// Ack is returned by Trigger as soon as the job is queued.
type Ack struct {
	MeetingID string         `json:"meeting_id"`
	JobID     string         `json:"job_id,omitempty"`
	Status    records.Status `json:"status"`
	Queued    bool           `json:"queued"`
	ReportURL string         `json:"report_url"`
}

const noConversationSummary = "No conversation was recorded during this meeting."

type Config struct {
	Workers       int
	JobTimeout    time.Duration
	SummaryPrompt string
	// SummaryAttempts bounds retries of a summary on retryable upstream
	// statuses.
	SummaryAttempts int
	RetryBase       time.Duration
	RetryCap        time.Duration
}

type Deps struct {
	Meetings    Meetings
	Queue       Queue
	Transcripts Transcripts
	Recordings  Recordings
	Completer   brain.Completer
	Metrics     *observability.Metrics
	Log         zerolog.Logger
}

type Service struct {
	meetings    Meetings
	queue       Queue
	transcripts Transcripts
	recordings  Recordings
	completer   brain.Completer
	metrics     *observability.Metrics
	log         zerolog.Logger
	cfg         Config
	now         func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.SummaryAttempts <= 0 {
		cfg.SummaryAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 8 * time.Second
	}
	return &Service{
		meetings:    d.Meetings,
		queue:       d.Queue,
		transcripts: d.Transcripts,
		recordings:  d.Recordings,
		completer:   d.Completer,
		metrics:     d.Metrics,
		log:         d.Log.With().Str("component", "finalize").Logger(),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Trigger starts finalization of an owned meeting and returns without
// waiting for the report. An active meeting moves to processing; one already
// processing is queued again so a stuck report can be retried.
func (s *Service) Trigger(ctx context.Context, who auth.Identity, meetingID string) (Ack, error) {
	const op = "finalize.trigger"
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return Ack{}, apperr.Validation(op, "meetingId is required")
	}

	m, err := s.meetings.GetOne(ctx, who, meetingID)
	if err != nil {
		return Ack{}, err
	}
	ack := Ack{MeetingID: m.ID, Status: m.Status, ReportURL: reportURL(m.ID)}

	moved := false
	switch m.Status {
	case records.StatusCompleted:
		return ack, nil
	case records.StatusActive:
		_, err := s.meetings.BeginProcessing(ctx, who, m.ID)
		moved = err == nil
		if err != nil {
			if !apperr.IsInvalidState(err) {
				return Ack{}, err
			}
			// Lost a race with another trigger; fine if it got to processing.
			cur, lerr := s.meetings.GetOne(ctx, who, m.ID)
			if lerr != nil {
				return Ack{}, lerr
			}
			if cur.Status == records.StatusCompleted {
				ack.Status = cur.Status
				return ack, nil
			}
			if cur.Status != records.StatusProcessing {
				return Ack{}, err
			}
		}
	case records.StatusProcessing:
	case records.StatusUpcoming, records.StatusCancelled:
		return Ack{}, apperr.InvalidState(op, "meeting is "+string(m.Status))
	}

	job := Job{ID: uuid.NewString(), MeetingID: m.ID, UserID: who.UserID, EnqueuedAt: s.now()}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.metrics.FinalizeJob("enqueue_failed")
		if moved {
			// Nothing will pick this meeting up, so hand it back to the caller.
			if _, rerr := s.meetings.AbortProcessing(context.WithoutCancel(ctx), who, m.ID); rerr != nil {
				s.log.Error().Err(rerr).Str("meeting_id", m.ID).Msg("could not return meeting to active after enqueue failure")
			}
		}
		return Ack{}, apperr.External(op, "finalize_queue", 0, err)
	}
	s.metrics.FinalizeJob("queued")
	s.log.Info().Str("meeting_id", m.ID).Str("job_id", job.ID).Msg("finalize job queued")

	ack.JobID = job.ID
	ack.Status = records.StatusProcessing
	ack.Queued = true
	return ack, nil
}

// Report returns the report view of an owned meeting.
func (s *Service) Report(ctx context.Context, who auth.Identity, meetingID string) (Report, error) {
	m, err := s.meetings.GetOne(ctx, who, meetingID)
	if err != nil {
		return Report{}, err
	}
	return ReportFrom(m), nil
}

// Run processes jobs on cfg.Workers goroutines until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return s.work(gctx, worker)
		})
	}
	g.Go(func() error {
		n, err := s.RecoverPending(gctx)
		if err != nil && gctx.Err() == nil {
			s.log.Error().Err(err).Int("requeued", n).Msg("finalize recovery sweep failed")
		}
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
		return nil
	}
	return err
}

// recoverLimit bounds one recovery sweep.
const recoverLimit = 200

// RecoverPending queues a job for every meeting left in processing. Jobs held
// only in memory or popped by a worker that died are lost across restarts;
// the meeting row is the durable record. A meeting finalized twice is skipped
// by Process.
func (s *Service) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.meetings.Processing(ctx, recoverLimit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range pending {
		job := Job{ID: uuid.NewString(), MeetingID: m.ID, UserID: m.UserID, EnqueuedAt: s.now()}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.metrics.FinalizeJob("enqueue_failed")
			return n, err
		}
		s.metrics.FinalizeJob("recovered")
		n++
	}
	if n > 0 {
		s.log.Info().Int("requeued", n).Msg("requeued meetings left in processing")
	}
	return n, nil
}

func (s *Service) work(ctx context.Context, worker int) error {
	log := s.log.With().Int("worker", worker).Logger()
	for {
		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return nil
			}
			log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.RetryBase):
			}
			continue
		}
		if err := s.Process(ctx, job); err != nil {
			log.Error().Err(err).Str("meeting_id", job.MeetingID).Str("job_id", job.ID).Msg("finalize job failed")
		}
	}
}

// Process runs one job. A meeting that is no longer processing was already
// finalized by an earlier job and is skipped.
func (s *Service) Process(ctx context.Context, job Job) error {
	const op = "finalize.process"
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	m, err := s.meetings.Lookup(ctx, job.MeetingID)
	if err != nil {
		s.metrics.FinalizeJob("failed")
		return err
	}
	if m.Status != records.StatusProcessing {
		s.metrics.FinalizeJob("skipped")
		return nil
	}

	text, err := s.transcripts.Text(ctx, m.ID)
	if err != nil {
		s.metrics.FinalizeJob("failed")
		return apperr.External(op, "transcript", 0, err)
	}

	var recordingURL string
	if s.recordings != nil {
		recordingURL, err = s.recordings.Stitch(ctx, m.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("meeting_id", m.ID).Msg("recording stitch failed, completing without recording")
			recordingURL = ""
		}
	}

	summary, err := s.summarize(ctx, job, text)
	if err != nil {
		s.metrics.FinalizeJob("failed")
		return err
	}

	if _, err := s.meetings.Complete(ctx, m.ID, meetings.Artifacts{
		RecordingURL: recordingURL,
		Summary:      summary,
		Transcript:   text,
	}); err != nil {
		if apperr.IsInvalidState(err) {
			s.metrics.FinalizeJob("skipped")
			return nil
		}
		s.metrics.FinalizeJob("failed")
		return err
	}

	s.metrics.FinalizeJob("completed")
	s.metrics.ObserveTurnStage(observability.StageFinalize, time.Since(started))
	s.log.Info().Str("meeting_id", m.ID).Str("job_id", job.ID).Dur("took", time.Since(started)).Msg("meeting finalized")
	return nil
}

func (s *Service) summarize(ctx context.Context, job Job, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return noConversationSummary, nil
	}
	req := brain.Request{
		Task:      brain.TaskSummary,
		MeetingID: job.MeetingID,
		System:    s.cfg.SummaryPrompt,
		Input:     transcript,
	}

	var summary string
	policy := reliability.Policy{Attempts: s.cfg.SummaryAttempts, Base: s.cfg.RetryBase, Cap: s.cfg.RetryCap}
	err := reliability.Do(ctx, policy, retryable, func(ctx context.Context, attempt int) error {
		resp, err := s.completer.Complete(ctx, req)
		if err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt+1).Str("meeting_id", job.MeetingID).Msg("summary attempt failed")
			return err
		}
		summary = strings.TrimSpace(resp.Text)
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return "", err
		}
		return "", apperr.External("finalize.summarize", "brain", 0, err)
	}
	return summary, nil
}

func retryable(err error) bool {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Status > 0 {
		return reliability.IsRetryableHTTPStatus(ae.Status)
	}
	return false
}

func reportURL(meetingID string) string {
	return "/v1/meetings/" + meetingID + "/report"
}
