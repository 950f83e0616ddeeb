package call

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/observability"
	"github.com/antoniostano/huddle/internal/protocol"
	"github.com/antoniostano/huddle/internal/records"
	"github.com/antoniostano/huddle/internal/voice"
)

// Deps wires a Controller. Transcript, Segments, Finalizer and Metrics are
// optional.
type Deps struct {
	Manager     *Manager
	Meetings    Meetings
	Transport   Transport
	Finalizer   Finalizer
	Completer   brain.Completer
	Synthesizer voice.Synthesizer
	Player      Player
	Audio       *AudioCache
	Transcript  TranscriptSink
	Segments    SegmentSink
	Metrics     *observability.Metrics
	Log         zerolog.Logger

	SystemPrompt    string
	ExternalTimeout time.Duration
	PlaybackTimeout time.Duration
}

type Controller struct {
	sessions    *Manager
	meetings    Meetings
	transport   Transport
	finalizer   Finalizer
	completer   brain.Completer
	synthesizer voice.Synthesizer
	player      Player
	audio       *AudioCache
	transcript  TranscriptSink
	segments    SegmentSink
	metrics     *observability.Metrics
	log         zerolog.Logger

	systemPrompt    string
	externalTimeout time.Duration
	playbackTimeout time.Duration
}

func NewController(d Deps) *Controller {
	if d.Manager == nil {
		d.Manager = NewManager(0)
	}
	if d.Transport == nil {
		d.Transport = NoopTransport{}
	}
	if d.Audio == nil {
		d.Audio = NewAudioCache()
	}
	if d.Player == nil {
		d.Player = NewClientPlayer(d.Manager)
	}
	if d.ExternalTimeout <= 0 {
		d.ExternalTimeout = 30 * time.Second
	}
	if d.PlaybackTimeout <= 0 {
		d.PlaybackTimeout = 2 * time.Minute
	}
	c := &Controller{
		sessions:        d.Manager,
		meetings:        d.Meetings,
		transport:       d.Transport,
		finalizer:       d.Finalizer,
		completer:       d.Completer,
		synthesizer:     d.Synthesizer,
		player:          d.Player,
		audio:           d.Audio,
		transcript:      d.Transcript,
		segments:        d.Segments,
		metrics:         d.Metrics,
		log:             d.Log.With().Str("component", "call").Logger(),
		systemPrompt:    d.SystemPrompt,
		externalTimeout: d.ExternalTimeout,
		playbackTimeout: d.PlaybackTimeout,
	}
	d.Manager.SetExpireHook(c.expire)
	return c
}

func (c *Controller) Sessions() *Manager { return c.sessions }

func (c *Controller) Audio() *AudioCache { return c.audio }

// Create opens a call in the lobby. A meeting id binds the call to that
// meeting and its agent; the meeting must be upcoming or already active.
func (c *Controller) Create(ctx context.Context, who auth.Identity, meetingID string) (Session, error) {
	const op = "call.create"
	meetingID = strings.TrimSpace(meetingID)
	instructions := ""
	if meetingID != "" {
		if c.meetings == nil {
			return Session{}, apperr.InvalidState(op, "meetings are not available")
		}
		m, err := c.meetings.GetOne(ctx, who, meetingID)
		if err != nil {
			return Session{}, err
		}
		switch m.Status {
		case records.StatusUpcoming, records.StatusActive:
		default:
			return Session{}, apperr.InvalidState(op, "meeting is "+string(m.Status))
		}
		instructions = strings.TrimSpace(m.Agent.Instructions)
	}
	s := c.sessions.Create(who.UserID, meetingID, instructions)
	c.metrics.CallEvent("created")
	c.log.Info().Str("call_id", s.ID).Str("meeting_id", meetingID).Msg("call created")
	return s, nil
}

func (c *Controller) Get(who auth.Identity, callID string) (Session, error) {
	return c.sessions.Get(who.UserID, callID)
}

// Join connects the transport and starts the meeting. On failure the call
// stays in the lobby and can be joined again.
func (c *Controller) Join(ctx context.Context, who auth.Identity, callID string) (Session, error) {
	const op = "call.join"
	s, err := c.sessions.beginJoin(who.UserID, callID)
	if err != nil {
		return Session{}, err
	}

	tctx, cancel := context.WithTimeout(ctx, c.externalTimeout)
	err = c.transport.Join(tctx, s)
	cancel()
	if err != nil {
		c.sessions.abortJoin(s.ID)
		c.metrics.ProviderError("transport", "join")
		return Session{}, asExternal(op, "transport", err)
	}

	if s.MeetingID != "" {
		if _, err := c.meetings.Start(ctx, who, s.MeetingID); err != nil {
			c.sessions.abortJoin(s.ID)
			ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.externalTimeout)
			if endErr := c.transport.End(ectx, s); endErr != nil {
				c.log.Warn().Err(endErr).Str("call_id", s.ID).Msg("transport end after failed join")
			}
			cancel()
			return Session{}, err
		}
	}

	s = c.sessions.completeJoin(s.ID)
	c.metrics.CallActivated()
	c.metrics.CallEvent("joined")
	c.publishPhase(s)
	c.log.Info().Str("call_id", s.ID).Str("meeting_id", s.MeetingID).Msg("call joined")
	return s, nil
}

// Leave ends an active call and triggers the meeting report once. A
// finalization failure is reported in the result; the call still ends.
func (c *Controller) Leave(ctx context.Context, who auth.Identity, callID string) (LeaveResult, error) {
	s, err := c.sessions.end(who.UserID, callID)
	if err != nil {
		return LeaveResult{}, err
	}
	return c.wrapUp(ctx, who, s), nil
}

func (c *Controller) wrapUp(ctx context.Context, who auth.Identity, s Session) LeaveResult {
	c.metrics.CallDeactivated()
	c.metrics.CallEvent("ended")

	tctx, cancel := context.WithTimeout(ctx, c.externalTimeout)
	if err := c.transport.End(tctx, s); err != nil {
		c.metrics.ProviderError("transport", "end")
		c.log.Warn().Err(err).Str("call_id", s.ID).Msg("transport end failed")
	}
	cancel()
	c.publishPhase(s)

	res := LeaveResult{Session: s, Outcome: FinalizeSkipped}
	switch {
	case s.MeetingID == "":
		res.Detail = "call has no meeting"
	case c.finalizer == nil:
		res.Detail = "finalization is not configured"
		res.ReportURL = ReportURL(s.MeetingID)
	default:
		res.ReportURL = ReportURL(s.MeetingID)
		fctx, cancel := context.WithTimeout(ctx, c.externalTimeout)
		err := c.finalizer.Finalize(fctx, who, s.MeetingID)
		cancel()
		if err != nil {
			res.Outcome = FinalizeFailed
			res.Detail = err.Error()
			c.log.Error().Err(err).Str("call_id", s.ID).Str("meeting_id", s.MeetingID).Msg("finalization trigger failed")
			c.publishError(s.ID, err, "finalize")
		} else {
			res.Outcome = FinalizeTriggered
		}
	}
	c.metrics.CallEvent("finalize_" + string(res.Outcome))

	c.sessions.Publish(s.ID, protocol.CallFinalized{
		Type:      protocol.TypeCallFinalized,
		CallID:    s.ID,
		MeetingID: s.MeetingID,
		Outcome:   string(res.Outcome),
		ReportURL: res.ReportURL,
		Detail:    res.Detail,
	})
	return res
}

// expire runs for sessions the janitor ended. Calls that never left the
// lobby have nothing to wrap up.
func (c *Controller) expire(s Session, from Phase) {
	c.log.Info().Str("call_id", s.ID).Str("from", string(from)).Msg("call expired")
	if from != PhaseActive {
		c.publishPhase(s)
		return
	}
	c.wrapUp(context.Background(), auth.Identity{UserID: s.UserID}, s)
}

// Subscribe streams events for a call the caller owns.
func (c *Controller) Subscribe(who auth.Identity, callID string) (<-chan any, func(), error) {
	s, err := c.sessions.Get(who.UserID, callID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := c.sessions.Subscribe(s.ID)
	return ch, cancel, nil
}

// Ack settles a clip announced over the websocket.
func (c *Controller) Ack(who auth.Identity, callID, handleID string, failed bool, detail string) error {
	const op = "call.ack"
	if _, err := c.sessions.Get(who.UserID, callID); err != nil {
		return err
	}
	acker, ok := c.player.(interface {
		Ack(handleID string, failed bool, detail string) bool
	})
	if !ok || !acker.Ack(handleID, failed, detail) {
		return apperr.NotFound(op, "no playback pending for handle")
	}
	c.sessions.Touch(callID)
	return nil
}

// Clip returns a clip still held for playback.
func (c *Controller) Clip(who auth.Identity, callID, handleID string) (voice.Audio, error) {
	if _, err := c.sessions.Get(who.UserID, callID); err != nil {
		return voice.Audio{}, err
	}
	clip, ok := c.audio.Get(callID, handleID)
	if !ok {
		return voice.Audio{}, apperr.NotFound("call.clip", "audio not found")
	}
	return clip, nil
}

func (c *Controller) publishPhase(s Session) {
	c.sessions.Publish(s.ID, protocol.CallPhase{
		Type:      protocol.TypeCallPhase,
		CallID:    s.ID,
		MeetingID: s.MeetingID,
		Phase:     string(s.Phase),
	})
}

func (c *Controller) publishError(callID string, err error, source string) {
	c.sessions.Publish(callID, protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		CallID: callID,
		Code:   string(apperr.KindOf(err)),
		Source: source,
		Detail: err.Error(),
	})
}

// asExternal keeps classified upstream errors and wraps everything else.
func asExternal(op, service string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.External(op, service, 0, err)
}
