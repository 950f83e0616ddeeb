package call

import (
	"context"
	"strings"
	"time"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/observability"
	"github.com/antoniostano/huddle/internal/protocol"
	"github.com/antoniostano/huddle/internal/voice"
)

// Submit runs one AI turn: complete, synthesize, play. Only one turn runs per
// call; a submission while the AI is busy, or with blank text, is a no-op.
// The AI status is back to idle when Submit returns, whatever happened.
func (c *Controller) Submit(ctx context.Context, who auth.Identity, callID, text string) (TurnResult, error) {
	const op = "call.submit"
	text = strings.TrimSpace(text)
	if text == "" {
		if _, err := c.sessions.Get(who.UserID, callID); err != nil {
			return TurnResult{}, err
		}
		return TurnResult{}, nil
	}

	s, turnID, ok, err := c.sessions.beginTurn(who.UserID, callID)
	if err != nil {
		return TurnResult{}, err
	}
	if !ok {
		c.metrics.TurnOutcome("busy")
		return TurnResult{}, nil
	}

	started := time.Now()
	log := c.log.With().Str("call_id", s.ID).Str("turn_id", turnID).Logger()
	defer c.setStatus(s.ID, turnID, AIIdle)
	c.publishStatus(s.ID, turnID, AIThinking)

	res := TurnResult{Submitted: true, TurnID: turnID}

	system := s.Instructions
	if system == "" {
		system = c.systemPrompt
	}
	cctx, cancel := context.WithTimeout(ctx, c.externalTimeout)
	reply, err := c.completer.Complete(cctx, brain.Request{
		Task:      brain.TaskReply,
		MeetingID: s.MeetingID,
		TurnID:    turnID,
		System:    system,
		Input:     text,
	})
	cancel()
	c.metrics.ObserveTurnStage(observability.StageCompletion, time.Since(started))
	if err != nil {
		err = asExternal(op, "brain", err)
		c.failTurn(s.ID, "completion_failed", "brain", err)
		log.Warn().Err(err).Msg("completion failed")
		return res, err
	}
	res.Reply = strings.TrimSpace(reply.Text)
	c.sessions.Publish(s.ID, protocol.AssistantText{
		Type:   protocol.TypeAssistantText,
		CallID: s.ID,
		TurnID: turnID,
		Text:   res.Reply,
	})

	if c.transcript != nil && s.MeetingID != "" {
		if err := c.transcript.RecordExchange(ctx, s.MeetingID, s.UserID, text, res.Reply); err != nil {
			log.Warn().Err(err).Msg("transcript append failed")
		}
	}

	speakable := voice.SpeakableText(res.Reply)
	if speakable == "" {
		c.metrics.TurnOutcome("silent")
		c.observeTurn(started)
		return res, nil
	}

	c.setStatus(s.ID, turnID, AISpeaking)
	synthStarted := time.Now()
	sctx, cancel := context.WithTimeout(ctx, c.externalTimeout)
	clip, err := c.synthesizer.Synthesize(sctx, voice.SpeechRequest{Text: speakable})
	cancel()
	c.metrics.ObserveTurnStage(observability.StageSynthesis, time.Since(synthStarted))
	if err != nil {
		err = asExternal(op, "tts", err)
		c.failTurn(s.ID, "synthesis_failed", "tts", err)
		log.Warn().Err(err).Msg("synthesis failed")
		return res, err
	}

	if c.segments != nil && s.MeetingID != "" {
		if err := c.segments.SaveSegment(ctx, s.MeetingID, clip); err != nil {
			log.Warn().Err(err).Msg("recording segment not saved")
		}
	}

	handle := c.audio.Put(s.ID, turnID, clip)
	defer handle.Release()
	res.HandleID = handle.ID
	res.ContentType = clip.ContentType
	res.Audio = clip.Data

	playStarted := time.Now()
	pctx, cancel := context.WithTimeout(ctx, c.playbackTimeout)
	err = c.player.Play(pctx, handle)
	cancel()
	c.metrics.ObserveTurnStage(observability.StagePlayback, time.Since(playStarted))
	if err != nil {
		err = apperr.Playback(op, err)
		c.failTurn(s.ID, "playback_failed", "playback", err)
		log.Warn().Err(err).Msg("playback failed")
		return res, err
	}

	c.metrics.TurnOutcome("completed")
	c.observeTurn(started)
	return res, nil
}

func (c *Controller) setStatus(callID, turnID string, status AIStatus) {
	c.sessions.setStatus(callID, turnID, status)
	c.publishStatus(callID, turnID, status)
}

func (c *Controller) publishStatus(callID, turnID string, status AIStatus) {
	c.sessions.Publish(callID, protocol.AIStatus{
		Type:   protocol.TypeAIStatus,
		CallID: callID,
		TurnID: turnID,
		Status: string(status),
	})
}

func (c *Controller) failTurn(callID, outcome, source string, err error) {
	c.metrics.TurnOutcome(outcome)
	if source != "playback" {
		c.metrics.ProviderError(source, string(apperr.KindOf(err)))
	}
	c.publishError(callID, err, source)
}

func (c *Controller) observeTurn(started time.Time) {
	d := time.Since(started)
	c.metrics.ObserveTurnLatency(d)
	c.metrics.ObserveTurnStage(observability.StageTurnTotal, d)
}
