package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/antoniostano/huddle/internal/protocol"
)

var (
	ErrPlaybackFailed  = errors.New("client reported playback failure")
	ErrPlaybackTimeout = errors.New("playback was not acknowledged in time")
)

type playbackAckKey struct{}

// WithPlaybackAck marks a turn as submitted from a socket that will play the
// clip and ack it. Only such turns hold the AI in speaking until the ack.
func WithPlaybackAck(ctx context.Context) context.Context {
	return context.WithValue(ctx, playbackAckKey{}, true)
}

func awaitsAck(ctx context.Context) bool {
	v, _ := ctx.Value(playbackAckKey{}).(bool)
	return v
}

// ClientPlayer plays clips through the call websocket: it announces the clip
// and waits for the browser to ack playback_ended or playback_failed. Turns
// not marked WithPlaybackAck, or with nobody listening, get the clip inline
// and Play returns at once without announcing it.
type ClientPlayer struct {
	hub *Manager

	mu      sync.Mutex
	waiting map[string]chan error
}

func NewClientPlayer(hub *Manager) *ClientPlayer {
	return &ClientPlayer{hub: hub, waiting: make(map[string]chan error)}
}

func (p *ClientPlayer) Play(ctx context.Context, h *AudioHandle) error {
	if !awaitsAck(ctx) || p.hub.Subscribers(h.CallID) == 0 {
		return nil
	}

	done := make(chan error, 1)
	p.mu.Lock()
	p.waiting[h.ID] = done
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, h.ID)
		p.mu.Unlock()
	}()

	p.hub.Publish(h.CallID, protocol.AssistantAudio{
		Type:        protocol.TypeAssistantAudio,
		CallID:      h.CallID,
		TurnID:      h.TurnID,
		HandleID:    h.ID,
		URL:         h.URL,
		Format:      h.Audio.Format,
		ContentType: h.Audio.ContentType,
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrPlaybackTimeout
		}
		return ctx.Err()
	}
}

// Ack settles a pending playback. Unknown handles are ignored.
func (p *ClientPlayer) Ack(handleID string, failed bool, detail string) bool {
	p.mu.Lock()
	done, ok := p.waiting[handleID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	var err error
	if failed {
		err = ErrPlaybackFailed
		if detail != "" {
			err = fmt.Errorf("%w: %s", ErrPlaybackFailed, detail)
		}
	}
	select {
	case done <- err:
	default:
	}
	return true
}
