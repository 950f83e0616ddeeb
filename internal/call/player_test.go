package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/huddle/internal/protocol"
	"github.com/antoniostano/huddle/internal/voice"
)

func announced(t *testing.T, events <-chan any) protocol.AssistantAudio {
	t.Helper()
	for {
		select {
		case evt := <-events:
			if msg, ok := evt.(protocol.AssistantAudio); ok {
				return msg
			}
		case <-time.After(time.Second):
			t.Fatal("clip was not announced")
		}
	}
}

func TestClientPlayerWaitsForAck(t *testing.T) {
	m := NewManager(time.Minute)
	cache := NewAudioCache()
	p := NewClientPlayer(m)
	events, cancel := m.Subscribe("c1")
	defer cancel()

	h := cache.Put("c1", "t1", voice.Audio{Data: []byte{1}, Format: "mp3", ContentType: "audio/mpeg"})
	done := make(chan error, 1)
	go func() { done <- p.Play(WithPlaybackAck(context.Background()), h) }()

	msg := announced(t, events)
	assert.Equal(t, h.ID, msg.HandleID)
	assert.Equal(t, "/v1/calls/c1/audio/"+h.ID, msg.URL)
	assert.Equal(t, "audio/mpeg", msg.ContentType)

	require.True(t, p.Ack(h.ID, false, ""))
	require.NoError(t, <-done)
	assert.False(t, p.Ack(h.ID, false, ""), "ack after settle must be ignored")
}

func TestClientPlayerReportsFailure(t *testing.T) {
	m := NewManager(time.Minute)
	p := NewClientPlayer(m)
	events, cancel := m.Subscribe("c1")
	defer cancel()

	h := NewAudioCache().Put("c1", "t1", voice.Audio{Data: []byte{1}})
	done := make(chan error, 1)
	go func() { done <- p.Play(WithPlaybackAck(context.Background()), h) }()

	announced(t, events)
	p.Ack(h.ID, true, "autoplay blocked")
	err := <-done
	assert.ErrorIs(t, err, ErrPlaybackFailed)
	assert.Contains(t, err.Error(), "autoplay blocked")
}

func TestClientPlayerTimesOut(t *testing.T) {
	m := NewManager(time.Minute)
	p := NewClientPlayer(m)
	_, cancel := m.Subscribe("c1")
	defer cancel()

	ctx, stop := context.WithTimeout(WithPlaybackAck(context.Background()), 20*time.Millisecond)
	defer stop()
	err := p.Play(ctx, NewAudioCache().Put("c1", "t1", voice.Audio{}))
	assert.ErrorIs(t, err, ErrPlaybackTimeout)
}

func TestClientPlayerWithoutListenersReturnsImmediately(t *testing.T) {
	p := NewClientPlayer(NewManager(time.Minute))
	require.NoError(t, p.Play(WithPlaybackAck(context.Background()), NewAudioCache().Put("c1", "t1", voice.Audio{})))
}

func TestClientPlayerIgnoresPassiveListeners(t *testing.T) {
	m := NewManager(time.Minute)
	p := NewClientPlayer(m)
	events, cancel := m.Subscribe("c1")
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, p.Play(ctx, NewAudioCache().Put("c1", "t1", voice.Audio{Data: []byte{1}})))

	select {
	case evt := <-events:
		_, isClip := evt.(protocol.AssistantAudio)
		assert.False(t, isClip, "a turn nobody will ack must not announce its clip")
	default:
	}
}

func TestAudioHandleReleaseIsIdempotent(t *testing.T) {
	cache := NewAudioCache()
	h := cache.Put("c1", "t1", voice.Audio{Data: []byte("x")})

	_, ok := cache.Get("c2", h.ID)
	assert.False(t, ok, "clips are scoped to their call")
	clip, ok := cache.Get("c1", h.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), clip.Data)

	h.Release()
	h.Release()
	assert.Zero(t, cache.Len())
}
