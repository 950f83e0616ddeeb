package call

import (
	"sync"

	"github.com/google/uuid"

	"github.com/antoniostano/huddle/internal/voice"
)

// AudioHandle is a playable clip. The clip stays fetchable from the cache
// until Release, which is safe to call more than once.
type AudioHandle struct {
	ID     string
	CallID string
	TurnID string
	URL    string
	Audio  voice.Audio

	once    sync.Once
	release func()
}

func (h *AudioHandle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// AudioCache serves synthesized clips to the browser while they play.
type AudioCache struct {
	mu    sync.RWMutex
	clips map[string]cachedClip
}

type cachedClip struct {
	callID string
	audio  voice.Audio
}

func NewAudioCache() *AudioCache {
	return &AudioCache{clips: make(map[string]cachedClip)}
}

// Put stores a clip and returns its handle. Releasing the handle evicts it.
func (c *AudioCache) Put(callID, turnID string, audio voice.Audio) *AudioHandle {
	id := uuid.NewString()
	c.mu.Lock()
	c.clips[id] = cachedClip{callID: callID, audio: audio}
	c.mu.Unlock()

	return &AudioHandle{
		ID:     id,
		CallID: callID,
		TurnID: turnID,
		URL:    "/v1/calls/" + callID + "/audio/" + id,
		Audio:  audio,
		release: func() {
			c.mu.Lock()
			delete(c.clips, id)
			c.mu.Unlock()
		},
	}
}

func (c *AudioCache) Get(callID, handleID string) (voice.Audio, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clip, ok := c.clips[handleID]
	if !ok || clip.callID != callID {
		return voice.Audio{}, false
	}
	return clip.audio, true
}

func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clips)
}
