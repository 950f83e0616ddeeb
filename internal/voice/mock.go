package voice

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
)

// MockSpeech is a local fallback used when no speech provider is configured.
// It synthesizes a short PCM tone whose length follows the text length.
type MockSpeech struct{}

func NewMockSpeech() *MockSpeech { return &MockSpeech{} }

func (MockSpeech) Synthesize(ctx context.Context, req SpeechRequest) (Audio, error) {
	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	default:
	}
	words := len(strings.Fields(req.Text))
	if words == 0 {
		words = 1
	}
	// ~150ms of a 440Hz tone per word, capped at 10s.
	samples := words * PCMSampleRate * 15 / 100
	if limit := PCMSampleRate * 10; samples > limit {
		samples = limit
	}
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*440*float64(i)/PCMSampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return Audio{Data: pcm, Format: "pcm", ContentType: ContentTypeFor("pcm"), SampleRate: PCMSampleRate}, nil
}

func (MockSpeech) Transcribe(ctx context.Context, _ string, audio []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if len(audio) == 0 {
		return "", nil
	}
	return "simulated voice input", nil
}
