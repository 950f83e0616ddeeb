package voice

import (
	"context"
	"strings"
)

// SpeechRequest is one synthesis. Empty fields take the synthesizer defaults.
type SpeechRequest struct {
	Text   string
	Model  string
	Voice  string
	Format string
}

// Audio is an encoded clip. SampleRate is only meaningful for raw PCM.
type Audio struct {
	Data        []byte
	Format      string
	ContentType string
	SampleRate  int
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (Audio, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// PCMSampleRate is the rate of raw "pcm" output (24kHz 16-bit mono).
const PCMSampleRate = 24000

// ContentTypeFor maps a response format to its MIME type.
func ContentTypeFor(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp3", "":
		return "audio/mpeg"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
