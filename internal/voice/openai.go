package voice

import (
	"context"
	"strings"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/openai"
)

// OpenAIConfig holds the speech defaults.
type OpenAIConfig struct {
	TTSModel  string
	TTSVoice  string
	TTSFormat string
	STTModel  string
}

// OpenAISpeech implements Synthesizer and Transcriber over the audio endpoints.
type OpenAISpeech struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAISpeech(client *openai.Client, cfg OpenAIConfig) *OpenAISpeech {
	if cfg.TTSModel == "" {
		cfg.TTSModel = "tts-1"
	}
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = "nova"
	}
	if cfg.TTSFormat == "" {
		cfg.TTSFormat = "mp3"
	}
	if cfg.STTModel == "" {
		cfg.STTModel = "whisper-1"
	}
	return &OpenAISpeech{client: client, cfg: cfg}
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, req SpeechRequest) (Audio, error) {
	in := openai.SpeechRequest{
		Input:          req.Text,
		Model:          firstNonEmpty(req.Model, s.cfg.TTSModel),
		Voice:          firstNonEmpty(req.Voice, s.cfg.TTSVoice),
		ResponseFormat: firstNonEmpty(req.Format, s.cfg.TTSFormat),
	}
	data, contentType, err := s.client.Speech(ctx, in)
	if err != nil {
		return Audio{}, apperr.External("voice.synthesize", "openai", openai.StatusCode(err), err)
	}
	out := Audio{
		Data:        data,
		Format:      in.ResponseFormat,
		ContentType: contentType,
	}
	if out.ContentType == "" {
		out.ContentType = ContentTypeFor(in.ResponseFormat)
	}
	if in.ResponseFormat == "pcm" {
		out.SampleRate = PCMSampleRate
	}
	return out, nil
}

func (s *OpenAISpeech) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}
	text, err := s.client.Transcribe(ctx, s.cfg.STTModel, filename, audio)
	if err != nil {
		return "", apperr.External("voice.transcribe", "openai", openai.StatusCode(err), err)
	}
	return strings.TrimSpace(text), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
