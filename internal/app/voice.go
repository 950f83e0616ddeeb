package app

import (
	"net/http"
	"strings"

	"github.com/antoniostano/huddle/internal/config"
	"github.com/antoniostano/huddle/internal/httpapi"
	"github.com/antoniostano/huddle/internal/openai"
	"github.com/antoniostano/huddle/internal/voice"
)

type speechSetup struct {
	speech   httpapi.Speech
	provider string
	detail   string
}

// resolveSpeech uses OpenAI audio when a key is configured and the local
// tone generator otherwise.
func resolveSpeech(cfg config.Config) (speechSetup, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return speechSetup{
			speech:   voice.NewMockSpeech(),
			provider: "mock",
			detail:   "mock speech (set OPENAI_API_KEY for real audio)",
		}, nil
	}
	client, err := openai.NewClient(cfg.OpenAIAPIKey, openaiOptions(cfg)...)
	if err != nil {
		return speechSetup{}, err
	}
	return speechSetup{
		speech: voice.NewOpenAISpeech(client, voice.OpenAIConfig{
			TTSModel:  cfg.OpenAITTSModel,
			TTSVoice:  cfg.OpenAITTSVoice,
			TTSFormat: cfg.OpenAITTSFormat,
			STTModel:  cfg.OpenAISTTModel,
		}),
		provider: "openai",
		detail:   "openai " + firstNonEmpty(cfg.OpenAITTSModel, "tts-1") + "/" + firstNonEmpty(cfg.OpenAISTTModel, "whisper-1"),
	}, nil
}

func openaiOptions(cfg config.Config) []openai.Option {
	opts := []openai.Option{openai.WithHTTPClient(&http.Client{Timeout: cfg.ExternalCallTimeout})}
	if base := strings.TrimSpace(cfg.OpenAIBaseURL); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
