package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the huddle service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	CallInactivityTimeout time.Duration
	MetricsNamespace      string
	AllowAnyOrigin        bool

	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	AuthMode   string
	AuthTokens string

	DefaultPageSize int
	MinPageSize     int
	MaxPageSize     int

	BrainProvider   string
	BrainHTTPURL    string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIChatModel string
	OpenAITTSModel  string
	OpenAITTSVoice  string
	OpenAITTSFormat string
	OpenAISTTModel  string
	AISystemPrompt  string
	AISummaryPrompt string

	ExternalCallTimeout time.Duration
	PlaybackTimeout     time.Duration

	FinalizeWorkers    int
	FinalizeJobTimeout time.Duration
	ReportPollInterval time.Duration
	RecordingsDir      string
	// RecordingsBaseURL is the public origin prepended to recording links.
	// Empty keeps them relative to the API.
	RecordingsBaseURL string

	ConfirmTTL time.Duration
}

const DefaultSystemPrompt = "You are a helpful and engaging AI assistant in a real-time voice call. Keep your responses concise and professional."

const DefaultSummaryPrompt = `You are a meeting summarizer. Given a call transcript, produce a concise markdown summary with these sections:

## Summary
Two or three sentences on what the call was about.

## Key Takeaways
Bullet points of decisions and insights.

## Next Steps
Bullet points of follow-ups.

Omit any section with no content.`

// Load reads an optional .env file and environment variables and applies safe defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "huddle"),
		AllowAnyOrigin:        false,
		LogLevel:              envOrDefault("LOG_LEVEL", "info"),
		LogFormat:             envOrDefault("LOG_FORMAT", "console"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		RedisURL:              stringsTrimSpace("REDIS_URL"),
		AuthMode:              envOrDefault("AUTH_MODE", "token"),
		AuthTokens:            stringsTrimSpace("AUTH_TOKENS"),
		DefaultPageSize:       10,
		MinPageSize:           1,
		MaxPageSize:           100,
		BrainProvider:         envOrDefault("BRAIN_PROVIDER", "auto"),
		BrainHTTPURL:          stringsTrimSpace("BRAIN_HTTP_URL"),
		OpenAIAPIKey:          stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:         envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIChatModel:       envOrDefault("OPENAI_CHAT_MODEL", "gpt-4-turbo"),
		OpenAITTSModel:        envOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice:        envOrDefault("OPENAI_TTS_VOICE", "nova"),
		OpenAITTSFormat:       envOrDefault("OPENAI_TTS_FORMAT", "mp3"),
		OpenAISTTModel:        envOrDefault("OPENAI_STT_MODEL", "whisper-1"),
		AISystemPrompt:        envOrDefault("AI_SYSTEM_PROMPT", DefaultSystemPrompt),
		AISummaryPrompt:       envOrDefault("AI_SUMMARY_PROMPT", DefaultSummaryPrompt),
		RecordingsDir:         envOrDefault("RECORDINGS_DIR", "data/recordings"),
		RecordingsBaseURL:     envOrDefault("RECORDINGS_BASE_URL", ""),
		FinalizeWorkers:       2,
		ShutdownTimeout:       15 * time.Second,
		CallInactivityTimeout: 10 * time.Minute,
		ExternalCallTimeout:   30 * time.Second,
		PlaybackTimeout:       2 * time.Minute,
		FinalizeJobTimeout:    5 * time.Minute,
		ReportPollInterval:    3 * time.Second,
		ConfirmTTL:            2 * time.Minute,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_CALL_INACTIVITY_TIMEOUT", &cfg.CallInactivityTimeout},
		{"EXTERNAL_CALL_TIMEOUT", &cfg.ExternalCallTimeout},
		{"PLAYBACK_TIMEOUT", &cfg.PlaybackTimeout},
		{"FINALIZE_JOB_TIMEOUT", &cfg.FinalizeJobTimeout},
		{"REPORT_POLL_INTERVAL", &cfg.ReportPollInterval},
		{"CONFIRM_TTL", &cfg.ConfirmTTL},
	}
	for _, d := range durations {
		*d.dst, err = durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PAGE_DEFAULT_SIZE", &cfg.DefaultPageSize},
		{"PAGE_MIN_SIZE", &cfg.MinPageSize},
		{"PAGE_MAX_SIZE", &cfg.MaxPageSize},
		{"FINALIZE_WORKERS", &cfg.FinalizeWorkers},
	}
	for _, n := range ints {
		*n.dst, err = intFromEnv(n.key, *n.dst)
		if err != nil {
			return Config{}, err
		}
	}

	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.CallInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_CALL_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.MinPageSize <= 0 {
		return fmt.Errorf("PAGE_MIN_SIZE must be positive")
	}
	if c.MaxPageSize < c.MinPageSize {
		return fmt.Errorf("PAGE_MAX_SIZE must be >= PAGE_MIN_SIZE")
	}
	if c.DefaultPageSize < c.MinPageSize || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("PAGE_DEFAULT_SIZE must be within [PAGE_MIN_SIZE, PAGE_MAX_SIZE]")
	}
	if c.FinalizeWorkers <= 0 {
		return fmt.Errorf("FINALIZE_WORKERS must be positive")
	}
	if c.ExternalCallTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_CALL_TIMEOUT must be positive")
	}
	if c.ReportPollInterval <= 0 {
		return fmt.Errorf("REPORT_POLL_INTERVAL must be positive")
	}
	switch strings.ToLower(c.AuthMode) {
	case "token", "header":
	default:
		return fmt.Errorf("invalid AUTH_MODE: %q (expected token|header)", c.AuthMode)
	}
	switch strings.ToLower(c.BrainProvider) {
	case "auto", "openai", "http", "mock":
	default:
		return fmt.Errorf("invalid BRAIN_PROVIDER: %q (expected auto|openai|http|mock)", c.BrainProvider)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q (expected console|json)", c.LogFormat)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
