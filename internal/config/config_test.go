package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.MinPageSize != 1 || cfg.MaxPageSize != 100 || cfg.DefaultPageSize != 10 {
		t.Fatalf("page sizes = %d/%d/%d, want 1/100/10", cfg.MinPageSize, cfg.MaxPageSize, cfg.DefaultPageSize)
	}
	if cfg.ReportPollInterval != 3*time.Second {
		t.Fatalf("ReportPollInterval = %v, want 3s", cfg.ReportPollInterval)
	}
	if cfg.OpenAITTSVoice != "nova" {
		t.Fatalf("OpenAITTSVoice = %q, want nova", cfg.OpenAITTSVoice)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PAGE_MAX_SIZE", "50")
	t.Setenv("EXTERNAL_CALL_TIMEOUT", "12s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxPageSize != 50 {
		t.Fatalf("MaxPageSize = %d, want 50", cfg.MaxPageSize)
	}
	if cfg.ExternalCallTimeout != 12*time.Second {
		t.Fatalf("ExternalCallTimeout = %v, want 12s", cfg.ExternalCallTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsInvalidPageBounds(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PAGE_MIN_SIZE", "20")
	t.Setenv("PAGE_MAX_SIZE", "10")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for max < min")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PLAYBACK_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected parse error")
	}
}

func TestLoadRejectsUnknownAuthMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUTH_MODE", "oauth")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for AUTH_MODE")
	}
}

func TestLoadRejectsUnknownBrainProvider(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("BRAIN_PROVIDER", "gateway")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for BRAIN_PROVIDER")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_CALL_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"REDIS_URL",
		"AUTH_MODE",
		"AUTH_TOKENS",
		"PAGE_DEFAULT_SIZE",
		"PAGE_MIN_SIZE",
		"PAGE_MAX_SIZE",
		"BRAIN_PROVIDER",
		"BRAIN_HTTP_URL",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_CHAT_MODEL",
		"OPENAI_TTS_MODEL",
		"OPENAI_TTS_VOICE",
		"OPENAI_TTS_FORMAT",
		"OPENAI_STT_MODEL",
		"AI_SYSTEM_PROMPT",
		"AI_SUMMARY_PROMPT",
		"EXTERNAL_CALL_TIMEOUT",
		"PLAYBACK_TIMEOUT",
		"FINALIZE_WORKERS",
		"FINALIZE_JOB_TIMEOUT",
		"REPORT_POLL_INTERVAL",
		"RECORDINGS_DIR",
		"RECORDINGS_BASE_URL",
		"CONFIRM_TTL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
