package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/huddle/internal/agents"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/call"
	"github.com/antoniostano/huddle/internal/config"
	"github.com/antoniostano/huddle/internal/confirm"
	"github.com/antoniostano/huddle/internal/finalize"
	"github.com/antoniostano/huddle/internal/httpapi"
	"github.com/antoniostano/huddle/internal/meetings"
	"github.com/antoniostano/huddle/internal/observability"
	"github.com/antoniostano/huddle/internal/paging"
	"github.com/antoniostano/huddle/internal/recording"
	"github.com/antoniostano/huddle/internal/records"
	"github.com/antoniostano/huddle/internal/transcript"
)

type ProviderInfo struct {
	Brain  string
	Speech string
	Detail string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Calls    *call.Controller
	Finalize *finalize.Service
	Metrics  *observability.Metrics
	Info     ProviderInfo

	// Cleanup should be called on shutdown to release external resources (DB, queue).
	Cleanup func() error
}

// Build wires the stack described by cfg. Metrics register on the default
// Prometheus registry, so Build runs once per process.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	return build(ctx, cfg, log, observability.NewMetrics(cfg.MetricsNamespace))
}

func build(ctx context.Context, cfg config.Config, log zerolog.Logger, metrics *observability.Metrics) (*BuildResult, error) {
	authProvider, err := auth.NewProvider(cfg.AuthMode, cfg.AuthTokens)
	if err != nil {
		return nil, fmt.Errorf("auth provider init failed: %w", err)
	}

	var closers []func() error
	fail := func(err error) (*BuildResult, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	store, err := records.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("record store init failed: %w", err))
	}
	closers = append(closers, store.Close)

	transcripts, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("transcript store init failed: %w", err))
	}
	closers = append(closers, transcripts.Close)
	recorder := transcript.NewRecorder(transcripts)

	queue, err := finalize.NewQueue(ctx, cfg.RedisURL)
	if err != nil {
		return fail(fmt.Errorf("finalize queue init failed: %w", err))
	}
	closers = append(closers, queue.Close)

	completer, err := brain.NewCompleter(brain.Config{
		Provider:     cfg.BrainProvider,
		HTTPURL:      cfg.BrainHTTPURL,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIOpts:   openaiOptions(cfg),
		Model:        cfg.OpenAIChatModel,
	})
	if err != nil {
		return fail(fmt.Errorf("brain init failed: %w", err))
	}

	speech, err := resolveSpeech(cfg)
	if err != nil {
		return fail(fmt.Errorf("speech init failed: %w", err))
	}

	bounds := paging.Bounds{Default: cfg.DefaultPageSize, Min: cfg.MinPageSize, Max: cfg.MaxPageSize}
	meetingSvc := meetings.NewService(store, bounds, log)
	agentSvc := agents.NewService(store, bounds, log)

	finDeps := finalize.Deps{
		Meetings:    meetingSvc,
		Queue:       queue,
		Transcripts: recorder,
		Completer:   completer,
		Metrics:     metrics,
		Log:         log,
	}
	callDeps := call.Deps{
		Manager:         call.NewManager(cfg.CallInactivityTimeout),
		Meetings:        meetingSvc,
		Transport:       call.NoopTransport{},
		Completer:       completer,
		Synthesizer:     speech.speech,
		Transcript:      recorder,
		Metrics:         metrics,
		Log:             log,
		SystemPrompt:    cfg.AISystemPrompt,
		ExternalTimeout: cfg.ExternalCallTimeout,
		PlaybackTimeout: cfg.PlaybackTimeout,
	}
	var recordings httpapi.Recordings
	if strings.TrimSpace(cfg.RecordingsDir) != "" {
		rec, err := recording.NewStore(cfg.RecordingsDir, cfg.RecordingsBaseURL, log)
		if err != nil {
			return fail(fmt.Errorf("recording store init failed: %w", err))
		}
		finDeps.Recordings = rec
		callDeps.Segments = rec
		recordings = rec
	}

	fin := finalize.NewService(finDeps, finalize.Config{
		Workers:       cfg.FinalizeWorkers,
		JobTimeout:    cfg.FinalizeJobTimeout,
		SummaryPrompt: cfg.AISummaryPrompt,
	})
	callDeps.Finalizer = call.FinalizerFunc(func(ctx context.Context, who auth.Identity, meetingID string) error {
		_, err := fin.Trigger(ctx, who, meetingID)
		return err
	})
	calls := call.NewController(callDeps)

	api := httpapi.New(httpapi.Deps{
		Config:     cfg,
		Auth:       authProvider,
		Agents:     agentSvc,
		Meetings:   meetingSvc,
		Calls:      calls,
		Finalize:   fin,
		Recordings: recordings,
		Confirm:    confirm.NewRegistry(cfg.ConfirmTTL),
		Completer:  completer,
		Speech:     speech.speech,
		Metrics:    metrics,
		Log:        log,
	})

	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Calls:    calls,
		Finalize: fin,
		Metrics:  metrics,
		Info: ProviderInfo{
			Brain:  brainName(cfg),
			Speech: speech.provider,
			Detail: speech.detail,
		},
		Cleanup: cleanup,
	}, nil
}

// RunBackground drives the call janitor and the finalize workers until ctx
// is done.
func (b *BuildResult) RunBackground(ctx context.Context) error {
	b.Calls.Sessions().StartJanitor(ctx, janitorInterval(b.Config.CallInactivityTimeout))
	return b.Finalize.Run(ctx)
}

func janitorInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < time.Second {
		return time.Second
	}
	if interval > 30*time.Second {
		return 30 * time.Second
	}
	return interval
}

func brainName(cfg config.Config) string {
	p := strings.ToLower(strings.TrimSpace(cfg.BrainProvider))
	if p != "auto" && p != "" {
		return p
	}
	switch {
	case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
		return "openai"
	case strings.TrimSpace(cfg.BrainHTTPURL) != "":
		return "http"
	default:
		return "mock"
	}
}
