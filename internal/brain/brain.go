// Package brain produces the assistant's reply to a user turn.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/huddle/internal/openai"
)

// Task names what a completion is for.
type Task string

const (
	TaskReply   Task = "reply"
	TaskSummary Task = "summary"
)

// Request is one completion. Input is sent as the sole user message.
type Request struct {
	Task      Task   `json:"task,omitempty"`
	MeetingID string `json:"meeting_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	System    string `json:"system,omitempty"`
	Input     string `json:"input_text"`
}

type Response struct {
	Text string `json:"text"`
}

// Completer returns the assistant reply for a request. Implementations wrap
// upstream failures in an apperr external-service error.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config controls completer construction.
type Config struct {
	Provider     string
	HTTPURL      string
	OpenAIAPIKey string
	OpenAIOpts   []openai.Option
	Model        string
}

// NewCompleter builds the completer named by cfg.Provider. "auto" prefers
// OpenAI when a key is configured, then an HTTP brain, then the mock.
func NewCompleter(cfg Config) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return newOpenAI(cfg)
		}
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPCompleter(cfg.HTTPURL), nil
		}
		return NewMockCompleter(), nil
	case "openai":
		return newOpenAI(cfg)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http provider")
		}
		return NewHTTPCompleter(cfg.HTTPURL), nil
	case "mock":
		return NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain provider %q", cfg.Provider)
	}
}

func newOpenAI(cfg Config) (Completer, error) {
	client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIOpts...)
	if err != nil {
		return nil, err
	}
	return NewOpenAICompleter(client, cfg.Model), nil
}
