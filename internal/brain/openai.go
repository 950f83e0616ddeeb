package brain

import (
	"context"
	"strings"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/openai"
)

const DefaultModel = "gpt-4-turbo"

// OpenAICompleter answers turns through chat completions.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &OpenAICompleter{client: client, model: model}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, openai.ChatMessage{Role: "user", Content: req.Input})

	text, err := c.client.Chat(ctx, c.model, messages)
	if err != nil {
		return Response{}, apperr.External("brain.complete", "openai", openai.StatusCode(err), err)
	}
	return Response{Text: strings.TrimSpace(text)}, nil
}
