package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockCompleter provides deterministic local replies when no brain is configured.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (c *MockCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	return Response{Text: buildMockReply(req)}, nil
}

func buildMockReply(req Request) string {
	in := strings.TrimSpace(req.Input)
	if in == "" {
		return "I am listening."
	}
	if req.Task == TaskSummary {
		lines := strings.Count(in, "\n") + 1
		return fmt.Sprintf("## Summary\nThe call covered %d exchanges.", lines)
	}
	return fmt.Sprintf("I heard you: %s", in)
}
