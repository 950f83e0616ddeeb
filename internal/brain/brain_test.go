package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/openai"
)

func TestHTTPCompleterJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Input)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hi back "}`))
	}))
	defer srv.Close()

	out, err := NewHTTPCompleter(srv.URL).Complete(context.Background(), Request{Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi back", out.Text)
}

func TestHTTPCompleterSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	out, err := NewHTTPCompleter(srv.URL).Complete(context.Background(), Request{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Text)
}

func TestHTTPCompleterNon2xxIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPCompleter(srv.URL).Complete(context.Background(), Request{Input: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadGateway, ae.Status)
}

func TestOpenAICompleterSendsSystemAndUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string               `json:"model"`
			Messages []openai.ChatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "What's up?", body.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Not much."}}]}`))
	}))
	defer srv.Close()

	client, err := openai.NewClient("sk", openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	out, err := NewOpenAICompleter(client, "").Complete(context.Background(), Request{System: "be brief", Input: "What's up?"})
	require.NoError(t, err)
	assert.Equal(t, "Not much.", out.Text)
}

func TestOpenAICompleterMapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := openai.NewClient("sk", openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = NewOpenAICompleter(client, "gpt-test").Complete(context.Background(), Request{Input: "x"})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindExternalService, ae.Kind)
	assert.Equal(t, "openai", ae.Service)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
}

func TestNewCompleterSelection(t *testing.T) {
	c, err := NewCompleter(Config{Provider: "auto"})
	require.NoError(t, err)
	assert.IsType(t, &MockCompleter{}, c)

	c, err = NewCompleter(Config{Provider: "auto", HTTPURL: "http://brain.local"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPCompleter{}, c)

	c, err = NewCompleter(Config{Provider: "auto", OpenAIAPIKey: "sk", HTTPURL: "http://brain.local"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, c)

	_, err = NewCompleter(Config{Provider: "http"})
	assert.Error(t, err)
	_, err = NewCompleter(Config{Provider: "openai"})
	assert.Error(t, err)
	_, err = NewCompleter(Config{Provider: "gateway"})
	assert.Error(t, err)
}

func TestMockCompleter(t *testing.T) {
	out, err := NewMockCompleter().Complete(context.Background(), Request{Input: " hi "})
	require.NoError(t, err)
	assert.Equal(t, "I heard you: hi", out.Text)

	out, err = NewMockCompleter().Complete(context.Background(), Request{Task: TaskSummary, Input: "User: a\nAI: b"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "## Summary")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMockCompleter().Complete(ctx, Request{Input: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
