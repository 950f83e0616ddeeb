package voice

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

func TestOpenAISpeechAppliesDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.SpeechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openai.SpeechRequest{Input: "hi", Model: "tts-1", Voice: "nova", ResponseFormat: "mp3"}, req)
		_, _ = w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	client, err := openai.NewClient("sk", openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	out, err := NewOpenAISpeech(client, OpenAIConfig{}).Synthesize(context.Background(), SpeechRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "mp3", out.Format)
	assert.Equal(t, []byte("ID3"), out.Data)
	assert.NotEmpty(t, out.ContentType)
}

func TestOpenAISpeechOverridesAndPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.SpeechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alloy", req.Voice)
		assert.Equal(t, "pcm", req.ResponseFormat)
		_, _ = w.Write([]byte{0, 0, 1, 0})
	}))
	defer srv.Close()

	client, err := openai.NewClient("sk", openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	out, err := NewOpenAISpeech(client, OpenAIConfig{}).Synthesize(context.Background(), SpeechRequest{Text: "hi", Voice: "alloy", Format: "pcm"})
	require.NoError(t, err)
	assert.Equal(t, PCMSampleRate, out.SampleRate)
}

func TestOpenAISpeechFailureIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := openai.NewClient("sk", openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = NewOpenAISpeech(client, OpenAIConfig{}).Synthesize(context.Background(), SpeechRequest{Text: "hi"})
	assert.True(t, apperr.IsExternal(err))

	_, err = NewOpenAISpeech(client, OpenAIConfig{}).Transcribe(context.Background(), "", []byte("x"))
	assert.True(t, apperr.IsExternal(err))
}

func TestMockSpeech(t *testing.T) {
	out, err := NewMockSpeech().Synthesize(context.Background(), SpeechRequest{Text: "one two"})
	require.NoError(t, err)
	assert.Equal(t, "pcm", out.Format)
	assert.Len(t, out.Data, 2*2*PCMSampleRate*15/100)

	text, err := NewMockSpeech().Transcribe(context.Background(), "a.webm", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "simulated voice input", text)

	text, err = NewMockSpeech().Transcribe(context.Background(), "a.webm", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("mp3"))
	assert.Equal(t, "audio/L16", ContentTypeFor("PCM"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("midi"))
}
