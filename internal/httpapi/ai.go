package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/voice"
)

const maxTranscribeBytes = 25 << 20

type respondRequest struct {
	Text string `json:"text"`
}

type speechRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

type textResponse struct {
	Text string `json:"text"`
}

func (s *Server) externalCtx(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.ExternalCallTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.ExternalCallTimeout)
}

func (s *Server) handleAIRespond(w http.ResponseWriter, r *http.Request) {
	const op = "ai.respond"
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.respondErr(w, r, apperr.Validation(op, "Missing text input"))
		return
	}
	ctx, cancel := s.externalCtx(r)
	defer cancel()
	resp, err := s.completer.Complete(ctx, brain.Request{
		Task:   brain.TaskReply,
		System: s.cfg.AISystemPrompt,
		Input:  text,
	})
	if err != nil {
		s.metrics.ProviderError("brain", string(apperr.KindOf(err)))
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, textResponse{Text: resp.Text})
}

func (s *Server) handleAISpeech(w http.ResponseWriter, r *http.Request) {
	const op = "ai.speech"
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		s.respondErr(w, r, apperr.Validation(op, "Missing input"))
		return
	}
	ctx, cancel := s.externalCtx(r)
	defer cancel()
	clip, err := s.speech.Synthesize(ctx, voice.SpeechRequest{
		Text:   req.Input,
		Model:  req.Model,
		Voice:  req.Voice,
		Format: req.ResponseFormat,
	})
	if err != nil {
		s.metrics.ProviderError("tts", string(apperr.KindOf(err)))
		s.respondErr(w, r, err)
		return
	}
	ct := clip.ContentType
	if ct == "" {
		ct = voice.ContentTypeFor(clip.Format)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

// handleAITranscribe takes the raw audio as the request body.
func (s *Server) handleAITranscribe(w http.ResponseWriter, r *http.Request) {
	const op = "ai.transcribe"
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTranscribeBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "invalid_request", err.Error())
		return
	}
	if len(audio) == 0 {
		s.respondErr(w, r, apperr.Validation(op, "Missing audio"))
		return
	}
	ctx, cancel := s.externalCtx(r)
	defer cancel()
	text, err := s.speech.Transcribe(ctx, uploadName(r), audio)
	if err != nil {
		s.metrics.ProviderError("stt", string(apperr.KindOf(err)))
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, textResponse{Text: text})
}

// uploadName picks a filename whose extension tells the transcriber the
// container format.
func uploadName(r *http.Request) string {
	if name := strings.TrimSpace(r.URL.Query().Get("filename")); name != "" {
		return name
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "wav"):
		return "audio.wav"
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "audio.mp3"
	case strings.Contains(ct, "ogg"):
		return "audio.ogg"
	case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
		return "audio.m4a"
	default:
		return "audio.webm"
	}
}
