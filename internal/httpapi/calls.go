package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/call"
	"github.com/antoniostano/huddle/internal/protocol"
)

type createCallRequest struct {
	MeetingID string `json:"meetingId"`
}

type submitTurnRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess, err := s.calls.Create(r.Context(), identity(r), req.MeetingID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	sess, err := s.calls.Get(identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleJoinCall(w http.ResponseWriter, r *http.Request) {
	sess, err := s.calls.Join(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLeaveCall(w http.ResponseWriter, r *http.Request) {
	res, err := s.calls.Leave(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitTurnRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.calls.Submit(r.Context(), identity(r), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Submitted {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}

func (s *Server) handleCallAudio(w http.ResponseWriter, r *http.Request) {
	clip, err := s.calls.Clip(identity(r), chi.URLParam(r, "id"), chi.URLParam(r, "handle"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	ct := clip.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

// handleCallWS streams call events and accepts turns, joins, leaves and
// playback acks. Turns run off the read loop because playback waits for an
// ack that arrives on this same socket.
func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	callID := chi.URLParam(r, "id")
	sess, err := s.calls.Get(who, callID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	events, unsubscribe, err := s.calls.Subscribe(who, callID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.CallEvent("ws_connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	direct := make(chan any, 16)
	direct <- protocol.CallPhase{Type: protocol.TypeCallPhase, CallID: sess.ID, MeetingID: sess.MeetingID, Phase: string(sess.Phase)}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case m, ok := <-events:
				if !ok {
					cancel()
					return
				}
				msg = m
			case m := <-direct:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			s.metrics.WSMessage("outbound", string(protocol.TypeOf(msg)))
		}
	}()

	sendErr := func(code, source, detail string) {
		select {
		case direct <- protocol.ErrorEvent{Type: protocol.TypeErrorEvent, CallID: callID, Code: code, Source: source, Detail: detail}:
		default:
		}
	}

	var turns sync.WaitGroup
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			sendErr("invalid_client_message", "gateway", err.Error())
			continue
		}
		switch m := parsed.(type) {
		case protocol.ClientTurn:
			s.metrics.WSMessage("inbound", string(m.Type))
			if m.CallID != callID {
				sendErr(string(apperr.KindValidation), "gateway", "call_id does not match this socket")
				continue
			}
			turns.Add(1)
			go func(text string) {
				defer turns.Done()
				// Failures are already published as error events.
				_, _ = s.calls.Submit(call.WithPlaybackAck(ctx), who, callID, text)
			}(m.Text)
		case protocol.ClientControl:
			s.metrics.WSMessage("inbound", string(m.Type))
			if m.CallID != callID {
				sendErr(string(apperr.KindValidation), "gateway", "call_id does not match this socket")
				continue
			}
			if err := s.control(ctx, who, m); err != nil {
				sendErr(string(apperr.KindOf(err)), "gateway", err.Error())
			}
		}
	}

	cancel()
	turns.Wait()
	<-writerDone
	s.metrics.CallEvent("ws_disconnected")
}

func (s *Server) control(ctx context.Context, who auth.Identity, m protocol.ClientControl) error {
	switch m.Action {
	case protocol.ActionJoin:
		_, err := s.calls.Join(ctx, who, m.CallID)
		return err
	case protocol.ActionLeave:
		_, err := s.calls.Leave(ctx, who, m.CallID)
		return err
	case protocol.ActionPlaybackEnded:
		return s.calls.Ack(who, m.CallID, m.HandleID, false, "")
	case protocol.ActionPlaybackFailed:
		return s.calls.Ack(who, m.CallID, m.HandleID, true, m.Detail)
	default:
		return apperr.Validation("call.control", "unknown action "+m.Action)
	}
}
