package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientTurn     MessageType = "client_turn"
	TypeClientControl  MessageType = "client_control"
	TypeCallPhase      MessageType = "call_phase"
	TypeAIStatus       MessageType = "ai_status"
	TypeAssistantText  MessageType = "assistant_text"
	TypeAssistantAudio MessageType = "assistant_audio"
	TypeCallFinalized  MessageType = "call_finalized"
	TypeErrorEvent     MessageType = "error_event"
)

// Client control actions.
const (
	ActionJoin           = "join"
	ActionLeave          = "leave"
	ActionPlaybackEnded  = "playback_ended"
	ActionPlaybackFailed = "playback_failed"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientTurn submits a user utterance to the AI.
type ClientTurn struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Text   string      `json:"text"`
}

type ClientControl struct {
	Type     MessageType `json:"type"`
	CallID   string      `json:"call_id"`
	Action   string      `json:"action"`
	HandleID string      `json:"handle_id,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

type CallPhase struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	MeetingID string      `json:"meeting_id,omitempty"`
	Phase     string      `json:"phase"`
}

type AIStatus struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	TurnID string      `json:"turn_id,omitempty"`
	Status string      `json:"status"`
}

type AssistantText struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	TurnID string      `json:"turn_id"`
	Text   string      `json:"text"`
}

// AssistantAudio tells the client to fetch and play a clip, then ack it
// with a playback_ended or playback_failed control.
type AssistantAudio struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	TurnID      string      `json:"turn_id"`
	HandleID    string      `json:"handle_id"`
	URL         string      `json:"url"`
	Format      string      `json:"format"`
	ContentType string      `json:"content_type"`
}

type CallFinalized struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	MeetingID string      `json:"meeting_id,omitempty"`
	Outcome   string      `json:"outcome"`
	ReportURL string      `json:"report_url,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Code   string      `json:"code"`
	Source string      `json:"source"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientTurn:
		var msg ClientTurn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" {
			return nil, errors.New("invalid client_turn")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionJoin, ActionLeave:
		case ActionPlaybackEnded, ActionPlaybackFailed:
			if strings.TrimSpace(msg.HandleID) == "" {
				return nil, fmt.Errorf("invalid client_control: %s requires handle_id", msg.Action)
			}
		default:
			return nil, fmt.Errorf("invalid client_control: unknown action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf returns the type tag of a server message, for metrics.
func TypeOf(msg any) MessageType {
	switch m := msg.(type) {
	case CallPhase:
		return m.Type
	case AIStatus:
		return m.Type
	case AssistantText:
		return m.Type
	case AssistantAudio:
		return m.Type
	case CallFinalized:
		return m.Type
	case ErrorEvent:
		return m.Type
	default:
		return "unknown"
	}
}
