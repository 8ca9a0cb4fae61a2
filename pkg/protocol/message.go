package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a runtime message.
type MessageType string

const (
	// Dashboard → session
	TypeStartDetection MessageType = "start-detection"
	TypeStopDetection  MessageType = "stop-detection"

	// Session → executor
	TypeEmotionTrigger     MessageType = "emotion-trigger"
	TypeOpenBrainrotWindow MessageType = "open-brainrot-window"
)

// Message is a runtime message. Payload carries the typed body; URL is only
// set on open-brainrot-window.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	URL     string          `json:"url,omitempty"`
}

// Ack acknowledges a command.
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StartPayload configures a detection session. Zero fields fall back to the
// session defaults.
type StartPayload struct {
	Emotion    string  `json:"emotion,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	Hold       float64 `json:"hold,omitempty"` // seconds
	ActionType string  `json:"actionType,omitempty"`
	TabID      string  `json:"tabId,omitempty"`
}

// Action describes the effect the executor should perform.
type Action struct {
	Message  string `json:"message,omitempty"`
	CloseTab bool   `json:"closeTab,omitempty"`
	OpenURL  string `json:"openUrl,omitempty"`
}

// TriggerPayload is the body of an emotion-trigger message.
type TriggerPayload struct {
	Emotion string `json:"emotion"`
	TabID   string `json:"tabId,omitempty"`
	Action  Action `json:"action"`
}

// NewMessage creates a message with a JSON payload.
func NewMessage(t MessageType, payload any) (Message, error) {
	m := Message{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		m.Payload = raw
	}
	return m, nil
}

// NewStartMessage creates a start-detection command.
func NewStartMessage(p StartPayload) (Message, error) {
	return NewMessage(TypeStartDetection, p)
}

// NewStopMessage creates a stop-detection command.
func NewStopMessage() Message {
	return Message{Type: TypeStopDetection}
}

// NewTriggerMessage creates an emotion-trigger message.
func NewTriggerMessage(emotion, tabID string, action Action) (Message, error) {
	return NewMessage(TypeEmotionTrigger, TriggerPayload{
		Emotion: emotion,
		TabID:   tabID,
		Action:  action,
	})
}

// NewOpenWindowMessage creates an open-brainrot-window message.
func NewOpenWindowMessage(url string) Message {
	return Message{Type: TypeOpenBrainrotWindow, URL: url}
}

// ParseMessage parses a JSON runtime message.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to parse message: %w", err)
	}
	return m, nil
}

// StartPayload extracts the body of a start-detection message. A missing
// payload yields the zero value.
func (m Message) StartPayload() (StartPayload, error) {
	var p StartPayload
	if m.Payload == nil {
		return p, nil
	}
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}

// TriggerPayload extracts the body of an emotion-trigger message.
func (m Message) TriggerPayload() (TriggerPayload, error) {
	var p TriggerPayload
	if m.Payload == nil {
		return p, fmt.Errorf("%s: missing payload", m.Type)
	}
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}
