package ws

import (
	"encoding/json"
)

// Inbound event names.
const (
	EventJoinChat    = "joinChat"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
)

// Outbound event names.
const (
	EventMessageHistory  = "messageHistory"
	EventMessageReceived = "messageReceived"
	EventError           = "error"
)

// Event is the wire envelope for both directions: a name plus a
// JSON-serializable payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinChatPayload struct {
	ToUserID string `json:"toUserId"`
}

type sendMessagePayload struct {
	ToUserID string `json:"toUserId"`
	Text     string `json:"text"`
}

type typingPayload struct {
	ToUserID string `json:"toUserId"`
}

type presencePayload struct {
	UserID string `json:"userId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func marshalEvent(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: name, Data: raw})
}
