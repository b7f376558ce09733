package types

import "encoding/json"

// Wire event names exchanged with the discussion server.
const (
	EventJoin        = "join-feedback"
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"

	EventNewMessage = "new-message"
	EventUserTyping = "user-typing"
	EventUserJoined = "user-joined"
	EventError      = "error"
)

// Envelope is the frame every transport carries in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// SendMessagePayload is the outbound send-message intent.
type SendMessagePayload struct {
	ThreadID string `json:"feedbackId"`
	Role     Role   `json:"role"`
	Text     string `json:"message"`
}

// TypingPayload is the outbound typing-start / typing-stop intent.
type TypingPayload struct {
	ThreadID string `json:"feedbackId"`
	Role     Role   `json:"role"`
}

// NewMessagePayload is the inbound new-message event.
// Discussion is a pointer so a frame without it can be told apart from an empty message.
type NewMessagePayload struct {
	ID         string   `json:"id"`
	ThreadID   string   `json:"feedbackId"`
	Discussion *Message `json:"discussion"`
}

// UserJoinedPayload is the inbound user-joined event.
type UserJoinedPayload struct {
	ParticipantID string `json:"userId"`
}

// ErrorPayload is the inbound error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
