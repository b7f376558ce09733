package types

import (
	"fmt"
	"time"
)

// Role identifies the participant perspective a discussion message was written from.
type Role string

// ARCHITECTURAL DISCOVERY: Role constants match the values the feedback API stores
// in discussions[].role, so history and live messages compare equal byte for byte
const (
	RoleDesigner       Role = "designer"
	RoleDeveloper      Role = "developer"
	RoleProductManager Role = "product_manager"
	RoleReviewer       Role = "reviewer"
)

// Message is one entry of a feedback discussion.
// FUNCTIONAL DISCOVERY: CreatedAt stays the raw wire string. Identity is computed from
// the exact bytes the server sent and only ordering needs the parsed time.
type Message struct {
	ID        string `json:"id,omitempty"`
	Role      Role   `json:"role"`
	Text      string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// Time parses CreatedAt. The second result is false when the timestamp is unparseable.
func (m Message) Time() (time.Time, bool) {
	if m.CreatedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IdentityKey derives the deduplication key for a message.
// Text is quoted so a "|" inside the text cannot shift the field boundaries.
// Two genuinely distinct messages with the same role, text and timestamp collapse to one entry.
func IdentityKey(m Message) string {
	return fmt.Sprintf("%s|%q|%s", m.Role, m.Text, m.CreatedAt)
}

// PresenceEntry is one participant's typing indicator.
type PresenceEntry struct {
	ParticipantID string `json:"userId"`
	Role          Role   `json:"role"`
	IsTyping      bool   `json:"isTyping"`
}

// Status enumerates the lifecycle of a live connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusErrored      Status = "errored"
)

// ConnectionState is the observable state of a transport session.
// Message is only set for StatusErrored.
type ConnectionState struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Disconnected is the zero-activity state every session starts in.
func Disconnected() ConnectionState {
	return ConnectionState{Status: StatusDisconnected}
}

// Errored builds an errored state carrying msg.
func Errored(msg string) ConnectionState {
	return ConnectionState{Status: StatusErrored, Message: msg}
}

// Connected reports whether outbound traffic is currently allowed.
func (s ConnectionState) Connected() bool {
	return s.Status == StatusConnected
}

func (s ConnectionState) String() string {
	if s.Status == StatusErrored && s.Message != "" {
		return fmt.Sprintf("%s(%s)", s.Status, s.Message)
	}
	if s.Status == "" {
		return string(StatusDisconnected)
	}
	return string(s.Status)
}

// Coordinates locate a feedback item on its screenshot.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Feedback is the document the REST collaborator returns for a thread.
// Discussions is the persisted history snapshot of the thread.
type Feedback struct {
	ID             string      `json:"_id"`
	Severity       string      `json:"severity"`
	Category       string      `json:"category"`
	Issue          string      `json:"issue"`
	Recommendation string      `json:"recommendation"`
	Coordinates    Coordinates `json:"coordinates"`
	RoleTags       []Role      `json:"roleTags"`
	Resolved       bool        `json:"resolved"`
	Discussions    []Message   `json:"discussions"`
}
