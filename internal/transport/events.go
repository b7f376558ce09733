package transport

import "threadsync/pkg/types"

// Event is an inbound notification from a Session. The concrete types below are the
// only implementations; consumers switch over them exhaustively.
type Event interface {
	isEvent()
}

// MessageReceived carries one live discussion message for the session's thread.
type MessageReceived struct {
	ThreadID string
	Message  types.Message
}

// PresenceChanged carries a remote participant's typing indicator.
type PresenceChanged struct {
	Entry types.PresenceEntry
}

// PeerJoined announces another participant joining the thread.
type PeerJoined struct {
	ParticipantID string
}

// ErrorReported carries an error the server sent over the live stream.
type ErrorReported struct {
	Message string
}

// ConnectionChanged reports a connection state transition.
type ConnectionChanged struct {
	State types.ConnectionState
}

func (MessageReceived) isEvent()   {}
func (PresenceChanged) isEvent()   {}
func (PeerJoined) isEvent()        {}
func (ErrorReported) isEvent()     {}
func (ConnectionChanged) isEvent() {}
