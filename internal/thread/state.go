package thread

import (
	"threadsync/internal/pubsub"
	"threadsync/internal/transport"
	"threadsync/pkg/types"
)

// Phase is the controller's lifecycle position for its current thread.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseActive
	// PhaseClosed is published while a thread is torn down; the controller settles
	// in PhaseIdle or PhaseLoading right after.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Change kinds published to subscribers.
const (
	ChangeMessages   pubsub.EventType = "messages"
	ChangePresence   pubsub.EventType = "presence"
	ChangeConnection pubsub.EventType = "connection"
	ChangeError      pubsub.EventType = "error"
	ChangePhase      pubsub.EventType = "phase"
)

// Change identifies which thread a notification is about. Subscribers read the new
// values back through the controller's accessors.
type Change struct {
	ThreadID string
	Phase    Phase
}

// Session is the live connection the controller drives. transport.Session implements it.
type Session interface {
	Open(threadID string, role types.Role) error
	Close() error
	Send(text string)
	NotifyTypingStart()
	NotifyTypingStop()
	Events() <-chan transport.Event
	ParticipantID() string
}

// SessionFactory creates a fresh, unopened session for each thread.
type SessionFactory func() Session

var _ Session = (*transport.Session)(nil)
