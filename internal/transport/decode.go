package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"threadsync/pkg/types"
)

// decodeEvent turns one inbound envelope into an Event for threadID.
func decodeEvent(env types.Envelope, threadID string) (Event, error) {
	switch env.Event {
	case types.EventNewMessage:
		var p types.NewMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
		}
		if p.Discussion == nil {
			return nil, fmt.Errorf("%w: %s: missing discussion", ErrMalformedEvent, env.Event)
		}
		if p.ThreadID != "" && p.ThreadID != threadID {
			return nil, fmt.Errorf("%w: %s", ErrForeignThread, p.ThreadID)
		}
		msg := *p.Discussion
		if msg.ID == "" {
			msg.ID = p.ID
		}
		if err := msg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
		}
		return MessageReceived{ThreadID: threadID, Message: msg}, nil

	case types.EventUserTyping:
		var entry types.PresenceEntry
		if err := json.Unmarshal(env.Data, &entry); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
		}
		if entry.ParticipantID == "" {
			return nil, fmt.Errorf("%w: %s: missing userId", ErrMalformedEvent, env.Event)
		}
		return PresenceChanged{Entry: entry}, nil

	case types.EventUserJoined:
		// Servers send either {"userId": "..."} or the bare id.
		var p types.UserJoinedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			var id string
			if err := json.Unmarshal(env.Data, &id); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
			}
			p.ParticipantID = id
		}
		return PeerJoined{ParticipantID: p.ParticipantID}, nil

	case types.EventError:
		var p types.ErrorPayload
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &p)
		}
		msg := strings.TrimSpace(p.Message)
		if msg == "" {
			msg = DefaultErrorMessage
		}
		return ErrorReported{Message: msg}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}
