package interfaces

import (
	"context"

	"threadsync/pkg/types"
)

// Conn is one live, thread-scoped link to the discussion server.
// ARCHITECTURAL DISCOVERY: the session only sees envelopes, so the websocket and NATS
// adapters are interchangeable and tests can substitute an in-memory pipe
type Conn interface {
	// WriteEnvelope queues a frame for delivery. Safe for concurrent use.
	WriteEnvelope(env types.Envelope) error

	// ReadEnvelope blocks until the next inbound frame, ctx is done, or the link fails.
	// An error wrapping ErrMalformedFrame skips one frame; any other error ends the connection.
	ReadEnvelope(ctx context.Context) (types.Envelope, error)

	// Close tears the link down. Idempotent.
	Close() error
}

// DialOptions identify the local participant to the server.
type DialOptions struct {
	ThreadID      string
	ParticipantID string
	Role          types.Role
}

// Dialer establishes Conns. A failed Dial leaves nothing to clean up.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Conn, error)
}
