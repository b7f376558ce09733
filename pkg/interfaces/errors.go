package interfaces

import "errors"

// Common collaborator errors used across components
var (
	ErrNotFound   = errors.New("thread not found")
	ErrConnClosed = errors.New("connection closed")

	// ErrMalformedFrame marks an inbound frame that could not be decoded.
	// The connection stays usable; callers drop the frame and keep reading.
	ErrMalformedFrame = errors.New("malformed frame")
)
