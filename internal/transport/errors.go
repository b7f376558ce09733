package transport

import "errors"

// Session lifecycle errors
var (
	ErrAlreadyOpen   = errors.New("session already open")
	ErrSessionClosed = errors.New("session closed")
)

// Inbound decoding errors
var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event payload")
	ErrForeignThread  = errors.New("event for another thread")
)

// User-facing messages, matching what the discussion UI has always shown.
const (
	DialFailureMessage  = "Connection failed. Please check your internet connection."
	DefaultErrorMessage = "An error occurred"
)
