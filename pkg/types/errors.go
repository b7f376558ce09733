package types

import "errors"

// Validation errors shared by every component that accepts messages or thread ids
var (
	ErrInvalidThreadID  = errors.New("thread ID must be 1-200 characters and not blank")
	ErrMissingRole      = errors.New("message role is required")
	ErrMissingCreatedAt = errors.New("message createdAt is required")
)
