package api

import (
	"errors"
	"fmt"
)

// Client configuration errors
var (
	ErrInvalidBaseURL = errors.New("invalid API base URL")
	ErrDecodeResponse = errors.New("decode feedback response")
)

// StatusError is returned for any non-2xx response other than 404.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}
