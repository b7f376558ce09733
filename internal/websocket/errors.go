package websocket

import (
	"errors"
	"fmt"

	"threadsync/pkg/interfaces"
)

// Connection-related errors
var (
	ErrConnectionClosed = fmt.Errorf("websocket: %w", interfaces.ErrConnClosed)
	ErrWriteTimeout     = errors.New("websocket: write timeout")
	ErrInvalidJSON      = fmt.Errorf("websocket: invalid JSON data: %w", interfaces.ErrMalformedFrame)
)

// Dialer-related errors
var (
	ErrDialFailed      = errors.New("websocket: dial failed")
	ErrInvalidEndpoint = errors.New("websocket: invalid endpoint URL")
)
