package server

import "errors"

// Monitor errors
var (
	ErrServerClosed      = errors.New("server is closed")
	ErrMaxClientsReached = errors.New("maximum clients reached")
	ErrInvalidConfig     = errors.New("invalid server configuration")
	ErrListenerFailed    = errors.New("failed to create listener")
)
