// Package lifecycle implements the configure -> start -> stop state machine
// every service honours.
package lifecycle

import (
	"errors"
	"fmt"
)

type State uint8

const (
	Unconfigured State = iota
	Configured
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var (
	ErrAlreadyConfigured = errors.New("lifecycle: service already configured")
	ErrInvalidTransition = errors.New("lifecycle: invalid state transition")
	ErrConfigMismatch    = errors.New("lifecycle: configuration type mismatch")
	ErrMissingConfig     = errors.New("lifecycle: missing configuration")
)

// Settings down-casts a configuration value to the type a service expects.
// A mismatch is a wiring bug, so it is reported instead of defaulted.
func Settings[T any](config any) (T, error) {
	var zero T
	if config == nil {
		return zero, fmt.Errorf("%w: want %T", ErrMissingConfig, zero)
	}
	typed, ok := config.(T)
	if !ok {
		return zero, fmt.Errorf("%w: want %T, got %T", ErrConfigMismatch, zero, config)
	}
	return typed, nil
}
