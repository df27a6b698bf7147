package session

import (
	"errors"
	"fmt"
)

// Intent rejections. These are returned synchronously and never change state.
var (
	ErrInvalidSelection  = errors.New("wrong device type")
	ErrUnknownDevice     = errors.New("device not discovered")
	ErrBusy              = errors.New("operation in progress")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrClosed            = errors.New("session closed")
)

// TransportError reports a failed transport operation. The session has
// already returned to its last stable state when this is delivered.
type TransportError struct {
	Op     string
	Device string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Device, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func invalidTransition(intent string, from State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, intent, from)
}
