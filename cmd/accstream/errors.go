package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/session"
)

// Command-level errors
var (
	// ErrDeviceNotFound indicates the requested sensor did not advertise during the scan window.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnectionLost indicates the link dropped while the command was running.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message for the terminal.
func FormatUserError(err error) string {
	var terr *session.TransportError
	var nf *device.NotFoundError

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable it and try again"
	case errors.Is(err, session.ErrInvalidSelection):
		return fmt.Sprintf("%v (expected a sensor whose name contains the vendor marker)", err)
	case errors.Is(err, ErrConnectionLost):
		return err.Error()
	case errors.As(err, &nf):
		return fmt.Sprintf("the sensor does not expose the expected GATT profile: %v", nf)
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out: %v", err)
	case errors.As(err, &terr):
		return fmt.Sprintf("%s failed: %v", terr.Op, terr.Err)
	default:
		return err.Error()
	}
}

// classifyAsyncError marks a link drop reported by the session as ErrConnectionLost.
func classifyAsyncError(err error) error {
	if errors.Is(err, device.ErrNotConnected) {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return err
}
