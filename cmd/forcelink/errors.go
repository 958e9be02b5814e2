package main

import (
	"context"
	"errors"

	"github.com/Cfabcher22/forcelink/internal/ble"
)

// FormatUserError rewrites low-level errors into actionable messages for the
// terminal. Anything unrecognized passes through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, ble.ErrStackInit):
		return "BLE stack failed to initialize - check that the adapter is present and you have permission to use it (on Linux: sudo setcap or run as root)"
	case errors.Is(err, ble.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	default:
		return err.Error()
	}
}
