package main

import (
	"errors"

	"github.com/srg/mguard/internal/gatt"
)

// FormatUserError converts internal errors into actionable operator-facing
// messages.
func FormatUserError(err error) string {
	var permErr *gatt.PermissionError
	switch {
	case errors.Is(err, gatt.ErrBluetoothOff):
		return "Bluetooth is turned off - please enable Bluetooth and retry"
	case errors.As(err, &permErr):
		return "Bluetooth access was denied - grant the permission in system settings and retry"
	case gatt.IsConnectionState(err, gatt.NotConnected):
		return "device is not connected: " + err.Error()
	default:
		return err.Error()
	}
}
