package goble

import (
	blelib "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (blelib.Device, error) {
	return darwin.NewDevice()
}
