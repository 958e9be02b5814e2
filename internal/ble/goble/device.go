// Package goble adapts the go-ble/ble stack to the port interfaces in
// internal/ble. This is the hardware boundary: thin glue, no rig logic.
// The simulated stack in internal/ble/blesim is the testable twin.
package goble

import (
	"fmt"
	"sync"

	blelib "github.com/go-ble/ble"

	"github.com/Cfabcher22/forcelink/internal/ble"
)

var (
	deviceOnce sync.Once
	deviceErr  error
)

// initDevice brings up the platform HCI device exactly once per process and
// installs it as the stack default. Failure here is the rig's one terminal
// error: without a radio the node cannot operate.
func initDevice() error {
	deviceOnce.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			deviceErr = fmt.Errorf("%w: %v", ble.ErrStackInit, err)
			return
		}
		blelib.SetDefaultDevice(dev)
	})
	return deviceErr
}

// parseUUID converts a normalized identifier into the stack's UUID type.
func parseUUID(uuid string) (blelib.UUID, error) {
	u, err := blelib.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q: %w", uuid, err)
	}
	return u, nil
}
