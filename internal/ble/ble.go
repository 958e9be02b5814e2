// Package ble defines the boundary to the BLE stack. The rig's core logic
// (link state machines, forwarding pipeline) talks only to these interfaces;
// the production adapter sits in ble/goble and an in-memory simulation in
// ble/blesim. The stack itself — radio, link layer, GATT transport — is
// assumed correct and is not re-verified here.
package ble

import (
	"context"

	"github.com/Cfabcher22/forcelink/internal/bleid"
)

// Advertisement is one observed advertising report.
type Advertisement interface {
	// LocalName returns the advertised device name, "" if absent.
	LocalName() string

	// ServiceUUIDs returns the advertised service identifiers, normalized.
	ServiceUUIDs() []string

	Addr() string
	RSSI() int
	Connectable() bool
}

// Central is the scanning and connecting side of a stack. One Central is
// owned by at most one link state machine.
type Central interface {
	// StartScan begins discovery and delivers every advertisement to the
	// handler. The handler runs on a stack goroutine and must not block.
	StartScan(handler func(Advertisement)) error

	// StopScan halts discovery. Safe to call when not scanning.
	StopScan() error

	// Connect dials the advertised peer. The attempt is bounded by ctx.
	Connect(ctx context.Context, addr string) (Peer, error)

	Close() error
}

// Peer is a handle to a connected remote device.
type Peer interface {
	Addr() string

	// Connected reports whether the link is still up. Link machines poll
	// this every tick while READY.
	Connected() bool

	// Characteristics enumerates the remote characteristics under one
	// service, in attribute-table order.
	Characteristics(ctx context.Context, serviceUUID string) ([]RemoteCharacteristic, error)

	Disconnect() error
}

// RemoteCharacteristic is one resolved characteristic on a connected peer.
type RemoteCharacteristic interface {
	UUID() string

	// Notifiable reports whether the characteristic supports subscription.
	Notifiable() bool

	// Subscribe registers for notifications. The handler runs on a stack
	// goroutine and must not block.
	Subscribe(handler func(value []byte)) error

	Unsubscribe() error

	// Read fetches the current value.
	Read(ctx context.Context) ([]byte, error)

	// Write sends data to the characteristic without response (the motor
	// command channel is write-only).
	Write(ctx context.Context, data []byte) error
}

// Peripheral is the advertising and notifying side of a stack.
type Peripheral interface {
	// StartAdvertising exposes the identity's services and begins
	// advertising. Advertising is continuous until stopped; calling it again
	// while active is a no-op.
	StartAdvertising(identity bleid.Identity) error

	StopAdvertising() error

	// SetValue updates the latest value of a local characteristic without
	// notifying. The stack serves it to read requests.
	SetValue(charUUID string, value []byte) error

	// Notify updates the value and pushes it to the current subscriber, if
	// any. Absence of a subscriber is not an error.
	Notify(charUUID string, value []byte) error

	// Subscribed reports whether any remote central holds a subscription to
	// the characteristic.
	Subscribed(charUUID string) bool

	// HasCentral reports whether a remote central is currently connected,
	// subscribed or not.
	HasCentral() bool

	// HandleWrite registers a handler for writes to a local characteristic
	// (the motor command channel). The handler must not block.
	HandleWrite(charUUID string, handler func(value []byte)) error

	Close() error
}
