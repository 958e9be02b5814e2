package blesim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cfabcher22/forcelink/internal/ble"
)

// Central is the scanning side of the simulated stack.
type Central struct {
	air  *Air
	addr string

	mu       sync.Mutex
	scanning bool
}

// advertisement adapts a peripheral snapshot to the port interface.
type advertisement struct {
	name     string
	services []string
	addr     string
}

func (a advertisement) LocalName() string      { return a.name }
func (a advertisement) ServiceUUIDs() []string { return a.services }
func (a advertisement) Addr() string           { return a.addr }
func (a advertisement) RSSI() int              { return -40 }
func (a advertisement) Connectable() bool      { return true }

// StartScan delivers one advertisement per advertising peripheral per sweep
// until StopScan. Duplicate reports across sweeps are expected, as on a real
// radio.
func (c *Central) StartScan(handler func(ble.Advertisement)) error {
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return fmt.Errorf("central %s: already scanning", c.addr)
	}
	c.scanning = true
	c.mu.Unlock()

	done := make(chan struct{})
	c.air.registerScanner(c, func() { close(done) })

	go func() {
		ticker := time.NewTicker(c.air.sweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for _, p := range c.air.advertisers() {
					id := p.currentIdentity()
					select {
					case <-done:
						return
					default:
					}
					handler(advertisement{
						name:     id.Name,
						services: id.ServiceUUIDs(),
						addr:     p.Addr(),
					})
				}
			}
		}
	}()
	return nil
}

// StopScan halts discovery. Safe when not scanning.
func (c *Central) StopScan() error {
	c.mu.Lock()
	c.scanning = false
	c.mu.Unlock()

	if stop, ok := c.air.unregisterScanner(c); ok {
		stop()
	}
	return nil
}

// Connect attaches to the peripheral at addr. Fails immediately when the
// address is unknown; the simulation has no radio-level timeout.
func (c *Central) Connect(ctx context.Context, addr string) (ble.Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, ok := c.air.lookup(addr)
	if !ok {
		return nil, fmt.Errorf("connect %s: no such peer", addr)
	}

	connID := uuid.NewString()
	p.attach(connID)
	return &peer{peripheral: p, connID: connID}, nil
}

// Close stops scanning.
func (c *Central) Close() error {
	return c.StopScan()
}

// peer is one live connection from a central to a simulated peripheral.
type peer struct {
	peripheral *Peripheral
	connID     string
}

func (p *peer) Addr() string    { return p.peripheral.Addr() }
func (p *peer) Connected() bool { return p.peripheral.connAlive(p.connID) }

func (p *peer) Disconnect() error {
	p.peripheral.detach(p.connID)
	return nil
}

func (p *peer) Characteristics(ctx context.Context, serviceUUID string) ([]ble.RemoteCharacteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.Connected() {
		return nil, ble.ErrNotConnected
	}

	uuids := p.peripheral.charsUnder(serviceUUID)
	if len(uuids) == 0 {
		return nil, fmt.Errorf("service %q: no characteristics", serviceUUID)
	}

	chars := make([]ble.RemoteCharacteristic, 0, len(uuids))
	for _, u := range uuids {
		chars = append(chars, &remoteChar{peer: p, uuid: u})
	}
	return chars, nil
}

// remoteChar is a resolved characteristic on a connected simulated peer.
type remoteChar struct {
	peer *peer
	uuid string
}

func (rc *remoteChar) UUID() string     { return rc.uuid }
func (rc *remoteChar) Notifiable() bool { return true }

func (rc *remoteChar) Subscribe(handler func([]byte)) error {
	return rc.peer.peripheral.subscribe(rc.peer.connID, rc.uuid, handler)
}

func (rc *remoteChar) Unsubscribe() error {
	rc.peer.peripheral.unsubscribe(rc.peer.connID, rc.uuid)
	return nil
}

func (rc *remoteChar) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !rc.peer.Connected() {
		return nil, ble.ErrNotConnected
	}
	return rc.peer.peripheral.readValue(rc.uuid)
}

func (rc *remoteChar) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rc.peer.Connected() {
		return ble.ErrNotConnected
	}
	return rc.peer.peripheral.write(rc.uuid, data)
}
