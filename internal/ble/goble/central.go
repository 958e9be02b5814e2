package goble

import (
	"context"
	"fmt"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/bleid"
)

// Central implements ble.Central over the go-ble stack.
type Central struct {
	logger *logrus.Logger

	mu         sync.Mutex
	scanCancel context.CancelFunc
}

// NewCentral brings up the HCI device and returns the scanning side.
func NewCentral(logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	if err := initDevice(); err != nil {
		return nil, err
	}
	return &Central{logger: logger}, nil
}

// advertisement adapts the stack's advertisement to the port interface.
type advertisement struct {
	adv blelib.Advertisement
}

func (a advertisement) LocalName() string { return a.adv.LocalName() }

func (a advertisement) ServiceUUIDs() []string {
	svcs := a.adv.Services()
	uuids := make([]string, 0, len(svcs))
	for _, s := range svcs {
		uuids = append(uuids, bleid.NormalizeUUID(s.String()))
	}
	return uuids
}

func (a advertisement) Addr() string      { return a.adv.Addr().String() }
func (a advertisement) RSSI() int         { return a.adv.RSSI() }
func (a advertisement) Connectable() bool { return a.adv.Connectable() }

// StartScan begins discovery on a background goroutine until StopScan.
func (c *Central) StartScan(handler func(ble.Advertisement)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scanCancel != nil {
		return fmt.Errorf("already scanning")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.scanCancel = cancel

	go func() {
		err := blelib.Scan(ctx, true, func(adv blelib.Advertisement) {
			handler(advertisement{adv: adv})
		}, nil)
		if err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Warn("BLE scan terminated")
		}
	}()
	return nil
}

// StopScan cancels an active scan. Safe to call when not scanning.
func (c *Central) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
	return nil
}

// Connect dials the peer. One bounded attempt; the caller's context carries
// the negotiation timeout.
func (c *Central) Connect(ctx context.Context, addr string) (ble.Peer, error) {
	client, err := blelib.Dial(ctx, blelib.NewAddr(addr))
	if err != nil {
		return nil, ble.NormalizeError(fmt.Errorf("failed to connect to %q: %w", addr, err))
	}
	return &peer{client: client, addr: addr, logger: c.logger}, nil
}

func (c *Central) Close() error {
	return c.StopScan()
}

// peer wraps one live connection.
type peer struct {
	client blelib.Client
	addr   string
	logger *logrus.Logger

	mu      sync.Mutex
	profile *blelib.Profile
	dropped bool
}

func (p *peer) Addr() string { return p.addr }

func (p *peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dropped {
		return false
	}
	select {
	case <-p.client.Disconnected():
		p.dropped = true
		return false
	default:
		return true
	}
}

func (p *peer) Disconnect() error {
	p.mu.Lock()
	p.dropped = true
	p.mu.Unlock()
	return p.client.CancelConnection()
}

// Characteristics enumerates the remote characteristics under one service.
// The profile is discovered once per connection and cached.
func (p *peer) Characteristics(_ context.Context, serviceUUID string) ([]ble.RemoteCharacteristic, error) {
	p.mu.Lock()
	profile := p.profile
	p.mu.Unlock()

	if profile == nil {
		discovered, err := p.client.DiscoverProfile(true)
		if err != nil {
			return nil, ble.NormalizeError(fmt.Errorf("failed to discover profile: %w", err))
		}
		p.mu.Lock()
		p.profile = discovered
		p.mu.Unlock()
		profile = discovered
	}

	want := bleid.NormalizeUUID(serviceUUID)
	for _, svc := range profile.Services {
		if bleid.NormalizeUUID(svc.UUID.String()) != want {
			continue
		}
		chars := make([]ble.RemoteCharacteristic, 0, len(svc.Characteristics))
		for _, ch := range svc.Characteristics {
			chars = append(chars, &remoteChar{peer: p, char: ch})
		}
		return chars, nil
	}
	return nil, fmt.Errorf("service %q not found on %s", serviceUUID, p.addr)
}

// remoteChar is one resolved characteristic on a connected peer.
type remoteChar struct {
	peer *peer
	char *blelib.Characteristic
}

func (rc *remoteChar) UUID() string {
	return bleid.NormalizeUUID(rc.char.UUID.String())
}

func (rc *remoteChar) Notifiable() bool {
	return rc.char.Property&(blelib.CharNotify|blelib.CharIndicate) != 0
}

func (rc *remoteChar) Subscribe(handler func([]byte)) error {
	err := rc.peer.client.Subscribe(rc.char, false, func(data []byte) {
		handler(data)
	})
	if err != nil {
		return ble.NormalizeError(fmt.Errorf("failed to subscribe %s: %w", rc.UUID(), err))
	}
	return nil
}

func (rc *remoteChar) Unsubscribe() error {
	return ble.NormalizeError(rc.peer.client.Unsubscribe(rc.char, false))
}

func (rc *remoteChar) Read(_ context.Context) ([]byte, error) {
	data, err := rc.peer.client.ReadCharacteristic(rc.char)
	if err != nil {
		return nil, ble.NormalizeError(err)
	}
	return data, nil
}

func (rc *remoteChar) Write(_ context.Context, data []byte) error {
	return ble.NormalizeError(rc.peer.client.WriteCharacteristic(rc.char, data, true))
}
