package blesim

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/bleid"
)

// localChar is one attribute in the peripheral's table. Every characteristic
// declared through an identity is notifiable; the write handler is optional.
type localChar struct {
	uuid         string
	value        []byte
	writeHandler func([]byte)
}

// subscription keys one remote subscriber to one characteristic.
type subscription struct {
	connID   string
	charUUID string
}

// Peripheral is the advertising side of the simulated stack. The GATT table
// keeps services and characteristics in declaration order, the way a real
// attribute table enumerates.
type Peripheral struct {
	air  *Air
	addr string

	mu          sync.Mutex
	identity    bleid.Identity
	adv         bool
	services    *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, *localChar]]
	conns       map[string]bool // connID -> alive
	subscribers map[subscription]func([]byte)
}

func newPeripheral(air *Air, addr string) *Peripheral {
	return &Peripheral{
		air:         air,
		addr:        addr,
		services:    orderedmap.New[string, *orderedmap.OrderedMap[string, *localChar]](),
		conns:       make(map[string]bool),
		subscribers: make(map[subscription]func([]byte)),
	}
}

// Addr returns the peripheral's address on the medium.
func (p *Peripheral) Addr() string { return p.addr }

// StartAdvertising publishes the identity's attribute table and makes the
// device visible to scanning centrals. Re-advertising with the same identity
// while active is a no-op.
func (p *Peripheral) StartAdvertising(identity bleid.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adv {
		return nil
	}

	for _, pair := range identity.Pairs {
		chars, ok := p.services.Get(pair.Service)
		if !ok {
			chars = orderedmap.New[string, *localChar]()
			p.services.Set(pair.Service, chars)
		}
		if _, exists := chars.Get(pair.Characteristic); !exists {
			chars.Set(pair.Characteristic, &localChar{uuid: pair.Characteristic})
		}
	}

	p.identity = identity
	p.adv = true
	return nil
}

func (p *Peripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adv = false
	return nil
}

func (p *Peripheral) advertising() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adv
}

// SetValue stores the latest value without notifying.
func (p *Peripheral) SetValue(charUUID string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.findCharLocked(charUUID)
	if err != nil {
		return err
	}
	ch.value = append(ch.value[:0:0], value...)
	return nil
}

// Notify stores the value and pushes it to every current subscriber of the
// characteristic. No subscriber is a normal condition, not an error.
func (p *Peripheral) Notify(charUUID string, value []byte) error {
	p.mu.Lock()
	ch, err := p.findCharLocked(charUUID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	ch.value = append(ch.value[:0:0], value...)

	var handlers []func([]byte)
	for sub, h := range p.subscribers {
		if sub.charUUID == bleid.NormalizeUUID(charUUID) {
			handlers = append(handlers, h)
		}
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(append([]byte(nil), value...))
	}
	return nil
}

// Subscribed reports whether any live connection subscribes to the
// characteristic.
func (p *Peripheral) Subscribed(charUUID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	uuid := bleid.NormalizeUUID(charUUID)
	for sub := range p.subscribers {
		if sub.charUUID == uuid && p.conns[sub.connID] {
			return true
		}
	}
	return false
}

// HasCentral reports whether any central is connected.
func (p *Peripheral) HasCentral() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, alive := range p.conns {
		if alive {
			return true
		}
	}
	return false
}

// HandleWrite registers the write handler for one characteristic.
func (p *Peripheral) HandleWrite(charUUID string, handler func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.findCharLocked(charUUID)
	if err != nil {
		return err
	}
	ch.writeHandler = handler
	return nil
}

// Close stops advertising and severs every connection.
func (p *Peripheral) Close() error {
	p.DropConnections()
	return p.StopAdvertising()
}

// DropConnections severs every live connection, simulating supervision
// timeout or peer power loss. Subscriptions tied to dropped connections are
// cleared.
func (p *Peripheral) DropConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.conns {
		delete(p.conns, id)
	}
	for sub := range p.subscribers {
		delete(p.subscribers, sub)
	}
}

// attach registers a new connection and returns its id validity check.
func (p *Peripheral) attach(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[connID] = true
}

// detach removes one connection and its subscriptions.
func (p *Peripheral) detach(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.conns, connID)
	for sub := range p.subscribers {
		if sub.connID == connID {
			delete(p.subscribers, sub)
		}
	}
}

func (p *Peripheral) connAlive(connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[connID]
}

func (p *Peripheral) subscribe(connID, charUUID string, handler func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.conns[connID] {
		return fmt.Errorf("subscribe on dead connection %s", connID)
	}
	if _, err := p.findCharLocked(charUUID); err != nil {
		return err
	}
	p.subscribers[subscription{connID: connID, charUUID: bleid.NormalizeUUID(charUUID)}] = handler
	return nil
}

func (p *Peripheral) unsubscribe(connID, charUUID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribers, subscription{connID: connID, charUUID: bleid.NormalizeUUID(charUUID)})
}

func (p *Peripheral) write(charUUID string, data []byte) error {
	p.mu.Lock()
	ch, err := p.findCharLocked(charUUID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	handler := ch.writeHandler
	p.mu.Unlock()

	if handler != nil {
		handler(append([]byte(nil), data...))
	}
	return nil
}

func (p *Peripheral) readValue(charUUID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.findCharLocked(charUUID)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), ch.value...), nil
}

// charsUnder lists characteristic UUIDs below a service, in table order.
func (p *Peripheral) charsUnder(serviceUUID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	chars, ok := p.services.Get(bleid.NormalizeUUID(serviceUUID))
	if !ok {
		return nil
	}
	out := make([]string, 0, chars.Len())
	for pair := chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

func (p *Peripheral) findCharLocked(charUUID string) (*localChar, error) {
	uuid := bleid.NormalizeUUID(charUUID)
	for svc := p.services.Oldest(); svc != nil; svc = svc.Next() {
		if ch, ok := svc.Value.Get(uuid); ok {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %q not in table", ble.ErrNoSuchChar, charUUID)
}

func (p *Peripheral) currentIdentity() bleid.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}
