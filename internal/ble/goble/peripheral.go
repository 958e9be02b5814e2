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

// Peripheral implements ble.Peripheral over the go-ble stack. Local
// characteristics hold one latest value each; a notify handler runs for the
// lifetime of a remote subscription and pumps values pushed through Notify.
type Peripheral struct {
	logger *logrus.Logger

	mu        sync.Mutex
	chars     map[string]*localChar
	advCancel context.CancelFunc
}

// localChar tracks the latest value and the live subscriber pump, if any.
type localChar struct {
	mu          sync.Mutex
	value       []byte
	notifyCh    chan []byte
	subscribed  bool
	writeHandle func([]byte)
}

// NewPeripheral brings up the HCI device and returns the advertising side.
func NewPeripheral(logger *logrus.Logger) (*Peripheral, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	if err := initDevice(); err != nil {
		return nil, err
	}
	return &Peripheral{logger: logger, chars: make(map[string]*localChar)}, nil
}

// StartAdvertising registers the identity's attribute table with the stack
// and advertises continuously until stopped. Re-invocation while active is
// a no-op.
func (p *Peripheral) StartAdvertising(identity bleid.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.advCancel != nil {
		return nil
	}

	services := make(map[string]*blelib.Service)
	var svcUUIDs []blelib.UUID
	for _, pair := range identity.Pairs {
		svc, ok := services[pair.Service]
		if !ok {
			u, err := parseUUID(pair.Service)
			if err != nil {
				return err
			}
			svc = blelib.NewService(u)
			services[pair.Service] = svc
			svcUUIDs = append(svcUUIDs, u)
		}

		charUUID, err := parseUUID(pair.Characteristic)
		if err != nil {
			return err
		}

		lc := p.chars[pair.Characteristic]
		if lc == nil {
			lc = &localChar{}
			p.chars[pair.Characteristic] = lc
		}

		ch := svc.NewCharacteristic(charUUID)
		ch.HandleRead(blelib.ReadHandlerFunc(func(req blelib.Request, rsp blelib.ResponseWriter) {
			lc.mu.Lock()
			v := append([]byte(nil), lc.value...)
			lc.mu.Unlock()
			_, _ = rsp.Write(v)
		}))
		ch.HandleWrite(blelib.WriteHandlerFunc(func(req blelib.Request, rsp blelib.ResponseWriter) {
			lc.mu.Lock()
			h := lc.writeHandle
			lc.mu.Unlock()
			if h != nil {
				h(append([]byte(nil), req.Data()...))
			}
		}))
		ch.HandleNotify(blelib.NotifyHandlerFunc(func(req blelib.Request, n blelib.Notifier) {
			p.serveSubscriber(lc, n)
		}))
	}

	for _, svc := range services {
		if err := blelib.AddService(svc); err != nil {
			return fmt.Errorf("failed to register service: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.advCancel = cancel
	go func() {
		err := blelib.AdvertiseNameAndServices(ctx, identity.Name, svcUUIDs...)
		if err != nil && ctx.Err() == nil {
			p.logger.WithError(err).Warn("Advertising terminated")
		}
	}()

	p.logger.WithField("name", identity.Name).Info("Advertising started")
	return nil
}

// serveSubscriber pumps values to one subscriber until it unsubscribes or
// disconnects.
func (p *Peripheral) serveSubscriber(lc *localChar, n blelib.Notifier) {
	lc.mu.Lock()
	lc.notifyCh = make(chan []byte, 8)
	lc.subscribed = true
	ch := lc.notifyCh
	lc.mu.Unlock()

	defer func() {
		lc.mu.Lock()
		// A reconnecting central can install a replacement pump before this
		// one unwinds; only the owner of the installed channel may clear the
		// subscription state.
		if lc.notifyCh == ch {
			lc.subscribed = false
			lc.notifyCh = nil
		}
		lc.mu.Unlock()
	}()

	for {
		select {
		case <-n.Context().Done():
			return
		case v := <-ch:
			if _, err := n.Write(v); err != nil {
				return
			}
		}
	}
}

func (p *Peripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.advCancel != nil {
		p.advCancel()
		p.advCancel = nil
	}
	return nil
}

func (p *Peripheral) lookup(charUUID string) (*localChar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	lc, ok := p.chars[bleid.NormalizeUUID(charUUID)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ble.ErrNoSuchChar, charUUID)
	}
	return lc, nil
}

// SetValue stores the latest value without notifying.
func (p *Peripheral) SetValue(charUUID string, value []byte) error {
	lc, err := p.lookup(charUUID)
	if err != nil {
		return err
	}
	lc.mu.Lock()
	lc.value = append(lc.value[:0:0], value...)
	lc.mu.Unlock()
	return nil
}

// Notify stores the value and pushes it to the subscriber pump, if one is
// attached. A full pump drops the oldest value: latest wins.
func (p *Peripheral) Notify(charUUID string, value []byte) error {
	lc, err := p.lookup(charUUID)
	if err != nil {
		return err
	}

	lc.mu.Lock()
	lc.value = append(lc.value[:0:0], value...)
	ch := lc.notifyCh
	lc.mu.Unlock()

	if ch == nil {
		return nil
	}
	v := append([]byte(nil), value...)
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
	return nil
}

// Subscribed reports whether a remote central holds a subscription.
func (p *Peripheral) Subscribed(charUUID string) bool {
	lc, err := p.lookup(charUUID)
	if err != nil {
		return false
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.subscribed
}

// HasCentral reports whether a central is attached. The stack does not
// surface peripheral-side connection events, so subscription state is the
// observable proxy; the link machine then moves straight from discovery to
// ready, which the state contract allows.
func (p *Peripheral) HasCentral() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, lc := range p.chars {
		lc.mu.Lock()
		sub := lc.subscribed
		lc.mu.Unlock()
		if sub {
			return true
		}
	}
	return false
}

// HandleWrite registers a handler for writes to a local characteristic.
func (p *Peripheral) HandleWrite(charUUID string, handler func([]byte)) error {
	lc, err := p.lookup(charUUID)
	if err != nil {
		return err
	}
	lc.mu.Lock()
	lc.writeHandle = handler
	lc.mu.Unlock()
	return nil
}

// Close stops advertising.
func (p *Peripheral) Close() error {
	return p.StopAdvertising()
}
