// Package blesim is a process-local BLE stack: peripherals advertise into a
// shared Air, centrals scan it, and connections deliver notifications over
// plain function calls. It exists so the link state machines and forwarding
// pipeline can be exercised — including disconnect and reconnect storms —
// without radio hardware. Timing is collapsed (discovery is immediate on the
// next sweep) but the observable contract matches the production adapter.
package blesim

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// DefaultAdvertiseInterval is the sweep period at which scanning centrals
// observe the current set of advertisers.
const DefaultAdvertiseInterval = 2 * time.Millisecond

// Air is the shared medium. One Air per simulated rig.
type Air struct {
	peripherals *hashmap.Map[string, *Peripheral]
	logger      *logrus.Logger

	mu       sync.Mutex
	scanners map[*Central]func()
	interval time.Duration
}

// NewAir creates an empty medium.
func NewAir(logger *logrus.Logger) *Air {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Air{
		peripherals: hashmap.New[string, *Peripheral](),
		logger:      logger,
		scanners:    make(map[*Central]func()),
		interval:    DefaultAdvertiseInterval,
	}
}

// SetAdvertiseInterval tunes the sweep period; tests shorten it.
func (a *Air) SetAdvertiseInterval(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d > 0 {
		a.interval = d
	}
}

// NewPeripheral creates a peripheral attached to this medium at the given
// address.
func (a *Air) NewPeripheral(addr string) *Peripheral {
	p := newPeripheral(a, addr)
	a.peripherals.Set(addr, p)
	return p
}

// NewCentral creates a central attached to this medium.
func (a *Air) NewCentral(addr string) *Central {
	return &Central{air: a, addr: addr}
}

// lookup returns the peripheral registered at addr.
func (a *Air) lookup(addr string) (*Peripheral, bool) {
	return a.peripherals.Get(addr)
}

// advertisers snapshots every peripheral currently advertising.
func (a *Air) advertisers() []*Peripheral {
	var out []*Peripheral
	a.peripherals.Range(func(_ string, p *Peripheral) bool {
		if p.advertising() {
			out = append(out, p)
		}
		return true
	})
	return out
}

func (a *Air) registerScanner(c *Central, stop func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanners[c] = stop
}

func (a *Air) unregisterScanner(c *Central) (stop func(), ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stop, ok = a.scanners[c]
	delete(a.scanners, c)
	return stop, ok
}

func (a *Air) sweepInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}
