// Package link implements the per-link connection state machine used on
// both sides of the rig: a central link subscribing upstream to a sensor,
// and a peripheral link notifying downstream to a consumer. One shared
// implementation, tagged by role, replaces the near-duplicate per-board
// variants of the same loop.
//
// The machine is advanced by non-blocking ticks from the scheduler. Every
// potentially slow operation (connect, discovery, subscribe) is a single
// bounded attempt per tick; failure re-enters discovery and is retried
// indefinitely. Discovery without a match is the normal path, not an error.
package link

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/bleid"
	"github.com/Cfabcher22/forcelink/internal/ringchan"
)

// State of one link.
type State int

const (
	// StateIdle is the boot and post-failure state; nothing is in flight.
	StateIdle State = iota

	// StateDiscovering is scanning (central) or advertising (peripheral).
	StateDiscovering

	// StateNegotiating is connect+discover+subscribe (central) or waiting
	// for a remote subscription (peripheral).
	StateNegotiating

	// StateReady means the link carries data.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Role tags which side of a connection this link drives.
type Role int

const (
	RoleCentral Role = iota
	RolePeripheral
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

// Observer is notified on every state transition. Observers run on the tick
// goroutine and must not block.
type Observer func(from, to State)

// DefaultNegotiateTimeout bounds one connect+discover+subscribe attempt so
// a stuck negotiation cannot stall the tick loop.
const DefaultNegotiateTimeout = 5 * time.Second

// rxCapacity bounds buffered upstream notifications. The pipeline only ever
// wants the latest value; a small ring absorbs bursts between ticks.
const rxCapacity = 8

// CentralConfig selects the upstream peer and attribute for a central link.
// A peer matches on exact advertised name or on the presence of the service
// identifier in its advertisement.
type CentralConfig struct {
	PeerName         string
	ServiceUUID      string
	CharUUID         string
	NegotiateTimeout time.Duration
}

// Link is one role-tagged connection state machine. All methods except the
// scan-handler internals must be called from the scheduler goroutine.
type Link struct {
	role   Role
	state  State
	logger *logrus.Entry

	observers []Observer

	// Central role.
	central ble.Central
	cfg     CentralConfig
	rx      *ringchan.RingChannel[[]byte]

	matchMu sync.Mutex
	matched string // address of the first matching advertisement

	matchedAddr string // tick-goroutine copy consumed by negotiation

	peer        ble.Peer
	remoteChar  ble.RemoteCharacteristic
	remoteChars []ble.RemoteCharacteristic // discovered table, session-scoped

	// Peripheral role.
	peripheral    ble.Peripheral
	identity      bleid.Identity
	notifyChar    string
	writeHandlers map[string]func([]byte)
}

// NewCentral builds a central-role link over the given stack side.
func NewCentral(central ble.Central, cfg CentralConfig, logger *logrus.Logger) *Link {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = DefaultNegotiateTimeout
	}
	cfg.ServiceUUID = bleid.NormalizeUUID(cfg.ServiceUUID)
	cfg.CharUUID = bleid.NormalizeUUID(cfg.CharUUID)

	return &Link{
		role:    RoleCentral,
		central: central,
		cfg:     cfg,
		rx:      ringchan.New[[]byte](rxCapacity),
		logger: logger.WithFields(logrus.Fields{
			"component": "link",
			"role":      "central",
			"peer":      cfg.PeerName,
		}),
	}
}

// NewPeripheral builds a peripheral-role link advertising the identity and
// notifying on notifyChar.
func NewPeripheral(peripheral ble.Peripheral, identity bleid.Identity, notifyChar string, logger *logrus.Logger) *Link {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Link{
		role:       RolePeripheral,
		peripheral: peripheral,
		identity:   identity,
		notifyChar: bleid.NormalizeUUID(notifyChar),
		logger: logger.WithFields(logrus.Fields{
			"component": "link",
			"role":      "peripheral",
			"name":      identity.Name,
		}),
	}
}

// OnWrite registers a handler for central writes to a local characteristic
// (the motor command channel). Peripheral role only; must be called before
// the first Tick. The handler runs on a stack goroutine and must not block.
func (l *Link) OnWrite(charUUID string, handler func([]byte)) {
	if l.writeHandlers == nil {
		l.writeHandlers = make(map[string]func([]byte))
	}
	l.writeHandlers[bleid.NormalizeUUID(charUUID)] = handler
}

// Role returns the link's role tag.
func (l *Link) Role() Role { return l.role }

// State returns the current machine state.
func (l *Link) State() State { return l.state }

// Ready reports whether the link carries data.
func (l *Link) Ready() bool { return l.state == StateReady }

// OnTransition registers a state observer.
func (l *Link) OnTransition(obs Observer) {
	l.observers = append(l.observers, obs)
}

// Tick advances the machine by one non-blocking step.
func (l *Link) Tick(ctx context.Context) {
	if l.role == RoleCentral {
		l.tickCentral(ctx)
	} else {
		l.tickPeripheral()
	}
}

// Latest drains buffered upstream notifications and returns the newest one.
// Central role only; peripheral links never receive.
func (l *Link) Latest() ([]byte, bool) {
	if l.rx == nil {
		return nil, false
	}
	return l.rx.Latest()
}

// HasSubscriber reports whether the downstream consumer is subscribed.
// Peripheral role only.
func (l *Link) HasSubscriber() bool {
	return l.peripheral != nil && l.peripheral.Subscribed(l.notifyChar)
}

// Notify pushes a payload to the downstream subscriber. Peripheral role only.
func (l *Link) Notify(payload []byte) error {
	if l.peripheral == nil {
		return ble.ErrNotInitialized
	}
	return l.peripheral.Notify(l.notifyChar, payload)
}

// SetValue stores a payload as the notify characteristic's readable value
// without notifying anyone. Peripheral role only.
func (l *Link) SetValue(payload []byte) error {
	if l.peripheral == nil {
		return ble.ErrNotInitialized
	}
	return l.peripheral.SetValue(l.notifyChar, payload)
}

// Close tears the link down. Central links disconnect and stop scanning;
// peripheral links stop advertising.
func (l *Link) Close() {
	switch l.role {
	case RoleCentral:
		l.clearEndpoint()
		_ = l.central.StopScan()
		_ = l.central.Close()
	case RolePeripheral:
		_ = l.peripheral.Close()
	}
	l.transition(StateIdle)
}

func (l *Link) transition(to State) {
	if l.state == to {
		return
	}
	from := l.state
	l.state = to
	l.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Link state changed")
	for _, obs := range l.observers {
		obs(from, to)
	}
}
