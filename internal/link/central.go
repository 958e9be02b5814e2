package link

import (
	"context"
	"fmt"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/bleid"
)

func (l *Link) tickCentral(ctx context.Context) {
	switch l.state {
	case StateIdle:
		l.startDiscovery()

	case StateDiscovering:
		addr := l.takeMatch()
		if addr == "" {
			return // no match yet; discovery continues at loop cadence
		}
		if err := l.central.StopScan(); err != nil {
			l.logger.WithError(err).Warn("Failed to stop scan after match")
		}
		l.matchedAddr = addr
		l.transition(StateNegotiating)

	case StateNegotiating:
		if err := l.negotiate(ctx, l.matchedAddr); err != nil {
			l.logger.WithError(err).Info("Negotiation failed, resuming discovery")
			l.clearEndpoint()
			l.startDiscovery()
			return
		}
		l.transition(StateReady)

	case StateReady:
		if l.peer == nil || !l.peer.Connected() {
			l.logger.Info("Upstream peer disconnected, resuming discovery")
			l.clearEndpoint()
			l.startDiscovery()
		}
	}
}

// startDiscovery begins scanning and moves to StateDiscovering. A scan
// start failure keeps the machine in StateIdle for a retry on a later tick.
func (l *Link) startDiscovery() {
	l.setMatch("")
	if err := l.central.StartScan(l.handleAdvertisement); err != nil {
		l.logger.WithError(err).Warn("Failed to start scan")
		l.transition(StateIdle)
		return
	}
	l.transition(StateDiscovering)
}

// handleAdvertisement runs on a stack goroutine; it only records the first
// matching address for the tick loop to pick up.
func (l *Link) handleAdvertisement(adv ble.Advertisement) {
	if !l.matches(adv) {
		return
	}
	l.matchMu.Lock()
	if l.matched == "" {
		l.matched = adv.Addr()
	}
	l.matchMu.Unlock()
}

// matches applies the peer selection rule: exact advertised name, or the
// expected service identifier present in the advertisement.
func (l *Link) matches(adv ble.Advertisement) bool {
	if l.cfg.PeerName != "" && adv.LocalName() == l.cfg.PeerName {
		return true
	}
	if l.cfg.ServiceUUID != "" {
		for _, u := range adv.ServiceUUIDs() {
			if bleid.NormalizeUUID(u) == l.cfg.ServiceUUID {
				return true
			}
		}
	}
	return false
}

func (l *Link) takeMatch() string {
	l.matchMu.Lock()
	defer l.matchMu.Unlock()
	return l.matched
}

func (l *Link) setMatch(addr string) {
	l.matchMu.Lock()
	l.matched = addr
	l.matchMu.Unlock()
}

// negotiate performs one bounded connect+discover+subscribe attempt.
func (l *Link) negotiate(ctx context.Context, addr string) error {
	negCtx, cancel := context.WithTimeout(ctx, l.cfg.NegotiateTimeout)
	defer cancel()

	peer, err := l.central.Connect(negCtx, addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, ble.NormalizeError(err))
	}
	l.peer = peer

	char, err := l.resolveCharacteristic(negCtx, peer)
	if err != nil {
		return err
	}

	if err := char.Subscribe(l.handleNotification); err != nil {
		return fmt.Errorf("subscribe %s: %w", char.UUID(), ble.NormalizeError(err))
	}

	l.remoteChar = char
	l.logger.WithFields(map[string]interface{}{
		"address":        addr,
		"characteristic": char.UUID(),
	}).Info("Upstream link established")
	return nil
}

// resolveCharacteristic finds the target characteristic under the expected
// service, falling back to the first subscribable one when the configured
// identifier is absent from the remote table.
func (l *Link) resolveCharacteristic(ctx context.Context, peer ble.Peer) (ble.RemoteCharacteristic, error) {
	chars, err := peer.Characteristics(ctx, l.cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("discover service %s: %w", l.cfg.ServiceUUID, ble.NormalizeError(err))
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("service %s: %w", l.cfg.ServiceUUID, ble.ErrNoSuchChar)
	}
	l.remoteChars = chars

	var fallback ble.RemoteCharacteristic
	for _, c := range chars {
		if bleid.Equal(c.UUID(), l.cfg.CharUUID) {
			return c, nil
		}
		if fallback == nil && c.Notifiable() {
			fallback = c
		}
	}
	if fallback != nil {
		l.logger.WithFields(map[string]interface{}{
			"wanted":   l.cfg.CharUUID,
			"fallback": fallback.UUID(),
		}).Debug("Exact characteristic not found, using first subscribable")
		return fallback, nil
	}
	return nil, fmt.Errorf("service %s: %w", l.cfg.ServiceUUID, ble.ErrNotSubscribable)
}

// Write sends a payload to one of the peer's characteristics (the motor
// command channel). Central role only; the link must be ready.
func (l *Link) Write(ctx context.Context, charUUID string, payload []byte) error {
	if !l.Ready() || l.peer == nil {
		return ble.ErrNotConnected
	}
	for _, c := range l.remoteChars {
		if bleid.Equal(c.UUID(), charUUID) {
			return c.Write(ctx, payload)
		}
	}
	return fmt.Errorf("characteristic %s: %w", charUUID, ble.ErrNoSuchChar)
}

// handleNotification runs on a stack goroutine; it never blocks the radio.
func (l *Link) handleNotification(value []byte) {
	l.rx.ForceSend(append([]byte(nil), value...))
}

// clearEndpoint resets the RemoteEndpoint to its empty state: unsubscribe
// and disconnect best-effort, drop the cached characteristic, and drain any
// stale buffered notifications so a new session never replays old data.
func (l *Link) clearEndpoint() {
	if l.remoteChar != nil {
		_ = l.remoteChar.Unsubscribe()
		l.remoteChar = nil
	}
	l.remoteChars = nil
	if l.peer != nil {
		_ = l.peer.Disconnect()
		l.peer = nil
	}
	l.matchedAddr = ""
	l.setMatch("")
	if l.rx != nil {
		l.rx.Latest() // drain
	}
}
