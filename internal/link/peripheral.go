package link

func (l *Link) tickPeripheral() {
	switch l.state {
	case StateIdle:
		if err := l.peripheral.StartAdvertising(l.identity); err != nil {
			l.logger.WithError(err).Warn("Failed to start advertising")
			return
		}
		// The attribute table exists only once advertising is up; write
		// handlers registered before that are attached here.
		for uuid, handler := range l.writeHandlers {
			if err := l.peripheral.HandleWrite(uuid, handler); err != nil {
				l.logger.WithError(err).WithField("char", uuid).
					Warn("Failed to attach write handler")
			}
		}
		l.transition(StateDiscovering)

	case StateDiscovering:
		// Advertising is continuous; a connected central that has not yet
		// written its subscription is mid-negotiation.
		if l.peripheral.Subscribed(l.notifyChar) {
			l.transition(StateReady)
			return
		}
		if l.peripheral.HasCentral() {
			l.transition(StateNegotiating)
		}

	case StateNegotiating:
		if l.peripheral.Subscribed(l.notifyChar) {
			l.logger.Info("Downstream subscriber attached")
			l.transition(StateReady)
			return
		}
		if !l.peripheral.HasCentral() {
			l.transition(StateDiscovering)
		}

	case StateReady:
		if !l.peripheral.Subscribed(l.notifyChar) {
			l.logger.Info("Downstream subscriber lost, continuing to advertise")
			l.transition(StateDiscovering)
		}
	}
}
