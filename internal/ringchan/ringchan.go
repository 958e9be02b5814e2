// Package ringchan provides a bounded channel-like buffer with
// overwrite-oldest semantics. BLE notification callbacks land here so the
// radio side never blocks on the tick loop: if the consumer falls behind,
// stale readings are discarded and the latest value wins.
package ringchan

// RingChannel wraps a buffered channel and guarantees producers never block:
// when the buffer is full the oldest element is dropped to make room.
type RingChannel[T any] struct {
	ch chan T
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over
// it until Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend inserts an item, discarding the oldest if the buffer is full.
// Never blocks. Returns true when an element was dropped to make room.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
			dropped = true
		default:
		}
		rc.ch <- v
	}

	return dropped
}

// TrySend attempts to insert without blocking. Returns false if the buffer
// is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		return true
	default:
		return false
	}
}

// TryReceive attempts a non-blocking receive. Returns (zero, false) if no
// value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return
	default:
		var zero T
		return zero, false
	}
}

// Latest drains the buffer and returns the newest value, if any. This is the
// latest-value-wins read used by the forwarding pipeline.
func (rc *RingChannel[T]) Latest() (v T, ok bool) {
	for {
		next, more := rc.TryReceive()
		if !more {
			return v, ok
		}
		v, ok = next, true
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Close closes the underlying channel. Only the producer side may call it.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}
