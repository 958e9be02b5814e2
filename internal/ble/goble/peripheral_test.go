package goble

import (
	"context"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNotifier stands in for one remote subscription so the pump can run
// without a radio.
type stubNotifier struct {
	ctx    context.Context
	cancel context.CancelFunc
	writes chan []byte
}

var _ blelib.Notifier = (*stubNotifier)(nil)

func newStubNotifier() *stubNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &stubNotifier{ctx: ctx, cancel: cancel, writes: make(chan []byte, 16)}
}

func (n *stubNotifier) Context() context.Context { return n.ctx }

func (n *stubNotifier) Write(b []byte) (int, error) {
	n.writes <- append([]byte(nil), b...)
	return len(b), nil
}

func (n *stubNotifier) Close() error {
	n.cancel()
	return nil
}

func (n *stubNotifier) Cap() int { return 20 }

func testPeripheral() (*Peripheral, *localChar) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	lc := &localChar{}
	return &Peripheral{logger: logger, chars: map[string]*localChar{"2a56": lc}}, lc
}

func installedChannel(lc *localChar) chan []byte {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.notifyCh
}

func TestSubscriberChurnKeepsLivePump(t *testing.T) {
	p, lc := testPeripheral()

	first := newStubNotifier()
	firstDone := make(chan struct{})
	go func() {
		p.serveSubscriber(lc, first)
		close(firstDone)
	}()
	require.Eventually(t, func() bool { return p.Subscribed("2a56") },
		time.Second, time.Millisecond)
	firstCh := installedChannel(lc)

	// A reconnecting central resubscribes while the stale pump is still
	// winding down.
	second := newStubNotifier()
	secondDone := make(chan struct{})
	go func() {
		p.serveSubscriber(lc, second)
		close(secondDone)
	}()
	require.Eventually(t, func() bool { return installedChannel(lc) != firstCh },
		time.Second, time.Millisecond)

	first.cancel()
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("stale pump never exited")
	}

	// The live subscription survives the stale pump's teardown and still
	// receives notifications.
	assert.True(t, p.Subscribed("2a56"))
	require.NoError(t, p.Notify("2a56", []byte("10|1.5")))
	select {
	case v := <-second.writes:
		assert.Equal(t, "10|1.5", string(v))
	case <-time.After(time.Second):
		t.Fatal("notification never reached the live subscriber")
	}

	second.cancel()
	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("live pump never exited")
	}
	assert.False(t, p.Subscribed("2a56"))
}

func TestSubscriberPumpClearsStateOnExit(t *testing.T) {
	p, lc := testPeripheral()

	n := newStubNotifier()
	done := make(chan struct{})
	go func() {
		p.serveSubscriber(lc, n)
		close(done)
	}()
	require.Eventually(t, func() bool { return p.Subscribed("2a56") },
		time.Second, time.Millisecond)

	n.cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump never exited")
	}
	assert.False(t, p.Subscribed("2a56"))
	assert.Nil(t, installedChannel(lc))
}
