package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/ble/blesim"
	"github.com/Cfabcher22/forcelink/internal/bleid"
)

const testTicks = 500

func sensorIdentity(t *testing.T) bleid.Identity {
	t.Helper()
	id, err := bleid.NewIdentity("FORCE_SENSOR",
		bleid.AttributePair{Service: "180c", Characteristic: "2a56"},
	)
	require.NoError(t, err)
	return id
}

func newAir(t *testing.T) *blesim.Air {
	t.Helper()
	air := blesim.NewAir(nil)
	air.SetAdvertiseInterval(time.Millisecond)
	return air
}

// tickUntil drives the machine and returns true once it reaches want.
func tickUntil(ctx context.Context, l *Link, want State) bool {
	for i := 0; i < testTicks; i++ {
		l.Tick(ctx)
		if l.State() == want {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func TestCentralReachesReady(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:01")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	assert.Equal(t, StateIdle, l.State())
	require.True(t, tickUntil(ctx, l, StateReady), "central never reached ready")
}

func TestCentralMatchesByServiceUUID(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:02")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	// No name configured; the advertised service id alone must match.
	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		ServiceUUID: "0000180C-0000-1000-8000-00805F9B34FB",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	require.True(t, tickUntil(ctx, l, StateReady))
}

func TestCentralFallsBackToFirstSubscribable(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:03")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	// Configured characteristic does not exist on the peer.
	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2bad",
	}, nil)
	defer l.Close()

	require.True(t, tickUntil(ctx, l, StateReady))

	// The fallback subscription is live: notifications arrive.
	require.NoError(t, p.Notify("2a56", []byte("10|1.5")))
	waitLatest(t, l, "10|1.5")
}

func TestCentralStaysDiscoveringWithoutMatch(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:04")
	other, err := bleid.NewIdentity("OTHER_NODE",
		bleid.AttributePair{Service: "190a", Characteristic: "2ba1"},
	)
	require.NoError(t, err)
	require.NoError(t, p.StartAdvertising(other))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
	}, nil)
	defer l.Close()

	for i := 0; i < 50; i++ {
		l.Tick(ctx)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StateDiscovering, l.State())
}

func TestCentralRecoversFromDisconnect(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:05")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	require.True(t, tickUntil(ctx, l, StateReady))

	// Sever the link; one tick must leave READY with the endpoint cleared.
	p.DropConnections()
	l.Tick(ctx)
	assert.NotEqual(t, StateReady, l.State())
	assert.Nil(t, l.peer)
	assert.Nil(t, l.remoteChar)

	// The peer is still advertising, so the machine reconnects.
	require.True(t, tickUntil(ctx, l, StateReady))
}

func TestCentralDropsStaleNotificationsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:06")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	require.True(t, tickUntil(ctx, l, StateReady))
	require.NoError(t, p.Notify("2a56", []byte("1|1.0")))

	p.DropConnections()
	l.Tick(ctx)

	// Pre-disconnect data must not leak into the next session.
	_, ok := l.Latest()
	assert.False(t, ok)
}

func TestLinkObserverSeesTransitions(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:07")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	var states []State
	l.OnTransition(func(_, to State) { states = append(states, to) })

	require.True(t, tickUntil(ctx, l, StateReady))
	assert.Equal(t, []State{StateDiscovering, StateNegotiating, StateReady}, states)
}

func TestPeripheralLifecycle(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("bb:01")
	l := NewPeripheral(p, sensorIdentity(t), "2a56", nil)
	defer l.Close()

	l.Tick(ctx)
	assert.Equal(t, StateDiscovering, l.State())
	assert.False(t, l.HasSubscriber())

	// A central connects but has not subscribed yet.
	c := air.NewCentral("hub")
	peer, err := c.Connect(ctx, "bb:01")
	require.NoError(t, err)

	l.Tick(ctx)
	assert.Equal(t, StateNegotiating, l.State())

	chars, err := peer.Characteristics(ctx, "180c")
	require.NoError(t, err)
	got := make(chan []byte, 4)
	require.NoError(t, chars[0].Subscribe(func(v []byte) { got <- v }))

	l.Tick(ctx)
	assert.Equal(t, StateReady, l.State())
	assert.True(t, l.HasSubscriber())

	require.NoError(t, l.Notify([]byte("42|7.5")))
	select {
	case v := <-got:
		assert.Equal(t, "42|7.5", string(v))
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	// Subscriber loss: back to advertising within one tick.
	p.DropConnections()
	l.Tick(ctx)
	assert.Equal(t, StateDiscovering, l.State())
	assert.False(t, l.HasSubscriber())
}

func TestPeripheralAttachesWriteHandlers(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	id, err := bleid.NewIdentity("FORCE_SENSOR",
		bleid.AttributePair{Service: "180c", Characteristic: "2a56"},
		bleid.AttributePair{Service: "180c", Characteristic: "2a57"},
	)
	require.NoError(t, err)

	p := air.NewPeripheral("bb:02")
	l := NewPeripheral(p, id, "2a56", nil)
	defer l.Close()

	// Registered before the first tick; attached once advertising is up.
	written := make(chan []byte, 1)
	l.OnWrite("2a57", func(v []byte) { written <- v })

	l.Tick(ctx)
	assert.Equal(t, StateDiscovering, l.State())

	c := air.NewCentral("hub")
	peer, err := c.Connect(ctx, "bb:02")
	require.NoError(t, err)

	chars, err := peer.Characteristics(ctx, "180c")
	require.NoError(t, err)
	require.Len(t, chars, 2)
	require.NoError(t, chars[1].Write(ctx, []byte("UP 800")))

	select {
	case v := <-written:
		assert.Equal(t, "UP 800", string(v))
	case <-time.After(time.Second):
		t.Fatal("write never reached the handler")
	}
}

func TestCentralWritesToPeerCharacteristic(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	id, err := bleid.NewIdentity("FORCE_SENSOR",
		bleid.AttributePair{Service: "180c", Characteristic: "2a56"},
		bleid.AttributePair{Service: "180c", Characteristic: "2a57"},
	)
	require.NoError(t, err)

	p := air.NewPeripheral("aa:09")
	require.NoError(t, p.StartAdvertising(id))
	written := make(chan []byte, 1)
	require.NoError(t, p.HandleWrite("2a57", func(v []byte) { written <- v }))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	// Writing before the link is up fails cleanly.
	require.ErrorIs(t, l.Write(ctx, "2a57", []byte("UP 800")), ble.ErrNotConnected)

	require.True(t, tickUntil(ctx, l, StateReady))

	require.NoError(t, l.Write(ctx, "2a57", []byte("UP 800")))
	select {
	case v := <-written:
		assert.Equal(t, "UP 800", string(v))
	case <-time.After(time.Second):
		t.Fatal("write never reached the peer")
	}

	// A characteristic absent from the discovered table is reported as such.
	require.ErrorIs(t, l.Write(ctx, "2bad", []byte("STOP")), ble.ErrNoSuchChar)
}

func TestLatestReturnsNewestValue(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)

	p := air.NewPeripheral("aa:08")
	require.NoError(t, p.StartAdvertising(sensorIdentity(t)))

	l := NewCentral(air.NewCentral("hub"), CentralConfig{
		PeerName:    "FORCE_SENSOR",
		ServiceUUID: "180c",
		CharUUID:    "2a56",
	}, nil)
	defer l.Close()

	require.True(t, tickUntil(ctx, l, StateReady))

	require.NoError(t, p.Notify("2a56", []byte("1|1.0")))
	require.NoError(t, p.Notify("2a56", []byte("2|2.0")))
	require.NoError(t, p.Notify("2a56", []byte("3|3.0")))

	waitLatest(t, l, "3|3.0")
}

// waitLatest polls Latest until the wanted payload arrives.
func waitLatest(t *testing.T, l *Link, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := l.Latest(); ok {
			assert.Equal(t, want, string(v))
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("payload %q never arrived", want)
}
