//go:build !windows

package serialpty

import (
	"bufio"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRowReachesSlave(t *testing.T) {
	port, err := Open(0, nil)
	require.NoError(t, err)
	defer func() { _ = port.Close() }()

	slave, err := os.OpenFile(port.TTYName(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer func() { _ = slave.Close() }()

	port.WriteRow(1234, 15.3)

	reader := bufio.NewReader(slave)
	lineCh := make(chan string, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err == nil {
			lineCh <- line
		}
	}()

	select {
	case line := <-lineCh:
		assert.Equal(t, "1234,15.3\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("CSV row never reached the slave side")
	}
}

func TestLineCallbackReceivesPCInput(t *testing.T) {
	port, err := Open(0, nil)
	require.NoError(t, err)
	defer func() { _ = port.Close() }()

	got := make(chan string, 1)
	port.SetLineCallback(func(line string) {
		select {
		case got <- line:
		default:
		}
	})

	slave, err := os.OpenFile(port.TTYName(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer func() { _ = slave.Close() }()

	_, err = slave.WriteString("up 500\n")
	require.NoError(t, err)

	select {
	case line := <-got:
		assert.Equal(t, "up 500", line)
	case <-time.After(2 * time.Second):
		t.Fatal("line callback never fired")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	port, err := Open(64, nil)
	require.NoError(t, err)

	require.NoError(t, port.Close())
	assert.NoError(t, port.Close())
}
