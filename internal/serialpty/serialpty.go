// Package serialpty exposes a node's readings to the PC as a serial device:
// a pseudo-terminal whose slave side any serial reader can open, carrying
// the same "ms,pounds" CSV rows the rig's wired boards print. Writes go
// through a ring buffer so a slow or absent reader never stalls the tick
// loop; the oldest rows are dropped instead.
package serialpty

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/term"
)

// DefaultBufferSize holds roughly a minute of CSV rows at the default
// notification cadence.
const DefaultBufferSize = 4096

// LineCallback receives one newline-terminated line typed into the slave
// side (e.g., a motor command from the PC). Runs on a background goroutine.
type LineCallback func(line string)

// Port is an open PTY pair with buffered writes toward the PC.
type Port struct {
	logger *logrus.Logger

	master *os.File
	slave  *os.File
	name   string

	buf    *ringbuffer.RingBuffer
	lineCb atomic.Value // LineCallback or nil

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
	symlink string

	droppedBytes atomic.Uint64
	wroteBytes   atomic.Uint64
}

// Open creates the PTY pair, puts the slave in raw mode, and starts the
// background pumps. bufSize <= 0 uses DefaultBufferSize.
func Open(bufSize int, logger *logrus.Logger) (*Port, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, fmt.Errorf("failed to set %s to raw mode: %w", slave.Name(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Port{
		logger: logger,
		master: master,
		slave:  slave,
		name:   slave.Name(),
		buf:    ringbuffer.New(bufSize).SetBlocking(true).WithCancel(ctx),
		cancel: cancel,
	}

	p.wg.Add(2)
	go p.writePump()
	go p.readPump()

	logger.WithField("tty", p.name).Info("Created serial PTY")
	return p, nil
}

// TTYName returns the slave device path (e.g. /dev/pts/5).
func (p *Port) TTYName() string { return p.name }

// Symlink creates a stable path to the slave device for PC-side tooling.
func (p *Port) Symlink(path string) error {
	if err := os.Symlink(p.name, path); err != nil {
		return fmt.Errorf("failed to create tty symlink %s -> %s: %w", path, p.name, err)
	}
	p.symlink = path
	p.logger.WithFields(logrus.Fields{
		"symlink": path,
		"target":  p.name,
	}).Info("Created PTY symlink")
	return nil
}

// WriteRow formats one "ms,pounds" CSV row and queues it. Never blocks; the
// row is dropped when the buffer is full.
func (p *Port) WriteRow(elapsedMs uint32, pounds float64) {
	p.Write([]byte(fmt.Sprintf("%d,%.1f\n", elapsedMs, pounds)))
}

// Write queues raw bytes toward the PC. Partial or dropped writes are
// counted, not errored: the serial channel is informational and must never
// stall the node.
func (p *Port) Write(data []byte) {
	if p.closed.Load() {
		return
	}
	n, err := p.buf.TryWrite(data)
	p.wroteBytes.Add(uint64(n))
	if err != nil || n < len(data) {
		p.droppedBytes.Add(uint64(len(data) - n))
	}
}

// SetLineCallback registers a handler for lines arriving from the PC side.
// Pass nil to unregister.
func (p *Port) SetLineCallback(cb LineCallback) {
	p.lineCb.Store(cb)
}

// Dropped returns the number of bytes discarded due to buffer overflow.
func (p *Port) Dropped() uint64 { return p.droppedBytes.Load() }

// Close stops the pumps, removes the symlink, and closes both FDs.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.cancel()
	if p.symlink != "" {
		if err := os.Remove(p.symlink); err != nil {
			p.logger.WithError(err).WithField("symlink", p.symlink).Warn("Failed to remove tty symlink")
		}
	}

	// Closing the master unblocks the read pump.
	err := p.master.Close()
	if cerr := p.slave.Close(); err == nil {
		err = cerr
	}
	p.wg.Wait()
	return err
}

// writePump drains the ring buffer into the PTY master.
func (p *Port) writePump() {
	defer p.wg.Done()

	chunk := make([]byte, 512)
	for {
		n, err := p.buf.Read(chunk)
		if err != nil {
			return // buffer canceled on Close
		}
		if _, err := p.master.Write(chunk[:n]); err != nil {
			if !p.closed.Load() {
				p.logger.WithError(err).Warn("Serial PTY write failed")
			}
			return
		}
	}
}

// readPump scans newline-terminated input from the PC side and hands each
// line to the registered callback.
func (p *Port) readPump() {
	defer p.wg.Done()

	scanner := bufio.NewScanner(p.master)
	for scanner.Scan() {
		cb, _ := p.lineCb.Load().(LineCallback)
		if cb != nil {
			cb(scanner.Text())
		}
	}
}
