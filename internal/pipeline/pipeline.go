// Package pipeline composes the upstream and downstream links of one node
// and moves the latest reading from hop to hop. It is a latest-value relay:
// nothing is queued, a missing downstream subscriber is a normal condition,
// and a malformed upstream payload is logged and dropped at this boundary,
// never forwarded.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cfabcher22/forcelink/internal/link"
	"github.com/Cfabcher22/forcelink/internal/loadcell"
	"github.com/Cfabcher22/forcelink/internal/wirefmt"
)

// Mode selects how a node treats traffic.
type Mode int

const (
	// ModeSensor emits the node's own conditioned readings.
	ModeSensor Mode = iota

	// ModeRelay forwards validated upstream payloads byte-for-byte.
	ModeRelay

	// ModeBase re-encodes upstream force reports as BASE reports.
	ModeBase

	// ModeMonitor delivers validated upstream payloads to a local sink
	// (the serial link to the PC) instead of a downstream BLE hop.
	ModeMonitor
)

func (m Mode) String() string {
	switch m {
	case ModeSensor:
		return "sensor"
	case ModeRelay:
		return "relay"
	case ModeBase:
		return "base"
	case ModeMonitor:
		return "monitor"
	default:
		return "unknown"
	}
}

// Options assembles a pipeline. Upstream, Downstream, Sampler and Sink are
// each optional depending on Mode. Intervals at or below zero fire on every
// tick.
type Options struct {
	Mode        Mode
	Upstream    *link.Link
	Downstream  *link.Link
	Sampler     loadcell.Sampler
	Conditioner *loadcell.Conditioner

	// Sink consumes validated upstream payloads in ModeMonitor.
	Sink func(payload []byte)

	SampleInterval time.Duration
	NotifyInterval time.Duration

	// DisableDedup turns off suppression of byte-identical consecutive
	// outbound payloads.
	DisableDedup bool

	Logger *logrus.Logger
}

// Pipeline is one node's forwarding engine. All methods run on the
// scheduler goroutine; the only cross-goroutine traffic is the upstream
// link's notification ring.
type Pipeline struct {
	mode   Mode
	up     *link.Link
	down   *link.Link
	sample loadcell.Sampler
	cond   *loadcell.Conditioner
	sink   func([]byte)
	logger *logrus.Entry

	sampleInterval time.Duration
	notifyInterval time.Duration
	dedup          bool

	start       time.Time
	lastSample  time.Time
	lastNotify  time.Time
	lastDisplay float64
	pending     []byte // latest validated upstream payload
	lastSent    []byte
}

// New builds a pipeline. The elapsed-ms epoch starts now.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Pipeline{
		mode:           opts.Mode,
		up:             opts.Upstream,
		down:           opts.Downstream,
		sample:         opts.Sampler,
		cond:           opts.Conditioner,
		sink:           opts.Sink,
		sampleInterval: opts.SampleInterval,
		notifyInterval: opts.NotifyInterval,
		dedup:          !opts.DisableDedup,
		start:          time.Now(),
		logger: logger.WithFields(logrus.Fields{
			"component": "pipeline",
			"mode":      opts.Mode.String(),
		}),
	}
}

// Tick advances both links, samples the local cell on its own cadence, and
// emits the newest value on the notify cadence. Never blocks.
func (p *Pipeline) Tick(ctx context.Context, now time.Time) {
	if p.up != nil {
		p.up.Tick(ctx)
	}
	if p.down != nil {
		p.down.Tick(ctx)
	}

	if p.sample != nil && p.due(&p.lastSample, p.sampleInterval, now) {
		p.takeSample(ctx)
	}

	if p.up != nil && p.up.Ready() {
		if payload, ok := p.up.Latest(); ok {
			p.ingest(payload)
		}
	}

	if p.due(&p.lastNotify, p.notifyInterval, now) {
		p.emit(now)
	}
}

// due reports whether a cadence fires at now and advances its marker.
func (p *Pipeline) due(last *time.Time, interval time.Duration, now time.Time) bool {
	if interval > 0 && now.Sub(*last) < interval {
		return false
	}
	*last = now
	return true
}

// takeSample reads the cell once and updates the conditioned display value.
// A not-ready ADC holds the previous value and retries next cadence.
func (p *Pipeline) takeSample(ctx context.Context) {
	raw, err := p.sample.ReadUnits(ctx)
	switch {
	case errors.Is(err, loadcell.ErrNotReady):
		return
	case err != nil:
		p.logger.WithError(err).Warn("Load cell read failed")
		return
	}
	p.lastDisplay = p.cond.Update(raw)
}

// ingest validates one upstream payload and keeps it as the latest
// forwardable value. Malformed data is dropped here and never propagated.
func (p *Pipeline) ingest(payload []byte) {
	if p.mode == ModeSensor {
		// A sensor node publishes its own readings; upstream traffic (if
		// any link is wired) is ignored.
		return
	}

	if err := wirefmt.Validate(payload); err != nil {
		p.logger.WithError(err).WithField("payload", string(payload)).
			Warn("Discarding malformed upstream payload")
		return
	}
	p.pending = append(p.pending[:0:0], payload...)
}

// emit builds the outbound payload for this interval and delivers it. The
// downstream hop only sees it when the link is ready with a live
// subscriber; otherwise the value is dropped, not queued.
func (p *Pipeline) emit(now time.Time) {
	payload := p.outbound(now)
	if payload == nil {
		return
	}
	if p.dedup && bytes.Equal(payload, p.lastSent) {
		return
	}

	switch p.mode {
	case ModeMonitor:
		if p.sink != nil {
			p.sink(payload)
			p.lastSent = payload
		}
	default:
		if p.down == nil {
			return
		}
		if !p.down.Ready() || !p.down.HasSubscriber() {
			// Nobody to notify; keep the readable value current so a central
			// can poll the characteristic before its subscription lands.
			_ = p.down.SetValue(payload)
			return
		}
		if err := p.down.Notify(payload); err != nil {
			p.logger.WithError(err).Warn("Downstream notify failed")
			return
		}
		p.lastSent = payload
	}
}

// outbound renders the payload for the current mode, nil when there is
// nothing to say yet.
func (p *Pipeline) outbound(now time.Time) []byte {
	switch p.mode {
	case ModeSensor:
		elapsed := uint32(now.Sub(p.start).Milliseconds())
		return wirefmt.ForceReport{ElapsedMs: elapsed, Pounds: p.lastDisplay}.Format()

	case ModeRelay, ModeMonitor:
		return p.pending

	case ModeBase:
		if p.pending == nil {
			return nil
		}
		report, err := wirefmt.ParseForceReport(p.pending)
		if err != nil {
			// pending was validated on ingest; a BASE payload arriving at a
			// base node is a misconfiguration worth logging once per value.
			p.logger.WithField("payload", string(p.pending)).
				Warn("Base node received non-force payload")
			p.pending = nil
			return nil
		}
		return wirefmt.BaseReport{Pounds: report.Pounds}.Format()

	default:
		return nil
	}
}

// Display returns the current conditioned display value (sensor nodes).
func (p *Pipeline) Display() float64 { return p.lastDisplay }
