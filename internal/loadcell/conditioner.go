package loadcell

import "math"

// Conditioner defaults, tuned on the rig's 50 lb cell.
const (
	DefaultDeadZone = 10.0
	DefaultAlpha    = 0.90

	// noiseFloor snaps near-zero display values to exactly zero so the wire
	// never carries residual subtraction noise like "0.03".
	noiseFloor = 0.02
)

// BaselineState is the running zero-load estimate maintained by the
// conditioner. It is created at sensor boot, right after the initial tare,
// and lives for the node lifetime.
type BaselineState struct {
	// Offset is the exponential estimate of the zero-load reading.
	Offset float64

	// LastValid is the most recently published display value.
	LastValid float64
}

// Conditioner converts raw scaled samples into display values using a
// baseline-tracking dead zone.
//
// The cell drifts slowly (thermal and mechanical) around its true zero. Any
// reading whose magnitude stays inside DeadZone is treated as "still at
// rest" and the baseline slow-follows it, so drift is absorbed instead of
// being reported as force. Readings outside the dead zone are reported
// relative to the most recently settled baseline, so a sustained load reads
// correctly even after a drift episode moved the nominal zero.
//
// Policy choices (the source rig variants disagreed; these are fixed here):
// the dead-zone comparison uses the raw value, and display values are
// clamped to non-negative since the cell is loaded in one direction only.
type Conditioner struct {
	DeadZone float64
	Alpha    float64
	state    BaselineState
}

// NewConditioner returns a conditioner with a zero baseline. Alpha outside
// [0, 1) or a non-positive dead zone fall back to the defaults.
func NewConditioner(deadZone, alpha float64) *Conditioner {
	if deadZone <= 0 {
		deadZone = DefaultDeadZone
	}
	if alpha < 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	return &Conditioner{DeadZone: deadZone, Alpha: alpha}
}

// Update feeds one raw sample and returns the display value. All published
// values round through float32, matching the single-precision arithmetic of
// the boards the wire format was designed against.
func (c *Conditioner) Update(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		// Reject without touching the baseline; hold zero.
		c.state.LastValid = 0
		return 0
	}

	var display float64
	if math.Abs(raw) <= c.DeadZone {
		// At rest: slow-follow the baseline toward the current reading.
		c.state.Offset = c.Alpha*c.state.Offset + (1-c.Alpha)*raw
		display = 0
	} else {
		display = raw - c.state.Offset
		if math.Abs(display) < noiseFloor {
			display = 0
		}
		if display < 0 {
			display = 0
		}
	}

	display = float64(float32(display))
	c.state.LastValid = display
	return display
}

// State returns a copy of the current baseline state.
func (c *Conditioner) State() BaselineState {
	return c.state
}

// Reset clears the baseline, typically after a re-tare.
func (c *Conditioner) Reset() {
	c.state = BaselineState{}
}
