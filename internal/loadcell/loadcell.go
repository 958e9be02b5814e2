// Package loadcell defines the sampling boundary to the HX711 bridge
// amplifier and the signal conditioning that turns its noisy scaled output
// into a stable, drift-compensated force reading.
package loadcell

import (
	"context"
	"errors"
)

// ErrNotReady indicates the underlying ADC has not finished a conversion.
// Callers hold the last valid reading and retry on the next tick; this is
// never fatal.
var ErrNotReady = errors.New("load cell not ready")

// Sampler is the HX711 boundary: readings already converted from ADC counts
// to physical units by the driver's calibration factor.
type Sampler interface {
	// ReadUnits returns one scaled sample. Returns ErrNotReady when no
	// conversion is available yet.
	ReadUnits(ctx context.Context) (float64, error)

	// Tare resets the zero reference against current (assumed unloaded)
	// conditions.
	Tare(ctx context.Context) error
}

// ScaledSampler wraps a Sampler with a post-calibration multiplier. Some
// boards in the rig need a correction factor on top of the driver's
// calibration (historically a divide by 2); keeping it configurable here
// avoids burying a magic constant in the sampling path.
type ScaledSampler struct {
	Source Sampler
	Scale  float64
}

// NewScaledSampler wraps src with the given multiplier. A zero scale is
// treated as 1.0 so an unset config field passes readings through.
func NewScaledSampler(src Sampler, scale float64) *ScaledSampler {
	if scale == 0 {
		scale = 1.0
	}
	return &ScaledSampler{Source: src, Scale: scale}
}

func (s *ScaledSampler) ReadUnits(ctx context.Context) (float64, error) {
	raw, err := s.Source.ReadUnits(ctx)
	if err != nil {
		return 0, err
	}
	return raw * s.Scale, nil
}

func (s *ScaledSampler) Tare(ctx context.Context) error {
	return s.Source.Tare(ctx)
}
