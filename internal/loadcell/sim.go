package loadcell

import (
	"context"
	"math"
	"sync"
)

// SimSampler is a deterministic load cell used by tests and the in-process
// simulation: a slow sinusoidal drift around zero plus an externally applied
// load. Safe for concurrent use; the simulate command adjusts the load from
// outside the scheduler goroutine.
type SimSampler struct {
	mu        sync.Mutex
	tick      int
	load      float64
	tared     float64
	Offset    float64 // fixed zero offset an unloaded bridge shows at power-up
	DriftAmp  float64 // peak drift in units, default 2.0
	DriftStep float64 // radians advanced per read, default 0.01
}

// NewSimSampler returns a simulated cell with gentle default drift.
func NewSimSampler() *SimSampler {
	return &SimSampler{DriftAmp: 2.0, DriftStep: 0.01}
}

// SetLoad applies a synthetic load in scaled units.
func (s *SimSampler) SetLoad(units float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = units
}

func (s *SimSampler) ReadUnits(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	drift := s.DriftAmp * math.Sin(float64(s.tick)*s.DriftStep)
	return s.Offset + drift + s.load - s.tared, nil
}

func (s *SimSampler) Tare(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drift := s.DriftAmp * math.Sin(float64(s.tick)*s.DriftStep)
	s.tared = s.Offset + drift + s.load
	return nil
}
