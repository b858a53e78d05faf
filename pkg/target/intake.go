// Package target holds the latest observation of the followed target.
//
// Perception pushes samples whenever it has them; the control loop pulls at
// most one per cycle. Only the newest sample is kept: an arrival replaces an
// unconsumed one instead of queueing behind it.
package target

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Sample is one observation of the target: image-plane centroid in pixels and
// depth in meters.
type Sample struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Depth float64 `json:"z"`
}

// UnmarshalJSON requires x, y and z to be present. A missing coordinate
// would decode as 0 and pass validation as a target at the image corner.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
		Z *float64 `json:"z"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.X == nil:
		return fmt.Errorf("%w: missing x", ErrInvalidSample)
	case raw.Y == nil:
		return fmt.Errorf("%w: missing y", ErrInvalidSample)
	case raw.Z == nil:
		return fmt.Errorf("%w: missing z", ErrInvalidSample)
	}
	*s = Sample{X: *raw.X, Y: *raw.Y, Depth: *raw.Z}
	return nil
}

// Validate checks the sample can drive a controller.
func (s Sample) Validate() error {
	for name, v := range map[string]float64{"x": s.X, "y": s.Y, "z": s.Depth} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidSample, name, v)
		}
	}
	if s.Depth < 0 {
		return fmt.Errorf("%w: negative depth %v", ErrInvalidSample, s.Depth)
	}
	return nil
}

// Intake is a single-slot mailbox with a freshness flag.
type Intake struct {
	logger *slog.Logger

	mu          sync.Mutex
	sample      Sample
	fresh       bool
	lastArrival time.Time

	accepted   uint64
	rejected   uint64
	consumed   uint64
	overwrites uint64
}

// NewIntake creates an empty intake.
func NewIntake(logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{logger: logger}
}

// OnArrival stores s and marks it fresh. It returns the acknowledgment sent
// back to the producer: false when the sample was rejected.
func (in *Intake) OnArrival(s Sample) bool {
	return in.Offer(s) == nil
}

// Offer is OnArrival with the rejection reason.
func (in *Intake) Offer(s Sample) error {
	if err := s.Validate(); err != nil {
		in.mu.Lock()
		in.rejected++
		in.mu.Unlock()
		in.logger.Debug("target sample rejected", "error", err)
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fresh {
		in.overwrites++
	}
	in.sample = s
	in.fresh = true
	in.lastArrival = time.Now()
	in.accepted++
	return nil
}

// Reject counts a sample refused before it could be decoded.
func (in *Intake) Reject(reason error) {
	in.mu.Lock()
	in.rejected++
	in.mu.Unlock()
	in.logger.Debug("target sample rejected", "error", reason)
}

// Consume returns the latest sample and whether it arrived since the previous
// Consume, clearing the flag in the same critical section. Without any arrival
// it returns the zero Sample and false; callers must not compute velocities
// from a stale sample.
func (in *Intake) Consume() (Sample, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	fresh := in.fresh
	in.fresh = false
	if fresh {
		in.consumed++
	}
	return in.sample, fresh
}

// Stats reports intake counters.
type Stats struct {
	Accepted    uint64    `json:"accepted"`
	Rejected    uint64    `json:"rejected"`
	Consumed    uint64    `json:"consumed"`
	Overwritten uint64    `json:"overwritten"`
	LastArrival time.Time `json:"last_arrival,omitempty"`
	Last        Sample    `json:"last"`
}

// Stats returns a snapshot of the counters.
func (in *Intake) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return Stats{
		Accepted:    in.accepted,
		Rejected:    in.rejected,
		Consumed:    in.consumed,
		Overwritten: in.overwrites,
		LastArrival: in.lastArrival,
		Last:        in.sample,
	}
}
