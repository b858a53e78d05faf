// Package scan reduces laser range sweeps to a single frontal clearance.
//
// A Filter owns a Clearance cell. Sweeps arrive asynchronously (websocket,
// serial reader) and each one refreshes the cell at most once; the control
// loop only ever reads the latest value.
package scan

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// Defaults for a 720-beam front arc.
const (
	DefaultWindowStart = 260
	DefaultWindowEnd   = 400
	DefaultMaxDistance = 5.0 // meters, the "clear" sentinel
)

// Sweep is one laser scan. Angle and range metadata are optional; zero
// values mean "unknown" and disable the corresponding checks.
type Sweep struct {
	Ranges         []float64 `json:"ranges"`
	AngleMin       float64   `json:"angle_min,omitempty"`
	AngleIncrement float64   `json:"angle_increment,omitempty"`
	RangeMin       float64   `json:"range_min,omitempty"`
	RangeMax       float64   `json:"range_max,omitempty"`
}

// Window is a half-open index range [Start, End) over Sweep.Ranges.
type Window struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// DefaultWindow returns the forward-facing slice of a 720-beam sweep.
func DefaultWindow() Window {
	return Window{Start: DefaultWindowStart, End: DefaultWindowEnd}
}

// Validate checks the window is non-empty and non-negative.
func (w Window) Validate() error {
	if w.Start < 0 {
		return fmt.Errorf("scan: window start %d is negative", w.Start)
	}
	if w.End <= w.Start {
		return fmt.Errorf("scan: window [%d, %d) is empty", w.Start, w.End)
	}
	return nil
}

// WindowFromAngles converts angular bounds (radians, from < to) into an
// index window for sweeps starting at angleMin with the given increment.
func WindowFromAngles(angleMin, increment, from, to float64) (Window, error) {
	if increment <= 0 || math.IsNaN(increment) {
		return Window{}, fmt.Errorf("scan: angle increment must be positive, got %v", increment)
	}
	if to <= from {
		return Window{}, fmt.Errorf("scan: angular window [%v, %v] is empty", from, to)
	}
	// eps absorbs rounding when a bound sits exactly on a beam.
	const eps = 1e-9
	start := int(math.Ceil((from-angleMin)/increment - eps))
	end := int(math.Floor((to-angleMin)/increment+eps)) + 1
	if start < 0 {
		start = 0
	}
	w := Window{Start: start, End: end}
	return w, w.Validate()
}

// AngleWindow is a forward arc in radians, in the sweep's own frame.
type AngleWindow struct {
	From float64 `yaml:"from" json:"from"`
	To   float64 `yaml:"to" json:"to"`
}

// Validate checks the arc is finite and non-empty.
func (a AngleWindow) Validate() error {
	if math.IsNaN(a.From) || math.IsInf(a.From, 0) || math.IsNaN(a.To) || math.IsInf(a.To, 0) {
		return fmt.Errorf("scan: angular window [%v, %v] is not finite", a.From, a.To)
	}
	if a.To <= a.From {
		return fmt.Errorf("scan: angular window [%v, %v] is empty", a.From, a.To)
	}
	return nil
}

// Clearance is the latest frontal distance in meters. It is safe for one
// writer and any number of readers.
type Clearance struct {
	bits atomic.Uint64
}

// NewClearance returns a cell holding initial.
func NewClearance(initial float64) *Clearance {
	c := &Clearance{}
	c.Store(initial)
	return c
}

// Load returns the latest clearance.
func (c *Clearance) Load() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Store replaces the clearance.
func (c *Clearance) Store(v float64) {
	c.bits.Store(math.Float64bits(v))
}

// Config holds RangeFilter parameters.
type Config struct {
	Window Window `yaml:"window" json:"window"`

	// Angles, when set, selects the window by bearing for sweeps that carry
	// angle_min and angle_increment. Sweeps without them use Window.
	Angles *AngleWindow `yaml:"angles,omitempty" json:"angles,omitempty"`

	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`
}

// DefaultConfig returns the filter parameters for a 720-beam scanner.
func DefaultConfig() Config {
	return Config{
		Window:      DefaultWindow(),
		MaxDistance: DefaultMaxDistance,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return err
	}
	if c.Angles != nil {
		if err := c.Angles.Validate(); err != nil {
			return err
		}
	}
	if !(c.MaxDistance > 0) || math.IsInf(c.MaxDistance, 0) {
		return fmt.Errorf("scan: max distance must be positive and finite, got %v", c.MaxDistance)
	}
	return nil
}

// Filter turns sweeps into clearance updates.
type Filter struct {
	cfg       Config
	clearance *Clearance
	logger    *slog.Logger

	sweeps atomic.Uint64
	faults atomic.Uint64
}

// NewFilter creates a filter whose clearance starts at cfg.MaxDistance, so
// the robot starts unblocked.
func NewFilter(cfg Config, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		cfg:       cfg,
		clearance: NewClearance(cfg.MaxDistance),
		logger:    logger,
	}
}

// Clearance returns the latest frontal clearance in meters.
func (f *Filter) Clearance() float64 {
	return f.clearance.Load()
}

// Update folds one sweep into the clearance. It returns false when the sweep
// was unusable; the previous clearance is then kept.
func (f *Filter) Update(s Sweep) bool {
	f.sweeps.Add(1)

	d, err := f.frontal(s)
	if err != nil {
		f.faults.Add(1)
		f.logger.Debug("sweep ignored, holding clearance",
			"error", err,
			"beams", len(s.Ranges),
			"clearance", f.clearance.Load(),
		)
		return false
	}
	f.clearance.Store(d)
	return true
}

// frontal returns the minimum valid reading inside the window.
func (f *Filter) frontal(s Sweep) (float64, error) {
	if len(s.Ranges) == 0 {
		return 0, ErrEmptySweep
	}

	w, err := f.window(s)
	if err != nil {
		return 0, err
	}
	start, end := w.Start, w.End
	if end > len(s.Ranges) {
		end = len(s.Ranges)
	}
	if start >= end {
		return 0, fmt.Errorf("%w: %d beams, window starts at %d", ErrEmptyWindow, len(s.Ranges), start)
	}

	valid := make([]float64, 0, end-start)
	for _, r := range s.Ranges[start:end] {
		if v, ok := f.normalize(r, s); ok {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, ErrNoValidReadings
	}
	return floats.Min(valid), nil
}

// window picks the beams to inspect for s.
func (f *Filter) window(s Sweep) (Window, error) {
	if f.cfg.Angles == nil || s.AngleIncrement == 0 {
		return f.cfg.Window, nil
	}
	w, err := WindowFromAngles(s.AngleMin, s.AngleIncrement, f.cfg.Angles.From, f.cfg.Angles.To)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrEmptyWindow, err)
	}
	return w, nil
}

// normalize drops invalid beams and caps "no return" at MaxDistance.
func (f *Filter) normalize(r float64, s Sweep) (float64, bool) {
	switch {
	case math.IsNaN(r), r < 0:
		return 0, false
	case math.IsInf(r, 1):
		return f.cfg.MaxDistance, true
	case s.RangeMin > 0 && r < s.RangeMin:
		return 0, false
	case s.RangeMax > 0 && r > s.RangeMax:
		return 0, false
	case r > f.cfg.MaxDistance:
		return f.cfg.MaxDistance, true
	}
	return r, true
}

// Stats reports sweep counters.
type Stats struct {
	Sweeps    uint64  `json:"sweeps"`
	Faults    uint64  `json:"faults"`
	Clearance float64 `json:"clearance"`
}

// Stats returns the filter counters and current clearance.
func (f *Filter) Stats() Stats {
	return Stats{
		Sweeps:    f.sweeps.Load(),
		Faults:    f.faults.Load(),
		Clearance: f.clearance.Load(),
	}
}
