package tracking

import (
	"fmt"
	"math"
	"time"
)

// AxisConfig holds the fixed gains and setpoint of one axis.
type AxisConfig struct {
	Kp       float64 `yaml:"kp" json:"kp"`
	Ki       float64 `yaml:"ki" json:"ki"`
	Kd       float64 `yaml:"kd" json:"kd"`
	Setpoint float64 `yaml:"setpoint" json:"setpoint"`

	// Output limits. Both zero means unlimited.
	OutputMin float64 `yaml:"output_min" json:"output_min"`
	OutputMax float64 `yaml:"output_max" json:"output_max"`
}

// Limited reports whether output limits are configured.
func (a AxisConfig) Limited() bool {
	return a.OutputMin != 0 || a.OutputMax != 0
}

// Validate checks gains are finite and limits ordered.
func (a AxisConfig) Validate() error {
	for name, v := range map[string]float64{
		"kp": a.Kp, "ki": a.Ki, "kd": a.Kd, "setpoint": a.Setpoint,
		"output_min": a.OutputMin, "output_max": a.OutputMax,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
	}
	if a.Limited() && a.OutputMin >= a.OutputMax {
		return fmt.Errorf("output_min %v must be below output_max %v", a.OutputMin, a.OutputMax)
	}
	return nil
}

// Config holds the three follow axes.
type Config struct {
	// Distance drives forward velocity from target depth (meters).
	Distance AxisConfig `yaml:"distance" json:"distance"`

	// Bearing drives yaw rate from the target's horizontal pixel offset.
	Bearing AxisConfig `yaml:"bearing" json:"bearing"`

	// Tilt drives the head joint from the vertical pixel offset.
	Tilt AxisConfig `yaml:"tilt" json:"tilt"`

	// TiltEnabled emits a joint velocity. Bases without a head leave it off.
	TiltEnabled bool `yaml:"tilt_enabled" json:"tilt_enabled"`

	// SamplePeriod is the dt used when wall time cannot be measured
	// (first evaluation, clock going backwards).
	SamplePeriod time.Duration `yaml:"sample_period" json:"sample_period"`
}

// DefaultConfig returns the TIAGo follow gains: keep 2 m from the target and
// center it in a 640x480 image.
func DefaultConfig() Config {
	return Config{
		Distance: AxisConfig{
			Kp:       -1,
			Ki:       0,
			Kd:       -2,
			Setpoint: DefaultStandoff,
		},
		Bearing: AxisConfig{
			Kp:       0.004,
			Ki:       0,
			Kd:       0.008,
			Setpoint: DefaultImageWidth / 2,
		},
		Tilt: AxisConfig{
			Kp:       0.004,
			Ki:       0,
			Kd:       0.008,
			Setpoint: DefaultImageHeight / 2,
		},
		TiltEnabled:  true,
		SamplePeriod: 10 * time.Millisecond,
	}
}

// BaseOnlyConfig returns the default gains without the head axis, for
// differential-drive bases.
func BaseOnlyConfig() Config {
	cfg := DefaultConfig()
	cfg.TiltEnabled = false
	return cfg
}

// LimitedConfig returns the default gains with conservative output limits,
// useful when bringing up a new base.
func LimitedConfig() Config {
	cfg := DefaultConfig()
	cfg.Distance.OutputMin, cfg.Distance.OutputMax = -0.3, 0.6
	cfg.Bearing.OutputMin, cfg.Bearing.OutputMax = -0.8, 0.8
	cfg.Tilt.OutputMin, cfg.Tilt.OutputMax = -0.5, 0.5
	return cfg
}

// Validate checks every axis.
func (c *Config) Validate() error {
	axes := []struct {
		name string
		cfg  AxisConfig
	}{
		{"distance", c.Distance},
		{"bearing", c.Bearing},
		{"tilt", c.Tilt},
	}
	for _, a := range axes {
		if err := a.cfg.Validate(); err != nil {
			return fmt.Errorf("tracking: %s axis: %w", a.name, err)
		}
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("tracking: sample period must be positive, got %v", c.SamplePeriod)
	}
	return nil
}
