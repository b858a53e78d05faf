package control

import (
	"fmt"
	"math"
	"time"
)

// Config holds loop parameters.
type Config struct {
	// Threshold is the blocking clearance in meters.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Period is the cycle length.
	Period time.Duration `yaml:"period" json:"period"`

	Decay Decay `yaml:"decay" json:"decay"`

	// StopOnExit publishes a zero command when Run returns after having
	// started cycling.
	StopOnExit bool `yaml:"stop_on_exit" json:"stop_on_exit"`

	// HeartbeatEvery logs a summary line every N cycles. Zero disables it.
	HeartbeatEvery uint64 `yaml:"heartbeat_every" json:"heartbeat_every"`
}

// DefaultConfig returns a 100 Hz loop with a 1.1 m stop distance.
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		Period:         10 * time.Millisecond,
		Decay:          DefaultDecay(),
		StopOnExit:     true,
		HeartbeatEvery: 500, // ~5 s at 100 Hz
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) || c.Threshold < 0 {
		return fmt.Errorf("control: threshold must be a non-negative distance, got %v", c.Threshold)
	}
	if c.Period <= 0 {
		return fmt.Errorf("control: period must be positive, got %v", c.Period)
	}
	return c.Decay.Validate()
}
