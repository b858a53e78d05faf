package robot

import (
	"fmt"
	"math"
)

// Command is one actuator command: base velocities plus an optional
// secondary joint velocity (the head tilt joint on TIAGo-style robots).
//
// Linear is forward velocity in m/s, Angular is yaw rate in rad/s,
// Joint is in rad/s. A nil Joint means the robot has no secondary axis.
type Command struct {
	Linear  float64  `json:"linear"`
	Angular float64  `json:"angular"`
	Joint   *float64 `json:"joint,omitempty"`
}

// Stop is the all-zero command.
var Stop = Command{}

// NewCommand builds a base-only command.
func NewCommand(linear, angular float64) Command {
	return Command{Linear: linear, Angular: angular}
}

// WithJoint returns a copy of c carrying joint velocity v.
func (c Command) WithJoint(v float64) Command {
	c.Joint = &v
	return c
}

// WithoutJoint returns a copy of c with no secondary axis.
func (c Command) WithoutJoint() Command {
	c.Joint = nil
	return c
}

// JointValue returns the joint velocity and whether one is present.
func (c Command) JointValue() (float64, bool) {
	if c.Joint == nil {
		return 0, false
	}
	return *c.Joint, true
}

// Clone returns a deep copy so the joint pointer is never shared between cycles.
func (c Command) Clone() Command {
	if c.Joint != nil {
		v := *c.Joint
		c.Joint = &v
	}
	return c
}

// IsFinite reports whether every present component is a real number.
func (c Command) IsFinite() bool {
	if !finite(c.Linear) || !finite(c.Angular) {
		return false
	}
	if c.Joint != nil && !finite(*c.Joint) {
		return false
	}
	return true
}

// String formats the command for logs.
func (c Command) String() string {
	if c.Joint == nil {
		return fmt.Sprintf("lin=%.3f ang=%.3f", c.Linear, c.Angular)
	}
	return fmt.Sprintf("lin=%.3f ang=%.3f joint=%.3f", c.Linear, c.Angular, *c.Joint)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
