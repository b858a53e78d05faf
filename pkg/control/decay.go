package control

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-follow/pkg/robot"
)

// DefaultDecayFactor damps the previous command on each stale cycle.
const DefaultDecayFactor = 0.8

// Decay produces the candidate for cycles without fresh target data: the
// previous base velocities scaled by Factor, converging geometrically to rest.
type Decay struct {
	Factor float64 `yaml:"factor" json:"factor"`

	// HoldJoint keeps the secondary joint at its last value; otherwise it is
	// zeroed.
	HoldJoint bool `yaml:"hold_joint" json:"hold_joint"`
}

// DefaultDecay returns factor 0.8 with the joint held.
func DefaultDecay() Decay {
	return Decay{Factor: DefaultDecayFactor, HoldJoint: true}
}

// Validate checks the factor lies in [0, 1).
func (d Decay) Validate() error {
	if math.IsNaN(d.Factor) || d.Factor < 0 || d.Factor >= 1 {
		return fmt.Errorf("control: decay factor must be in [0, 1), got %v", d.Factor)
	}
	return nil
}

// Apply returns the decayed successor of prev.
func (d Decay) Apply(prev robot.Command) robot.Command {
	next := robot.NewCommand(prev.Linear*d.Factor, prev.Angular*d.Factor)
	if v, ok := prev.JointValue(); ok {
		if d.HoldJoint {
			next = next.WithJoint(v)
		} else {
			next = next.WithJoint(0)
		}
	}
	return next
}
