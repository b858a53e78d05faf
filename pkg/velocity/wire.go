package velocity

import (
	"fmt"

	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/target"
)

// Endpoint paths served by Handler and called by Remote.
const (
	DesiredVelocityPath = "/api/des_vel"
	HealthPath          = "/health"
	TuningPath          = "/api/tuning"
)

// Vector3 mirrors a geometry vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Twist is a linear plus angular velocity pair.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Request carries the target centroid to the velocity service.
type Request struct {
	Centroid *target.Sample `json:"centroid"`
}

// Response carries the desired velocities back. Only linear.x, angular.z and
// the optional joint are used.
type Response struct {
	DesiredVelocities Twist    `json:"desired_velocities"`
	Joint             *float64 `json:"joint,omitempty"`
}

// NewResponse encodes a command.
func NewResponse(cmd robot.Command) Response {
	r := Response{
		DesiredVelocities: Twist{
			Linear:  Vector3{X: cmd.Linear},
			Angular: Vector3{Z: cmd.Angular},
		},
	}
	if v, ok := cmd.JointValue(); ok {
		r.Joint = &v
	}
	return r
}

// Command decodes the response, rejecting non-finite values.
func (r Response) Command() (robot.Command, error) {
	cmd := robot.NewCommand(r.DesiredVelocities.Linear.X, r.DesiredVelocities.Angular.Z)
	if r.Joint != nil {
		cmd = cmd.WithJoint(*r.Joint)
	}
	if !cmd.IsFinite() {
		return robot.Command{}, fmt.Errorf("%w: non-finite command %v", ErrBadResponse, cmd)
	}
	return cmd, nil
}
