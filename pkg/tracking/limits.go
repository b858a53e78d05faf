// Package tracking provides the single-axis feedback controllers used to
// follow a target: one PID per controlled axis, each with a fixed setpoint.
package tracking

// Image geometry of the 640x480 head camera the default setpoints assume.
const (
	DefaultImageWidth  = 640
	DefaultImageHeight = 480

	// DefaultStandoff is the distance in meters the robot keeps from the target.
	DefaultStandoff = 2.0
)

// clamp limits a value to a range.
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
