// Package control turns asynchronous target and obstacle inputs into exactly
// one safe actuator command per cycle.
//
// Each cycle the Loop picks a candidate (a fresh velocity computation, or the
// decayed previous command when the target is stale) and passes it through
// Arbitrate, which has the final say on forward motion.
package control

import "github.com/teslashibe/go-follow/pkg/robot"

// DefaultThreshold is the frontal clearance in meters at or below which
// forward motion is cut.
const DefaultThreshold = 1.1

// Arbitrate returns candidate unchanged when clearance > threshold. Otherwise
// forward velocity is forced to exactly zero while turning and the secondary
// joint pass through, so the robot can still steer away.
//
// A NaN clearance compares false and therefore blocks.
func Arbitrate(candidate robot.Command, clearance, threshold float64) robot.Command {
	final := candidate.Clone()
	if clearance > threshold {
		return final
	}
	final.Linear = 0
	return final
}

// Blocked reports whether Arbitrate would cut forward motion.
func Blocked(clearance, threshold float64) bool {
	return !(clearance > threshold)
}
