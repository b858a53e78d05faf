package velocity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/tracking"
)

// Local evaluates one PID per axis in-process:
//
//	depth -> Linear, X -> Angular, Y -> Joint (when tilt is enabled)
type Local struct {
	distance *tracking.PID
	bearing  *tracking.PID
	tilt     *tracking.PID
	withTilt bool
	logger   *slog.Logger
}

// NewLocal builds the three axes from cfg.
func NewLocal(cfg tracking.Config, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		distance: tracking.NewPID(cfg.Distance, cfg.SamplePeriod),
		bearing:  tracking.NewPID(cfg.Bearing, cfg.SamplePeriod),
		tilt:     tracking.NewPID(cfg.Tilt, cfg.SamplePeriod),
		withTilt: cfg.TiltEnabled,
		logger:   logger.With("component", "velocity.local"),
	}
}

// Compute never blocks and only fails on a sample no controller can use.
func (l *Local) Compute(ctx context.Context, s target.Sample) (robot.Command, error) {
	if err := s.Validate(); err != nil {
		return robot.Command{}, err
	}

	l.logger.Debug("control error",
		"bearing_px", -l.bearing.Error(s.X),
		"distance_m", -l.distance.Error(s.Depth),
	)

	cmd := robot.NewCommand(l.distance.Update(s.Depth), l.bearing.Update(s.X))
	if l.withTilt {
		cmd = cmd.WithJoint(l.tilt.Update(s.Y))
	}
	if !cmd.IsFinite() {
		return robot.Command{}, fmt.Errorf("velocity: controller produced %v", cmd)
	}
	return cmd, nil
}

// Reset clears every axis' integral and derivative memory.
func (l *Local) Reset() {
	l.distance.Reset()
	l.bearing.Reset()
	l.tilt.Reset()
}

// Tuning returns the current gains.
func (l *Local) Tuning() tracking.TuningParams {
	return tracking.TuningParams{
		Distance: l.distance.Gains(),
		Bearing:  l.bearing.Gains(),
		Tilt:     l.tilt.Gains(),
	}
}

// SetTuning applies a partial gain update to the axes.
func (l *Local) SetTuning(u tracking.TuningUpdate) {
	l.distance.SetGains(u.Distance)
	l.bearing.SetGains(u.Bearing)
	l.tilt.SetGains(u.Tilt)
	l.logger.Info("gains updated", "gains", l.Tuning())
}
