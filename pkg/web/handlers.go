package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-follow/pkg/bridge"
	"github.com/teslashibe/go-follow/pkg/control"
	"github.com/teslashibe/go-follow/pkg/hub"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/tracking"
	"github.com/teslashibe/go-follow/pkg/velocity"
)

var errMissingCentroid = errors.New("missing centroid")

// CentroidRequest is the body of POST /api/centroid.
type CentroidRequest struct {
	Centroid *target.Sample `json:"centroid"`
}

// CentroidResponse answers POST /api/centroid.
type CentroidResponse struct {
	Check bool   `json:"check"`
	Error string `json:"error,omitempty"`
}

// Status is the body of GET /api/status.
type Status struct {
	Loop     *control.Stats        `json:"loop,omitempty"`
	Scan     *scan.Stats           `json:"scan,omitempty"`
	Target   target.Stats          `json:"target"`
	CmdVel   *hub.Stats            `json:"cmd_vel,omitempty"`
	Robots   *bridge.Stats         `json:"robots,omitempty"`
	Velocity *velocity.RemoteStats `json:"velocity,omitempty"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	state := "unknown"
	if s.deps.Loop != nil {
		state = s.deps.Loop.State().String()
	}
	return c.JSON(fiber.Map{"status": "ok", "state": state})
}

// handleCentroid accepts one target observation.
func (s *Server) handleCentroid(c *fiber.Ctx) error {
	var req CentroidRequest
	if err := c.BodyParser(&req); err != nil {
		s.deps.Intake.Reject(err)
		return c.Status(fiber.StatusBadRequest).JSON(CentroidResponse{Error: err.Error()})
	}
	if req.Centroid == nil {
		s.deps.Intake.Reject(errMissingCentroid)
		return c.Status(fiber.StatusBadRequest).JSON(CentroidResponse{Error: errMissingCentroid.Error()})
	}
	if err := s.deps.Intake.Offer(*req.Centroid); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(CentroidResponse{Error: err.Error()})
	}
	return c.JSON(CentroidResponse{Check: true})
}

// Snapshot gathers the status of every wired component.
func (s *Server) Snapshot() Status {
	st := Status{Target: s.deps.Intake.Stats()}
	if s.deps.Loop != nil {
		v := s.deps.Loop.Stats()
		st.Loop = &v
	}
	if s.deps.Filter != nil {
		v := s.deps.Filter.Stats()
		st.Scan = &v
	}
	if s.deps.CmdVel != nil {
		v := s.deps.CmdVel.Stats()
		st.CmdVel = &v
	}
	if s.deps.Bridge != nil {
		v := s.deps.Bridge.Stats()
		st.Robots = &v
	}
	if s.deps.Remote != nil {
		v := s.deps.Remote.Stats()
		st.Velocity = &v
	}
	return st
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Snapshot())
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.deps.Tuner.Tuning())
}

func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var u tracking.TuningUpdate
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid tuning body"})
	}
	s.deps.Tuner.SetTuning(u)
	s.logger.Info("gains updated", "tuning", s.deps.Tuner.Tuning())
	return c.JSON(s.deps.Tuner.Tuning())
}
