package velocity

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/tracking"
)

// Tuner is implemented by sources whose gains can change at runtime.
type Tuner interface {
	Tuning() tracking.TuningParams
	SetTuning(u tracking.TuningUpdate)
}

var _ Tuner = (*Local)(nil)

// Handler serves a Source as the velocity service.
type Handler struct {
	src    Source
	logger *slog.Logger

	requests atomic.Uint64
	failures atomic.Uint64
}

// NewHandler wraps src.
func NewHandler(src Source, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{src: src, logger: logger.With("component", "velocity.handler")}
}

// Register mounts the service routes on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get(HealthPath, h.handleHealth)
	r.Post(DesiredVelocityPath, h.handleDesiredVelocity)
	if _, ok := h.src.(Tuner); ok {
		r.Get(TuningPath, h.handleGetTuning)
		r.Post(TuningPath, h.handleSetTuning)
	}
}

// NewApp returns a fiber app serving h.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "go-follow velocity service",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	h.Register(app)
	return app
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"requests": h.requests.Load(),
		"failures": h.failures.Load(),
	})
}

// handleDesiredVelocity computes velocities for one centroid.
func (h *Handler) handleDesiredVelocity(c *fiber.Ctx) error {
	h.requests.Add(1)

	var req Request
	if err := c.BodyParser(&req); err != nil || req.Centroid == nil {
		h.failures.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	cmd, err := h.src.Compute(c.UserContext(), *req.Centroid)
	if err != nil {
		h.failures.Add(1)
		status := fiber.StatusInternalServerError
		if errors.Is(err, target.ErrInvalidSample) {
			status = fiber.StatusBadRequest
		}
		h.logger.Debug("compute failed", "error", err, "centroid", *req.Centroid)
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(NewResponse(cmd))
}

func (h *Handler) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(h.src.(Tuner).Tuning())
}

// handleSetTuning applies a partial gain update and returns the new gains.
func (h *Handler) handleSetTuning(c *fiber.Ctx) error {
	var u tracking.TuningUpdate
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid tuning body"})
	}
	t := h.src.(Tuner)
	t.SetTuning(u)
	return c.JSON(t.Tuning())
}
