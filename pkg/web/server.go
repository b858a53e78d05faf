// Package web serves the follower's HTTP and websocket API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-follow/pkg/bridge"
	"github.com/teslashibe/go-follow/pkg/control"
	"github.com/teslashibe/go-follow/pkg/hub"
	"github.com/teslashibe/go-follow/pkg/protocol"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/velocity"
)

// DefaultStatusInterval is how often the status stream is refreshed.
const DefaultStatusInterval = 250 * time.Millisecond

// Config holds server options.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// RequestLog enables the fiber access log.
	RequestLog bool `yaml:"request_log" json:"request_log"`

	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`
}

// DefaultConfig returns the default server options.
func DefaultConfig() Config {
	return Config{
		Listen:         ":8080",
		StatusInterval: DefaultStatusInterval,
	}
}

// Validate checks the server options.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("web: listen address is required")
	}
	if c.StatusInterval <= 0 {
		return errors.New("web: status interval must be positive")
	}
	return nil
}

// Deps are the components the API exposes. Only Intake is required.
type Deps struct {
	Intake *target.Intake
	Loop   *control.Loop
	Filter *scan.Filter
	CmdVel *hub.Hub
	Bridge *bridge.Bridge
	Remote *velocity.Remote
	Tuner  velocity.Tuner
}

// Server is the follower API server.
type Server struct {
	cfg    Config
	deps   Deps
	app    *fiber.App
	logger *slog.Logger

	statusHub *hub.Hub
}

// NewServer builds the fiber app and mounts every route.
func NewServer(cfg Config, deps Deps, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Intake == nil {
		return nil, errors.New("web: target intake is required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "web")

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    log,
		statusHub: hub.New("status", log),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-follow",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.RequestLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
			Output: os.Stdout,
		}))
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/centroid", s.handleCentroid)
	api.Get("/status", s.handleStatus)
	if deps.Tuner != nil {
		api.Get("/tuning", s.handleGetTuning)
		api.Post("/tuning", s.handleSetTuning)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", s.statusHub.Handler())
	if deps.CmdVel != nil {
		app.Get("/ws/cmd_vel", deps.CmdVel.Handler())
	}
	if deps.Bridge != nil {
		deps.Bridge.RegisterRoutes(app)
		deps.Bridge.RegisterAPIRoutes(api)
	}

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// StatusHub returns the hub feeding /ws/status.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Run serves on the configured address until ctx is cancelled. It also runs
// the status hub and its publisher.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.publishStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("api listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// publishStatus pushes a status message to /ws/status subscribers and to
// connected robots.
func (s *Server) publishStatus(ctx context.Context) {
	if s.deps.Loop == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			robots := s.deps.Bridge != nil && s.deps.Bridge.RobotCount() > 0
			if s.statusHub.ClientCount() == 0 && !robots {
				continue
			}
			msg, err := protocol.NewStatusMessage(s.loopStatus())
			if err != nil {
				continue
			}
			if frame, err := hub.Encode(msg); err == nil {
				s.statusHub.Broadcast(frame)
			}
			if robots {
				s.deps.Bridge.Broadcast(msg)
			}
		}
	}
}

func (s *Server) loopStatus() protocol.StatusData {
	st := s.deps.Loop.Stats()
	return protocol.StatusData{
		RunID:     st.RunID,
		State:     st.State,
		Cycles:    st.Cycles,
		Clearance: st.Clearance,
		Blocked:   control.Blocked(st.Clearance, s.deps.Loop.Config().Threshold),
	}
}
