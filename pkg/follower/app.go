package follower

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-follow/pkg/bridge"
	"github.com/teslashibe/go-follow/pkg/control"
	"github.com/teslashibe/go-follow/pkg/hub"
	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/velocity"
	"github.com/teslashibe/go-follow/pkg/web"
)

// App is the follower application.
// It owns every component and their lifecycle.
type App struct {
	cfg    Config
	logger *slog.Logger

	// Inputs
	filter *scan.Filter
	intake *target.Intake
	serial io.ReadCloser

	// Velocity
	source velocity.Source
	local  *velocity.Local
	remote *velocity.Remote

	// Outputs
	cmdHub  *hub.Hub
	bridge  *bridge.Bridge
	httpPub *robot.HTTPPublisher

	loop   *control.Loop
	server *web.Server

	// openSerial is swapped in tests.
	openSerial func(scan.SerialConfig) (io.ReadCloser, error)
}

// New creates a follower with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		openSerial: func(sc scan.SerialConfig) (io.ReadCloser, error) {
			return scan.OpenSerial(sc)
		},
	}, nil
}

// Init builds all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	a.filter = scan.NewFilter(a.cfg.Scan, a.logger.With("component", "scan"))
	a.intake = target.NewIntake(a.logger.With("component", "target"))
	a.bridge = bridge.New(a.filter, a.intake, a.logger.With("component", "bridge"))
	a.cmdHub = hub.New("cmd_vel", a.logger)

	switch a.cfg.Mode {
	case ModeRemote:
		a.remote = velocity.NewRemote(a.cfg.Velocity, velocity.WithLogger(a.logger))
		a.source = a.remote
	default:
		a.local = velocity.NewLocal(a.cfg.Tracking, a.logger)
		a.source = a.local
	}

	pubs := robot.Multi{hub.NewCmdVelPublisher(a.cmdHub)}
	switch a.cfg.Actuator.Mode {
	case ActuatorHTTP:
		a.httpPub = robot.NewHTTPPublisher(a.cfg.Actuator.BaseURL, a.cfg.Actuator.Timeout,
			a.logger.With("component", "actuator"))
		pubs = append(pubs, a.httpPub)
	default:
		pubs = append(pubs, a.bridge)
	}

	loop, err := control.NewLoop(a.cfg.Control, control.Deps{
		Source:    a.source,
		Clearance: a.filter,
		Intake:    a.intake,
		Publisher: pubs,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("control loop: %w", err)
	}
	a.loop = loop

	deps := web.Deps{
		Intake: a.intake,
		Loop:   a.loop,
		Filter: a.filter,
		CmdVel: a.cmdHub,
		Bridge: a.bridge,
		Remote: a.remote,
	}
	if a.local != nil {
		deps.Tuner = a.local
	}
	server, err := web.NewServer(a.cfg.Web, deps, a.logger)
	if err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	a.server = server

	if a.cfg.Serial.Port != "" {
		port, err := a.openSerial(a.cfg.Serial)
		if err != nil {
			return fmt.Errorf("scan serial: %w", err)
		}
		a.serial = port
	}

	a.logger.Info("follower initialized",
		"mode", a.cfg.Mode,
		"actuator", a.cfg.Actuator.Mode,
		"period", a.cfg.Control.Period,
		"threshold", a.cfg.Control.Threshold,
		"run_id", a.loop.RunID(),
	)
	return nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. The loop publishes its final stop before the actuators close.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return fmt.Errorf("follower: Run called before Init")
	}

	// Actuators outlive the loop so its final stop is delivered.
	pubCtx, stopPubs := context.WithCancel(context.Background())
	var pubs sync.WaitGroup
	pubs.Add(1)
	go func() {
		defer pubs.Done()
		a.cmdHub.Run(pubCtx)
	}()
	if a.httpPub != nil {
		pubs.Add(1)
		go func() {
			defer pubs.Done()
			a.httpPub.Run(pubCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})

	if a.serial != nil {
		reader := scan.NewReader(a.serial, a.filter, a.logger.With("component", "scan.serial"))
		g.Go(func() error {
			return reader.Run(gctx)
		})
		g.Go(func() error {
			// Unblocks a pending read.
			<-gctx.Done()
			a.serial.Close()
			return nil
		})
	}

	g.Go(func() error {
		return a.loop.Run(gctx)
	})

	err := g.Wait()
	stopPubs()
	pubs.Wait()
	return err
}

// Shutdown logs final counters. Call it after Run returns.
func (a *App) Shutdown() {
	if a.loop != nil {
		st := a.loop.Stats()
		a.logger.Info("follower stopped",
			"cycles", st.Cycles,
			"fresh", st.Fresh,
			"stale", st.Stale,
			"blocked", st.Blocked,
			"compute_failures", st.ComputeFailures,
		)
	}
}

// Loop returns the command loop.
func (a *App) Loop() *control.Loop { return a.loop }

// Filter returns the range filter.
func (a *App) Filter() *scan.Filter { return a.filter }

// Intake returns the target intake.
func (a *App) Intake() *target.Intake { return a.intake }

// Server returns the API server.
func (a *App) Server() *web.Server { return a.server }
