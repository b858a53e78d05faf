package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/velocity"
)

// State is the loop lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWaitingService
	StateRunning
	StateStopped
)

// String returns the state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingService:
		return "waiting_service"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ClearanceReader exposes the latest frontal clearance. scan.Filter
// implements it.
type ClearanceReader interface {
	Clearance() float64
}

// SampleConsumer hands out the latest target sample once. target.Intake
// implements it.
type SampleConsumer interface {
	Consume() (target.Sample, bool)
}

// Deps are the loop's collaborators. All are required.
type Deps struct {
	Source    velocity.Source
	Clearance ClearanceReader
	Intake    SampleConsumer
	Publisher robot.Publisher
}

// Cycle describes one completed cycle.
type Cycle struct {
	Seq       uint64        `json:"seq"`
	Fresh     bool          `json:"fresh"`
	Decayed   bool          `json:"decayed"`
	Blocked   bool          `json:"blocked"`
	Clearance float64       `json:"clearance"`
	Command   robot.Command `json:"command"`
	Duration  time.Duration `json:"duration"`
}

// Loop is the fixed-rate command driver. Run must be called at most once.
type Loop struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	runID  string

	// OnCycle, if set, is called from the loop goroutine after every cycle.
	OnCycle func(Cycle)

	state   atomic.Int32
	started atomic.Bool

	mu              sync.Mutex
	prev            robot.Command
	cycles          uint64
	fresh           uint64
	stale           uint64
	computeFailures uint64
	blocked         uint64
	publishFailures uint64
	lastClearance   float64
	lastErrorTime   time.Time
}

// NewLoop creates a loop. The previous command starts at rest.
func NewLoop(cfg Config, deps Deps, logger *slog.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: velocity source", ErrMissingDependency)
	case deps.Clearance == nil:
		return nil, fmt.Errorf("%w: clearance reader", ErrMissingDependency)
	case deps.Intake == nil:
		return nil, fmt.Errorf("%w: target intake", ErrMissingDependency)
	case deps.Publisher == nil:
		return nil, fmt.Errorf("%w: publisher", ErrMissingDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.NewString()
	return &Loop{
		cfg:    cfg,
		deps:   deps,
		runID:  runID,
		logger: logger.With("component", "control.loop", "run_id", runID),
	}, nil
}

// Config returns the loop configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// RunID identifies this loop instance in logs and the status API.
func (l *Loop) RunID() string {
	return l.runID
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		l.logger.Info("loop state", "from", old.String(), "to", s.String())
	}
}

// Run drives cycles every Period until ctx is cancelled, which is the only
// way it ends normally (nil error). When the source needs a readiness
// barrier Run first blocks in the waiting_service state and publishes
// nothing until the source is ready.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.setState(StateStopped)

	if w, ok := l.deps.Source.(velocity.Waiter); ok {
		l.setState(StateWaitingService)
		if err := w.WaitReady(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control: wait for velocity service: %w", err)
		}
	}

	l.setState(StateRunning)
	l.logger.Info("control loop started",
		"period", l.cfg.Period,
		"threshold_m", l.cfg.Threshold,
		"decay", l.cfg.Decay.Factor,
	)

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-ticker.C:
			l.Step(ctx)
		}
	}
}

func (l *Loop) shutdown() {
	if !l.cfg.StopOnExit {
		return
	}
	if err := l.deps.Publisher.Publish(robot.Stop); err != nil {
		l.logger.Warn("final stop not delivered", "error", err)
	}
	st := l.Stats()
	l.logger.Info("control loop stopped",
		"cycles", st.Cycles,
		"compute_failures", st.ComputeFailures,
		"publish_failures", st.PublishFailures,
	)
}

// Step runs exactly one cycle and publishes exactly one command. It is
// exported so cycles can be scripted without a ticker.
func (l *Loop) Step(ctx context.Context) Cycle {
	start := time.Now()

	clearance := l.deps.Clearance.Clearance()
	sample, fresh := l.deps.Intake.Consume()

	l.mu.Lock()
	prev := l.prev.Clone()
	l.mu.Unlock()

	var (
		candidate robot.Command
		decayed   bool
		computeOK = true
	)
	if fresh {
		cmd, err := l.deps.Source.Compute(ctx, sample)
		if err == nil && !cmd.IsFinite() {
			err = fmt.Errorf("non-finite candidate %v", cmd)
		}
		if err != nil {
			computeOK = false
			l.warn("velocity compute failed, decaying", err)
			candidate, decayed = l.cfg.Decay.Apply(prev), true
		} else {
			candidate = cmd
		}
	} else {
		candidate, decayed = l.cfg.Decay.Apply(prev), true
	}

	// The compute call may have blocked; arbitrate on the latest reading.
	if after := l.deps.Clearance.Clearance(); after != clearance {
		l.logger.Debug("clearance changed during cycle", "before_m", clearance, "after_m", after)
		clearance = after
	}
	final := Arbitrate(candidate, clearance, l.cfg.Threshold)
	blocked := Blocked(clearance, l.cfg.Threshold)

	pubErr := l.deps.Publisher.Publish(final.Clone())
	if pubErr != nil {
		l.warn("publish failed", pubErr)
	}

	l.mu.Lock()
	l.prev = final.Clone()
	l.cycles++
	seq := l.cycles
	if fresh {
		l.fresh++
	} else {
		l.stale++
	}
	if !computeOK {
		l.computeFailures++
	}
	if blocked {
		l.blocked++
	}
	if pubErr != nil {
		l.publishFailures++
	}
	l.lastClearance = clearance
	l.mu.Unlock()

	if blocked {
		l.logger.Debug("obstacle detected", "clearance_m", clearance, "cmd", final.String())
	} else {
		l.logger.Debug("no obstacles detected", "clearance_m", clearance, "cmd", final.String())
	}
	if l.cfg.HeartbeatEvery > 0 && seq%l.cfg.HeartbeatEvery == 0 {
		st := l.Stats()
		l.logger.Info("control heartbeat",
			"cycles", st.Cycles,
			"fresh", st.Fresh,
			"stale", st.Stale,
			"blocked", st.Blocked,
			"compute_failures", st.ComputeFailures,
			"publish_failures", st.PublishFailures,
			"cmd", final.String(),
		)
	}

	c := Cycle{
		Seq:       seq,
		Fresh:     fresh,
		Decayed:   decayed,
		Blocked:   blocked,
		Clearance: clearance,
		Command:   final,
		Duration:  time.Since(start),
	}
	if l.OnCycle != nil {
		l.OnCycle(c)
	}
	return c
}

// warn logs at most once every 5 seconds.
func (l *Loop) warn(msg string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastErrorTime.IsZero() || time.Since(l.lastErrorTime) > 5*time.Second {
		l.logger.Warn(msg, "error", err, "cycle", l.cycles+1)
		l.lastErrorTime = time.Now()
	}
}

// Stats is a snapshot of loop counters.
type Stats struct {
	RunID           string        `json:"run_id"`
	State           string        `json:"state"`
	Cycles          uint64        `json:"cycles"`
	Fresh           uint64        `json:"fresh"`
	Stale           uint64        `json:"stale"`
	ComputeFailures uint64        `json:"compute_failures"`
	Blocked         uint64        `json:"blocked"`
	PublishFailures uint64        `json:"publish_failures"`
	Clearance       float64       `json:"clearance"`
	Last            robot.Command `json:"last"`
}

// Stats returns a snapshot of loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		RunID:           l.runID,
		State:           l.State().String(),
		Cycles:          l.cycles,
		Fresh:           l.fresh,
		Stale:           l.stale,
		ComputeFailures: l.computeFailures,
		Blocked:         l.blocked,
		PublishFailures: l.publishFailures,
		Clearance:       l.lastClearance,
		Last:            l.prev.Clone(),
	}
}
