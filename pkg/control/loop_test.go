package control

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/teslashibe/go-follow/internal/log"
	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/target"
	"github.com/teslashibe/go-follow/pkg/tracking"
	"github.com/teslashibe/go-follow/pkg/velocity"
)

// clearanceCell adapts a scan.Clearance to ClearanceReader.
type clearanceCell struct{ c *scan.Clearance }

func (c clearanceCell) Clearance() float64 { return c.c.Load() }

// recorder collects every published command.
type recorder struct {
	mu   sync.Mutex
	cmds []robot.Command
	err  error
}

func (r *recorder) Publish(cmd robot.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func (r *recorder) snapshot() []robot.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]robot.Command(nil), r.cmds...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

type fixture struct {
	loop      *Loop
	clearance *scan.Clearance
	intake    *target.Intake
	pub       *recorder
}

func newFixture(t *testing.T, src velocity.Source) *fixture {
	t.Helper()
	f := &fixture{
		clearance: scan.NewClearance(scan.DefaultMaxDistance),
		intake:    target.NewIntake(log.Discard()),
		pub:       &recorder{},
	}
	cfg := DefaultConfig()
	cfg.Period = 5 * time.Millisecond
	loop, err := NewLoop(cfg, Deps{
		Source:    src,
		Clearance: clearanceCell{f.clearance},
		Intake:    f.intake,
		Publisher: f.pub,
	}, log.Discard())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	f.loop = loop
	return f
}

// noWait hides the mock's Waiter so the loop starts cycling immediately.
func noWait(m *velocity.Mock) velocity.Source {
	return velocity.SourceFunc(m.Compute)
}

func TestLoop_ClearPassesCandidate(t *testing.T) {
	local := velocity.NewLocal(tracking.DefaultConfig(), log.Discard())
	reference := velocity.NewLocal(tracking.DefaultConfig(), log.Discard())
	f := newFixture(t, local)

	sample := target.Sample{X: 300, Y: 250, Depth: 2.0}
	want, err := reference.Compute(context.Background(), sample)
	if err != nil {
		t.Fatal(err)
	}

	f.intake.OnArrival(sample)
	c := f.loop.Step(context.Background())

	if !c.Fresh || c.Decayed || c.Blocked {
		t.Errorf("cycle = %+v", c)
	}
	if diff := cmp.Diff(want, c.Command, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestLoop_ObstacleZeroesForward(t *testing.T) {
	f := newFixture(t, noWait(velocity.NewMock(robot.NewCommand(0.6, 0.3))))
	f.clearance.Store(0.5)

	f.intake.OnArrival(target.Sample{X: 320, Y: 240, Depth: 3})
	c := f.loop.Step(context.Background())

	if diff := cmp.Diff(robot.NewCommand(0, 0.3), c.Command); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	if !c.Blocked {
		t.Error("cycle not marked blocked")
	}
}

func TestLoop_StaleDecay(t *testing.T) {
	f := newFixture(t, noWait(velocity.NewMock(robot.NewCommand(1.0, 0))))

	f.intake.OnArrival(target.Sample{Depth: 1})
	f.loop.Step(context.Background())

	for i := 0; i < 5; i++ {
		f.loop.Step(context.Background())
	}

	var got []float64
	for _, cmd := range f.pub.snapshot()[1:] {
		got = append(got, cmd.Linear)
	}
	want := []float64{0.8, 0.64, 0.512, 0.4096, 0.32768}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("forward sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestLoop_FreshnessConsumedOnce(t *testing.T) {
	mock := velocity.NewMock(robot.NewCommand(0.5, 0))
	f := newFixture(t, noWait(mock))

	f.intake.OnArrival(target.Sample{Depth: 2})
	f.loop.Step(context.Background())
	f.loop.Step(context.Background())
	f.loop.Step(context.Background())

	if n := len(mock.Samples()); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
}

func TestLoop_ComputeFailureDecays(t *testing.T) {
	mock := velocity.NewMock(robot.NewCommand(1, 0.5))
	f := newFixture(t, noWait(mock))

	f.intake.OnArrival(target.Sample{Depth: 1})
	f.loop.Step(context.Background())

	mock.ComputeFunc = func(ctx context.Context, s target.Sample) (robot.Command, error) {
		return robot.Command{}, velocity.ErrServiceUnavailable
	}
	f.intake.OnArrival(target.Sample{Depth: 1})
	c := f.loop.Step(context.Background())

	if !c.Fresh || !c.Decayed {
		t.Errorf("cycle = %+v, want fresh and decayed", c)
	}
	if diff := cmp.Diff(robot.NewCommand(0.8, 0.4), c.Command, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	if st := f.loop.Stats(); st.ComputeFailures != 1 {
		t.Errorf("ComputeFailures = %d, want 1", st.ComputeFailures)
	}
}

func TestLoop_RejectsNonFiniteCandidate(t *testing.T) {
	mock := velocity.NewMock(robot.NewCommand(1, 0))
	f := newFixture(t, noWait(mock))
	f.intake.OnArrival(target.Sample{Depth: 1})
	f.loop.Step(context.Background())

	mock.ComputeFunc = func(ctx context.Context, s target.Sample) (robot.Command, error) {
		return robot.NewCommand(math.Inf(1), 0), nil
	}
	f.intake.OnArrival(target.Sample{Depth: 1})
	c := f.loop.Step(context.Background())

	if !c.Decayed || !c.Command.IsFinite() {
		t.Errorf("cycle = %+v, want finite decayed command", c)
	}
}

func TestLoop_ArbitratesOnClearanceAfterCompute(t *testing.T) {
	var cell *scan.Clearance
	f := newFixture(t, velocity.SourceFunc(func(ctx context.Context, s target.Sample) (robot.Command, error) {
		// Obstacle appears while the remote call is in flight.
		cell.Store(0.3)
		return robot.NewCommand(0.6, 0), nil
	}))
	cell = f.clearance

	f.intake.OnArrival(target.Sample{Depth: 3})
	c := f.loop.Step(context.Background())

	if c.Command.Linear != 0 || !c.Blocked || c.Clearance != 0.3 {
		t.Errorf("cycle = %+v, want blocked on the late reading", c)
	}
}

func TestLoop_PublishFailureStillAdvances(t *testing.T) {
	f := newFixture(t, noWait(velocity.NewMock(robot.NewCommand(1, 0))))
	f.pub.err = errors.New("transport down")

	f.intake.OnArrival(target.Sample{Depth: 1})
	f.loop.Step(context.Background())
	c := f.loop.Step(context.Background())

	if c.Command.Linear != 0.8 {
		t.Errorf("Linear = %v, want 0.8 decayed from the unsent command", c.Command.Linear)
	}
	if st := f.loop.Stats(); st.PublishFailures != 2 || st.Cycles != 2 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestLoop_LivenessScripted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	mock := velocity.NewMock(robot.Stop)
	mock.ComputeFunc = func(ctx context.Context, s target.Sample) (robot.Command, error) {
		if rng.Intn(5) == 0 {
			return robot.Command{}, velocity.ErrServiceUnavailable
		}
		return robot.NewCommand(rng.Float64(), rng.NormFloat64()), nil
	}
	f := newFixture(t, noWait(mock))

	const cycles = 300
	blocked := make([]bool, cycles)
	for i := 0; i < cycles; i++ {
		if rng.Intn(2) == 0 {
			f.intake.OnArrival(target.Sample{X: rng.Float64() * 640, Y: rng.Float64() * 480, Depth: rng.Float64() * 4})
		}
		f.clearance.Store(rng.Float64() * 3)
		c := f.loop.Step(context.Background())
		blocked[i] = c.Blocked
		if c.Seq != uint64(i+1) {
			t.Fatalf("cycle %d reported seq %d", i, c.Seq)
		}
	}

	got := f.pub.snapshot()
	if len(got) != cycles {
		t.Fatalf("published %d commands over %d cycles", len(got), cycles)
	}
	for i, cmd := range got {
		if blocked[i] && cmd.Linear != 0 {
			t.Errorf("cycle %d: blocked but Linear = %v", i, cmd.Linear)
		}
	}
}

func TestLoop_RunEmitsEveryTickAndStops(t *testing.T) {
	f := newFixture(t, noWait(velocity.NewMock(robot.NewCommand(0.4, 0))))

	var observed atomic.Uint64
	f.loop.OnCycle = func(Cycle) { observed.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for observed.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if f.loop.State() != StateRunning {
		t.Errorf("state = %v, want running", f.loop.State())
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on shutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if f.loop.State() != StateStopped {
		t.Errorf("state = %v, want stopped", f.loop.State())
	}

	// One command per cycle plus the final stop.
	cmds := f.pub.snapshot()
	cycles := f.loop.Stats().Cycles
	if uint64(len(cmds)) != cycles+1 {
		t.Errorf("published %d, cycles %d", len(cmds), cycles)
	}
	if diff := cmp.Diff(robot.Stop, cmds[len(cmds)-1]); diff != "" {
		t.Errorf("last command is not a stop (-want +got):\n%s", diff)
	}

	if err := f.loop.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestLoop_WaitsForService(t *testing.T) {
	ready := make(chan struct{})
	mock := velocity.NewMock(robot.NewCommand(0.2, 0))
	mock.WaitReadyFunc = func(ctx context.Context) error {
		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := newFixture(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if f.loop.State() != StateWaitingService {
		t.Errorf("state = %v, want waiting_service", f.loop.State())
	}
	if n := f.pub.count(); n != 0 {
		t.Fatalf("published %d commands while waiting for the service", n)
	}

	close(ready)
	deadline := time.Now().Add(time.Second)
	for f.pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if f.pub.count() == 0 {
		t.Error("no commands after the service became ready")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
}

func TestLoop_UnreachableRemote(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := velocity.DefaultRemoteConfig()
	cfg.URL = "http://" + addr
	cfg.ReadyInterval = 10 * time.Millisecond
	f := newFixture(t, velocity.NewRemote(cfg, velocity.WithLogger(log.Discard())))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := f.loop.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil on shutdown while waiting", err)
	}
	if n := f.pub.count(); n != 0 {
		t.Errorf("published %d commands without a velocity service", n)
	}
	if st := f.loop.Stats(); st.Cycles != 0 {
		t.Errorf("Cycles = %d, want 0", st.Cycles)
	}
}

func TestLoop_WaitFailureIsReturned(t *testing.T) {
	mock := velocity.NewMock(robot.Stop)
	mock.WaitReadyFunc = func(ctx context.Context) error { return velocity.ErrServiceUnavailable }
	f := newFixture(t, mock)

	if err := f.loop.Run(context.Background()); !errors.Is(err, velocity.ErrServiceUnavailable) {
		t.Errorf("Run() = %v, want ErrServiceUnavailable", err)
	}
	if f.pub.count() != 0 {
		t.Error("published after failed readiness wait")
	}
}

func TestNewLoop_Validation(t *testing.T) {
	deps := Deps{
		Source:    velocity.NewMock(robot.Stop),
		Clearance: clearanceCell{scan.NewClearance(5)},
		Intake:    target.NewIntake(nil),
		Publisher: &recorder{},
	}

	if _, err := NewLoop(DefaultConfig(), deps, nil); err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	missing := deps
	missing.Publisher = nil
	if _, err := NewLoop(DefaultConfig(), missing, nil); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("error = %v, want ErrMissingDependency", err)
	}

	cfg := DefaultConfig()
	cfg.Period = 0
	if _, err := NewLoop(cfg, deps, nil); err == nil {
		t.Error("zero period accepted")
	}
}
