package velocity

import (
	"context"
	"sync"

	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/target"
)

// Mock implements Source and Waiter for testing.
type Mock struct {
	// ComputeFunc is called when Compute is invoked.
	ComputeFunc func(ctx context.Context, s target.Sample) (robot.Command, error)

	// WaitReadyFunc is called when WaitReady is invoked.
	WaitReadyFunc func(ctx context.Context) error

	mu      sync.Mutex
	samples []target.Sample
	waits   int
}

// NewMock creates a mock that returns a fixed command.
func NewMock(cmd robot.Command) *Mock {
	return &Mock{
		ComputeFunc: func(ctx context.Context, s target.Sample) (robot.Command, error) {
			return cmd.Clone(), nil
		},
	}
}

// Compute calls ComputeFunc and records the sample.
func (m *Mock) Compute(ctx context.Context, s target.Sample) (robot.Command, error) {
	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()

	if m.ComputeFunc != nil {
		return m.ComputeFunc(ctx, s)
	}
	return robot.Command{}, ErrServiceUnavailable
}

// WaitReady calls WaitReadyFunc, or returns nil.
func (m *Mock) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	m.waits++
	m.mu.Unlock()

	if m.WaitReadyFunc != nil {
		return m.WaitReadyFunc(ctx)
	}
	return nil
}

// Samples returns the samples Compute was called with.
func (m *Mock) Samples() []target.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]target.Sample(nil), m.samples...)
}

// Waits returns how many times WaitReady was called.
func (m *Mock) Waits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waits
}
