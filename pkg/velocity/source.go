// Package velocity computes candidate commands from target samples.
//
// Two sources implement the same interface: Local evaluates PID axes
// in-process, Remote delegates each computation to an HTTP service (typically
// cmd/pidserver, which serves a Local through Handler).
package velocity

import (
	"context"

	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/target"
)

// Source produces a candidate command for a fresh target sample.
//
// Implementations must return within a bounded time. An error means no
// candidate for this cycle; the caller falls back to decay.
type Source interface {
	Compute(ctx context.Context, s target.Sample) (robot.Command, error)
}

// Waiter is implemented by sources that need a readiness barrier before the
// first Compute. WaitReady blocks until the source is usable or ctx ends.
type Waiter interface {
	WaitReady(ctx context.Context) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, s target.Sample) (robot.Command, error)

// Compute calls f(ctx, s).
func (f SourceFunc) Compute(ctx context.Context, s target.Sample) (robot.Command, error) {
	return f(ctx, s)
}

// Ensure implementations satisfy the interfaces.
var (
	_ Source = (*Local)(nil)
	_ Source = (*Remote)(nil)
	_ Waiter = (*Remote)(nil)
	_ Source = (*Mock)(nil)
	_ Waiter = (*Mock)(nil)
	_ Source = SourceFunc(nil)
)
