package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-follow/internal/httpc"
	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/target"
)

// RemoteConfig configures the remote velocity service client.
type RemoteConfig struct {
	// URL is the service base URL, e.g. "http://localhost:8090".
	URL string `yaml:"url" json:"url"`

	// Timeout bounds one Compute round trip.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// ReadyInterval is the pause between readiness probes.
	ReadyInterval time.Duration `yaml:"ready_interval" json:"ready_interval"`

	// MaxReadyAttempts stops WaitReady after this many failed probes.
	// Zero waits forever.
	MaxReadyAttempts int `yaml:"max_ready_attempts" json:"max_ready_attempts"`
}

// DefaultRemoteConfig returns defaults for a service on the same host.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:           "http://localhost:8090",
		Timeout:       500 * time.Millisecond,
		ReadyInterval: time.Second,
	}
}

// Validate checks the configuration.
func (c *RemoteConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("velocity: remote url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("velocity: remote url %q must be http(s)", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("velocity: remote timeout must be positive, got %v", c.Timeout)
	}
	if c.ReadyInterval <= 0 {
		return fmt.Errorf("velocity: ready interval must be positive, got %v", c.ReadyInterval)
	}
	if c.MaxReadyAttempts < 0 {
		return fmt.Errorf("velocity: max ready attempts must not be negative")
	}
	return nil
}

// Option configures a Remote.
type Option func(*Remote)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Remote) { r.logger = l }
}

// WithHTTPClient replaces the HTTP client. Its timeout is not changed.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Remote) { r.client = c }
}

// Remote delegates each computation to the velocity service over HTTP.
type Remote struct {
	cfg     RemoteConfig
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	ready    atomic.Bool
	calls    atomic.Uint64
	failures atomic.Uint64
	probes   atomic.Uint64

	mu            sync.Mutex
	lastErrorTime time.Time
}

// NewRemote creates a client for the velocity service.
func NewRemote(cfg RemoteConfig, opts ...Option) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteConfig().Timeout
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = DefaultRemoteConfig().ReadyInterval
	}
	r := &Remote{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = httpc.NewClient(cfg.Timeout)
	}
	r.logger = r.logger.With("component", "velocity.remote", "url", r.baseURL)
	return r
}

// WaitReady blocks until the service answers its health endpoint. Every
// failed probe is logged. It returns ctx.Err() if ctx ends first.
func (r *Remote) WaitReady(ctx context.Context) error {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.probes.Add(1)
		err := r.ping(ctx)
		if err == nil {
			r.ready.Store(true)
			r.logger.Info("velocity service available", "attempts", attempts+1)
			return nil
		}

		attempts++
		if r.cfg.MaxReadyAttempts > 0 && attempts >= r.cfg.MaxReadyAttempts {
			return fmt.Errorf("%w: gave up after %d probes: %v", ErrServiceUnavailable, attempts, err)
		}

		r.logger.Warn("velocity service not available, waiting again",
			"error", err,
			"attempt", attempts,
			"retry_in", r.cfg.ReadyInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.ReadyInterval):
		}
	}
}

func (r *Remote) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return httpc.Ping(ctx, r.client, r.baseURL+HealthPath)
}

// Ready reports whether WaitReady has succeeded.
func (r *Remote) Ready() bool {
	return r.ready.Load()
}

// Compute asks the service for the desired velocities. The call is bounded by
// the configured timeout.
func (r *Remote) Compute(ctx context.Context, s target.Sample) (robot.Command, error) {
	r.calls.Add(1)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var resp Response
	err := httpc.PostJSON(ctx, r.client, r.baseURL+DesiredVelocityPath, Request{Centroid: &s}, &resp)
	if err != nil {
		err = classify(err)
		r.fail(err)
		return robot.Command{}, err
	}

	cmd, err := resp.Command()
	if err != nil {
		r.fail(err)
		return robot.Command{}, err
	}
	return cmd, nil
}

func classify(err error) error {
	var se *httpc.StatusError
	switch {
	case errors.As(err, &se):
		return &StatusError{StatusCode: se.StatusCode, Body: se.Body}
	case errors.Is(err, httpc.ErrDecode):
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

func (r *Remote) fail(err error) {
	r.failures.Add(1)

	// Don't spam: at most one line every 5 seconds.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErrorTime.IsZero() || time.Since(r.lastErrorTime) > 5*time.Second {
		r.logger.Warn("velocity request failed", "error", err, "failures", r.failures.Load())
		r.lastErrorTime = time.Now()
	}
}

// RemoteStats reports client counters.
type RemoteStats struct {
	Ready    bool   `json:"ready"`
	Calls    uint64 `json:"calls"`
	Failures uint64 `json:"failures"`
	Probes   uint64 `json:"probes"`
}

// Stats returns client counters.
func (r *Remote) Stats() RemoteStats {
	return RemoteStats{
		Ready:    r.ready.Load(),
		Calls:    r.calls.Load(),
		Failures: r.failures.Load(),
		Probes:   r.probes.Load(),
	}
}
