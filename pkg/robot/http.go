package robot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-follow/internal/httpc"
)

// DefaultHTTPTimeout bounds one POST to the base driver.
const DefaultHTTPTimeout = 200 * time.Millisecond

// cmdVelPath is the base driver endpoint that accepts velocity commands.
const cmdVelPath = "/api/cmd_vel"

// HTTPPublisher posts commands to a base driver's HTTP API.
//
// Publish never blocks the caller: the latest command is parked in a
// one-slot mailbox and a sender goroutine started by Run delivers it. A newer
// command replaces an undelivered older one, so a slow base never sees a backlog.
type HTTPPublisher struct {
	BaseURL string

	client *http.Client
	logger *slog.Logger

	pending chan Command
	closed  atomic.Bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	mu            sync.Mutex
	lastErrorTime time.Time
}

// NewHTTPPublisher creates a publisher for the base driver at baseURL
// (e.g. "http://192.168.1.20:8000").
func NewHTTPPublisher(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPPublisher {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPPublisher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(timeout),
		logger:  logger,
		pending: make(chan Command, 1),
	}
}

// Publish queues cmd for delivery, replacing any command not yet sent.
func (p *HTTPPublisher) Publish(cmd Command) error {
	if p.closed.Load() {
		return fmt.Errorf("http publisher is closed")
	}
	cmd = cmd.Clone()
	for {
		select {
		case p.pending <- cmd:
			return nil
		default:
		}
		// Slot is full: discard the stale command and retry.
		select {
		case <-p.pending:
			p.dropped.Add(1)
		default:
		}
	}
}

// Run delivers queued commands until ctx is cancelled. A command still
// parked at cancellation is delivered before Run returns, so a final stop
// published just before shutdown reaches the base.
func (p *HTTPPublisher) Run(ctx context.Context) {
	// In-flight posts are bounded by the client timeout, not by ctx.
	sendCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.closed.Store(true)
			select {
			case cmd := <-p.pending:
				p.send(sendCtx, cmd)
			default:
			}
			return
		case cmd := <-p.pending:
			p.send(sendCtx, cmd)
		}
	}
}

func (p *HTTPPublisher) send(ctx context.Context, cmd Command) {
	err := httpc.PostJSON(ctx, p.client, p.BaseURL+cmdVelPath, cmd, nil)
	if err == nil {
		p.sent.Add(1)
		return
	}
	p.failed.Add(1)

	// Don't spam: at most one line every 5 seconds.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErrorTime.IsZero() || time.Since(p.lastErrorTime) > 5*time.Second {
		p.logger.Warn("cmd_vel post failed", "error", err, "failed_total", p.failed.Load())
		p.lastErrorTime = time.Now()
	}
}

// HTTPStats reports delivery counters.
type HTTPStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns delivery counters.
func (p *HTTPPublisher) Stats() HTTPStats {
	return HTTPStats{
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
		Failed:  p.failed.Load(),
	}
}
