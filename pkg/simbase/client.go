package simbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-follow/pkg/protocol"
	"github.com/teslashibe/go-follow/pkg/robot"
)

const writeWait = time.Second

// Client is the simulated robot.
type Client struct {
	cfg    Config
	world  *World
	logger *slog.Logger

	// OnCommand, if set, is called from the read goroutine for every cmd_vel.
	OnCommand func(robot.Command)

	mu     sync.Mutex
	conn   *websocket.Conn
	last   robot.Command
	closed bool

	seq atomic.Uint64

	scansSent      atomic.Int64
	centroidsSent  atomic.Int64
	acks           atomic.Int64
	refused        atomic.Int64
	commands       atomic.Int64
	reconnectCount atomic.Int64
}

// New creates a simulator. Call Run to connect and start streaming.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		world:  NewWorld(cfg.World),
		logger: logger.With("component", "simbase", "robot", cfg.RobotID),
	}, nil
}

// World returns the simulated scene.
func (c *Client) World() *World {
	return c.world
}

// Connect dials the follower.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return io.ErrClosedPipe
	}
	if c.conn != nil {
		return nil
	}

	c.logger.Info("connecting to follower", "url", c.cfg.Endpoint())

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Endpoint(), err)
	}
	c.conn = conn
	c.logger.Info("connected to follower")
	return nil
}

// ConnectWithRetry connects with automatic retry on failure.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		attempts++
		c.reconnectCount.Add(1)

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("max reconnect attempts (%d) reached: %w", c.cfg.MaxReconnectAttempts, err)
		}

		c.logger.Warn("follower connection failed, retrying",
			"error", err,
			"attempt", attempts,
			"retry_in", c.cfg.ReconnectInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// Run connects, then streams sweeps and centroids until ctx is cancelled or
// the connection drops. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	if err := c.ConnectWithRetry(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer c.Close()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop() }()

	scanTick := time.NewTicker(c.cfg.ScanInterval)
	defer scanTick.Stop()

	var centroidC <-chan time.Time
	if c.cfg.CentroidInterval > 0 {
		t := time.NewTicker(c.cfg.CentroidInterval)
		defer t.Stop()
		centroidC = t.C
	}

	dt := c.cfg.ScanInterval.Seconds()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("follower connection lost: %w", err)

		case <-scanTick.C:
			c.world.Step(c.Last(), dt)
			if err := c.sendScan(); err != nil {
				return err
			}

		case <-centroidC:
			if err := c.sendCentroid(); err != nil {
				return err
			}
		}
	}
}

func (c *Client) sendScan() error {
	// Beams span a full turn starting at -pi.
	inc := 2 * math.Pi / float64(c.cfg.World.Beams)
	msg, err := protocol.NewScanMessage(c.world.Sweep(), -math.Pi, inc, 0, 0)
	if err != nil {
		return err
	}
	if err := c.send(msg); err != nil {
		return err
	}
	c.scansSent.Add(1)
	return nil
}

func (c *Client) sendCentroid() error {
	x, y, z := c.world.Centroid()
	msg, err := protocol.NewCentroidMessage(c.seq.Add(1), x, y, z)
	if err != nil {
		return err
	}
	if err := c.send(msg); err != nil {
		return err
	}
	c.centroidsSent.Add(1)
	return nil
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("simbase: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Debug("parse error", "error", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeCmdVel:
		cv, err := msg.GetCmdVelData()
		if err != nil {
			return
		}
		cmd := robot.Command{Linear: cv.Linear, Angular: cv.Angular, Joint: cv.Joint}
		c.mu.Lock()
		c.last = cmd
		c.mu.Unlock()
		c.commands.Add(1)
		if c.OnCommand != nil {
			c.OnCommand(cmd)
		}

	case protocol.TypeAck:
		ack, err := msg.GetAckData()
		if err != nil {
			return
		}
		if ack.Check {
			c.acks.Add(1)
		} else {
			c.refused.Add(1)
			c.logger.Warn("centroid refused", "seq", ack.Seq, "error", ack.Error)
		}
	}
}

// Last returns the most recent command received.
func (c *Client) Last() robot.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.Clone()
}

// Close closes the connection. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Stats contains simulator counters.
type Stats struct {
	ScansSent      int64    `json:"scans_sent"`
	CentroidsSent  int64    `json:"centroids_sent"`
	Acks           int64    `json:"acks"`
	Refused        int64    `json:"refused"`
	Commands       int64    `json:"commands"`
	ReconnectCount int64    `json:"reconnect_count"`
	World          Snapshot `json:"world"`
}

// Stats returns simulator counters.
func (c *Client) Stats() Stats {
	return Stats{
		ScansSent:      c.scansSent.Load(),
		CentroidsSent:  c.centroidsSent.Load(),
		Acks:           c.acks.Load(),
		Refused:        c.refused.Load(),
		Commands:       c.commands.Load(),
		ReconnectCount: c.reconnectCount.Load(),
		World:          c.world.Snapshot(),
	}
}
