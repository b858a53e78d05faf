// Package bridge accepts robot websocket connections and routes their
// sensor traffic into the controller.
//
// A robot connects to /ws/robot/:id and streams scan and centroid messages.
// Scans refresh the range filter, centroids are offered to the target intake
// and answered with an ack. The bridge is also a robot.Publisher: every
// command is pushed to all connected robots as a cmd_vel message.
//
// Each connection has one writer goroutine. Callers only queue frames, so a
// robot that stops reading never blocks Publish or the read loop. Commands
// are latest-wins: an unsent cmd_vel is replaced by the next one.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-follow/pkg/protocol"
	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/target"
)

const (
	// writeWait bounds one websocket write; a robot that cannot take a frame
	// in time is disconnected.
	writeWait = time.Second

	// sendBuffer is how many acks and replies may wait for the writer.
	sendBuffer = 32
)

var (
	// ErrRobotNotConnected is returned when sending to an unknown robot.
	ErrRobotNotConnected = errors.New("bridge: robot not connected")

	// ErrSendQueueFull is returned when a robot's writer is too far behind.
	ErrSendQueueFull = errors.New("bridge: send queue full")
)

// SweepSink receives laser sweeps.
type SweepSink interface {
	Update(s scan.Sweep) bool
}

// SampleSink receives target observations.
type SampleSink interface {
	Offer(s target.Sample) error
}

// RobotConnection is one connected robot.
type RobotConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu     sync.Mutex // guards LastSeen and parked
	parked []byte

	queue   chan []byte
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	sent    *atomic.Uint64
}

func newRobotConnection(id string, c *websocket.Conn, sent *atomic.Uint64) *RobotConnection {
	now := time.Now()
	return &RobotConnection{
		ID:        id,
		Conn:      c,
		Connected: now,
		LastSeen:  now,
		queue:     make(chan []byte, sendBuffer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		sent:      sent,
	}
}

// Send queues one message for the robot. It never blocks.
func (r *RobotConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	select {
	case <-r.done:
		return ErrRobotNotConnected
	default:
	}
	select {
	case r.queue <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// park replaces any unsent command frame with data.
func (r *RobotConnection) park(data []byte) {
	r.mu.Lock()
	r.parked = data
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *RobotConnection) takeParked() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	data := r.parked
	r.parked = nil
	return data
}

// writePump is the only goroutine that writes to the socket. A failed write
// closes the socket, which ends the read loop.
func (r *RobotConnection) writePump() {
	defer close(r.stopped)

	for {
		var data []byte
		select {
		case <-r.done:
			return
		case data = <-r.queue:
		case <-r.wake:
			if data = r.takeParked(); data == nil {
				continue
			}
		}

		r.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := r.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.Conn.Close()
			return
		}
		if r.sent != nil {
			r.sent.Add(1)
		}
	}
}

// stop ends the writer and waits for it, so the socket is not written after
// the handler returns.
func (r *RobotConnection) stop() {
	close(r.done)
	<-r.stopped
}

func (r *RobotConnection) touch() {
	r.mu.Lock()
	r.LastSeen = time.Now()
	r.mu.Unlock()
}

// Bridge manages robot connections.
type Bridge struct {
	mu     sync.RWMutex
	robots map[string]*RobotConnection

	sweeps  SweepSink
	samples SampleSink
	logger  *slog.Logger

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	scansReceived    atomic.Uint64
	centroidsAcked   atomic.Uint64
	centroidsRefused atomic.Uint64
	parseErrors      atomic.Uint64
}

// New creates a bridge. Either sink may be nil, in which case that message
// type is ignored.
func New(sweeps SweepSink, samples SampleSink, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		robots:  make(map[string]*RobotConnection),
		sweeps:  sweeps,
		samples: samples,
		logger:  logger,
	}
}

// RegisterRoutes mounts the robot websocket endpoints.
func (b *Bridge) RegisterRoutes(r fiber.Router) {
	r.Use("/ws/robot", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/ws/robot", websocket.New(b.handleRobot))
	r.Get("/ws/robot/:id", websocket.New(b.handleRobot))
}

func (b *Bridge) handleRobot(c *websocket.Conn) {
	robotID := c.Params("id")
	if robotID == "" {
		robotID = uuid.NewString()
	}

	conn := newRobotConnection(robotID, c, &b.messagesSent)
	go conn.writePump()

	b.mu.Lock()
	if old, ok := b.robots[robotID]; ok {
		// Same ID reconnecting: the newer socket wins.
		old.Conn.Close()
	}
	b.robots[robotID] = conn
	count := len(b.robots)
	b.mu.Unlock()

	b.logger.Info("robot connected", "robot", robotID, "total", count)

	defer func() {
		conn.stop()

		b.mu.Lock()
		if b.robots[robotID] == conn {
			delete(b.robots, robotID)
		}
		count := len(b.robots)
		b.mu.Unlock()
		b.logger.Info("robot disconnected", "robot", robotID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			b.logger.Debug("robot read ended", "robot", robotID, "error", err)
			return
		}
		conn.touch()
		b.messagesReceived.Add(1)
		b.handleMessage(conn, data)
	}
}

func (b *Bridge) handleMessage(conn *RobotConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		b.parseErrors.Add(1)
		b.logger.Debug("parse error", "robot", conn.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeScan:
		b.handleScan(conn, msg)

	case protocol.TypeCentroid:
		b.handleCentroid(conn, msg)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(conn.ID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			b.send(conn, pong)
		}

	default:
		b.logger.Debug("ignoring message", "robot", conn.ID, "type", msg.Type)
	}
}

func (b *Bridge) handleScan(conn *RobotConnection, msg *protocol.Message) {
	b.scansReceived.Add(1)
	if b.sweeps == nil {
		return
	}
	sd, err := msg.GetScanData()
	if err != nil {
		b.parseErrors.Add(1)
		b.logger.Debug("bad scan payload", "robot", conn.ID, "error", err)
		return
	}
	b.sweeps.Update(scan.Sweep{
		Ranges:         []float64(sd.Ranges),
		AngleMin:       sd.AngleMin,
		AngleIncrement: sd.AngleIncrement,
		RangeMin:       sd.RangeMin,
		RangeMax:       sd.RangeMax,
	})
}

func (b *Bridge) handleCentroid(conn *RobotConnection, msg *protocol.Message) {
	cd, err := msg.GetCentroidData()
	if err != nil {
		b.refuse(conn, 0, err)
		return
	}
	if b.samples == nil {
		b.refuse(conn, cd.Seq, errors.New("bridge: no target intake"))
		return
	}
	if err := b.samples.Offer(target.Sample{X: cd.X, Y: cd.Y, Depth: cd.Z}); err != nil {
		b.refuse(conn, cd.Seq, err)
		return
	}

	b.centroidsAcked.Add(1)
	if ack, err := protocol.NewAckMessage(cd.Seq, true, ""); err == nil {
		b.send(conn, ack)
	}
}

func (b *Bridge) refuse(conn *RobotConnection, seq uint64, reason error) {
	b.centroidsRefused.Add(1)
	b.logger.Debug("centroid refused", "robot", conn.ID, "seq", seq, "error", reason)
	if ack, err := protocol.NewAckMessage(seq, false, reason.Error()); err == nil {
		b.send(conn, ack)
	}
}

func (b *Bridge) send(conn *RobotConnection, msg *protocol.Message) error {
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", conn.ID, err)
	}
	return nil
}

// SendTo sends a message to one robot.
func (b *Bridge) SendTo(robotID string, msg *protocol.Message) error {
	b.mu.RLock()
	conn, ok := b.robots[robotID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRobotNotConnected, robotID)
	}
	return b.send(conn, msg)
}

// Broadcast sends a message to every connected robot and returns the first
// error encountered.
func (b *Bridge) Broadcast(msg *protocol.Message) error {
	var first error
	for _, conn := range b.connections() {
		if err := b.send(conn, msg); err != nil {
			b.logger.Debug("broadcast failed", "robot", conn.ID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Publish hands cmd to every connected robot's writer as a cmd_vel message,
// replacing any command that has not been written yet. It does no I/O. With
// no robots connected it is a no-op.
func (b *Bridge) Publish(cmd robot.Command) error {
	msg, err := protocol.NewCmdVelMessage(cmd.Linear, cmd.Angular, cmd.Clone().Joint)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	for _, conn := range b.connections() {
		conn.park(data)
	}
	return nil
}

func (b *Bridge) connections() []*RobotConnection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*RobotConnection, 0, len(b.robots))
	for _, r := range b.robots {
		out = append(out, r)
	}
	return out
}

// GetRobot returns a robot connection by ID, or nil.
func (b *Bridge) GetRobot(robotID string) *RobotConnection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.robots[robotID]
}

// RobotCount returns the number of connected robots.
func (b *Bridge) RobotCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.robots)
}

// Stats contains bridge counters.
type Stats struct {
	RobotCount       int    `json:"robot_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	ScansReceived    uint64 `json:"scans_received"`
	CentroidsAcked   uint64 `json:"centroids_acked"`
	CentroidsRefused uint64 `json:"centroids_refused"`
	ParseErrors      uint64 `json:"parse_errors"`
}

// Stats returns bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		RobotCount:       b.RobotCount(),
		MessagesReceived: b.messagesReceived.Load(),
		MessagesSent:     b.messagesSent.Load(),
		ScansReceived:    b.scansReceived.Load(),
		CentroidsAcked:   b.centroidsAcked.Load(),
		CentroidsRefused: b.centroidsRefused.Load(),
		ParseErrors:      b.parseErrors.Load(),
	}
}

// RobotInfo describes a connected robot.
type RobotInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// RobotInfos returns info about all connected robots.
func (b *Bridge) RobotInfos() []RobotInfo {
	conns := b.connections()
	infos := make([]RobotInfo, 0, len(conns))
	for _, r := range conns {
		r.mu.Lock()
		infos = append(infos, RobotInfo{ID: r.ID, Connected: r.Connected, LastSeen: r.LastSeen})
		r.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes mounts robot management endpoints under api.
func (b *Bridge) RegisterAPIRoutes(api fiber.Router) {
	robots := api.Group("/robots")

	robots.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"robots": b.RobotInfos(),
			"count":  b.RobotCount(),
		})
	})

	robots.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(b.Stats())
	})
}
