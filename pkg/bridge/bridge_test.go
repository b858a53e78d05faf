package bridge

import (
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-follow/internal/log"
	"github.com/teslashibe/go-follow/pkg/protocol"
	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/target"
)

func startBridge(t *testing.T, b *Bridge) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	b.RegisterRoutes(app)
	b.RegisterAPIRoutes(app.Group("/api"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	c, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func write(t *testing.T, c *gorilla.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteMessage(gorilla.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *gorilla.Conn) *protocol.Message {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestBridge_ConnectAndDisconnect(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)

	ws := dial(t, base+"/ws/robot/test-robot")
	waitFor(t, func() bool { return b.RobotCount() == 1 })

	if b.GetRobot("test-robot") == nil {
		t.Error("GetRobot should return the connected robot")
	}

	ws.Close()
	waitFor(t, func() bool { return b.RobotCount() == 0 })
}

func TestBridge_GeneratesIDWhenMissing(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)

	dial(t, base+"/ws/robot")
	waitFor(t, func() bool { return b.RobotCount() == 1 })

	infos := b.RobotInfos()
	if len(infos) != 1 || len(infos[0].ID) != 36 {
		t.Errorf("infos = %+v, want one robot with a uuid", infos)
	}
}

func TestBridge_ScanUpdatesFilter(t *testing.T) {
	f := scan.NewFilter(scan.DefaultConfig(), log.Discard())
	b := New(f, nil, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/lidar")

	ranges := make([]float64, 720)
	for i := range ranges {
		ranges[i] = 3
	}
	ranges[320] = 0.9
	msg, err := protocol.NewScanMessage(ranges, 0, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	write(t, ws, msg)

	waitFor(t, func() bool { return f.Clearance() == 0.9 })
	if st := b.Stats(); st.ScansReceived != 1 {
		t.Errorf("ScansReceived = %d, want 1", st.ScansReceived)
	}
}

func TestBridge_CentroidAck(t *testing.T) {
	in := target.NewIntake(log.Discard())
	b := New(nil, in, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/camera")

	centroid, _ := protocol.NewCentroidMessage(7, 320, 240, 1.8)
	write(t, ws, centroid)
	msg := read(t, ws)
	if msg.Type != protocol.TypeAck {
		t.Fatalf("Type = %s, want ack", msg.Type)
	}
	ack, err := msg.GetAckData()
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Check || ack.Seq != 7 {
		t.Errorf("ack = %+v, want check=true seq=7", ack)
	}

	s, fresh := in.Consume()
	if !fresh || s.X != 320 || s.Y != 240 || s.Depth != 1.8 {
		t.Errorf("Consume() = %+v, %v", s, fresh)
	}
}

func TestBridge_CentroidRefused(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantSeq uint64
	}{
		// Negative depth is not a valid observation.
		{"negative depth", `{"type":"centroid","data":{"seq":3,"x":10,"y":10,"z":-1}}`, 3},
		{"no payload", `{"type":"centroid"}`, 0},
		{"null payload", `{"type":"centroid","data":null}`, 0},
		{"empty payload", `{"type":"centroid","data":{}}`, 0},
		{"missing depth", `{"type":"centroid","data":{"seq":5,"x":320,"y":240}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := target.NewIntake(log.Discard())
			b := New(nil, in, log.Discard())
			base := startBridge(t, b)
			ws := dial(t, base+"/ws/robot/camera")

			if err := ws.WriteMessage(gorilla.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("write: %v", err)
			}
			ack, err := read(t, ws).GetAckData()
			if err != nil {
				t.Fatal(err)
			}
			if ack.Check || ack.Seq != tt.wantSeq || ack.Error == "" {
				t.Errorf("ack = %+v, want refusal for seq %d", ack, tt.wantSeq)
			}
			if _, fresh := in.Consume(); fresh {
				t.Error("refused centroid must not become fresh")
			}
			if st := b.Stats(); st.CentroidsRefused != 1 {
				t.Errorf("CentroidsRefused = %d, want 1", st.CentroidsRefused)
			}
		})
	}
}

func TestBridge_PingPong(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/ping-test")

	ping, _ := protocol.NewPingMessage("p1")
	write(t, ws, ping)
	if msg := read(t, ws); msg.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", msg.Type)
	}
}

func TestBridge_PublishCmdVel(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/base")
	waitFor(t, func() bool { return b.RobotCount() == 1 })

	if err := b.Publish(robot.NewCommand(0.3, -0.1).WithJoint(0.02)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := read(t, ws)
	if msg.Type != protocol.TypeCmdVel {
		t.Fatalf("Type = %s, want cmd_vel", msg.Type)
	}
	cv, err := msg.GetCmdVelData()
	if err != nil {
		t.Fatal(err)
	}
	if cv.Linear != 0.3 || cv.Angular != -0.1 || cv.Joint == nil || *cv.Joint != 0.02 {
		t.Errorf("cmd_vel = %+v", cv)
	}
}

func TestBridge_PublishDoesNotBlockOnStalledRobot(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)

	// This robot never reads, so its socket buffers eventually fill.
	dial(t, base+"/ws/robot/stalled")
	waitFor(t, func() bool { return b.RobotCount() == 1 })

	cmd := robot.NewCommand(0.3, 0.1).WithJoint(0.01)
	var slowest time.Duration
	for i := 0; i < 20000; i++ {
		start := time.Now()
		if err := b.Publish(cmd); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if d := time.Since(start); d > slowest {
			slowest = d
		}
	}
	if slowest > 20*time.Millisecond {
		t.Errorf("slowest Publish took %v, want no I/O on the caller", slowest)
	}
}

func TestBridge_PublishKeepsLatestCommand(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/base")
	waitFor(t, func() bool { return b.RobotCount() == 1 })

	for i := 1; i <= 50; i++ {
		b.Publish(robot.NewCommand(float64(i)/100, 0))
	}

	// Intermediate commands may be replaced, but the last one always arrives.
	var last float64
	for last != 0.5 {
		cv, err := read(t, ws).GetCmdVelData()
		if err != nil {
			t.Fatal(err)
		}
		if cv.Linear < last {
			t.Fatalf("linear went back from %v to %v", last, cv.Linear)
		}
		last = cv.Linear
	}
}

func TestBridge_BroadcastStatus(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/base")
	waitFor(t, func() bool { return b.RobotCount() == 1 })

	msg, _ := protocol.NewStatusMessage(protocol.StatusData{State: "running", Cycles: 12})
	if err := b.Broadcast(msg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	st, err := read(t, ws).GetStatusData()
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "running" || st.Cycles != 12 {
		t.Errorf("status = %+v", st)
	}
	waitFor(t, func() bool { return b.Stats().MessagesSent == 1 })
}

func TestBridge_PublishWithoutRobots(t *testing.T) {
	b := New(nil, nil, log.Discard())
	if err := b.Publish(robot.Stop); err != nil {
		t.Errorf("Publish with no robots = %v, want nil", err)
	}
}

func TestBridge_SendToUnknownRobot(t *testing.T) {
	b := New(nil, nil, log.Discard())
	msg, _ := protocol.NewPingMessage("x")
	if err := b.SendTo("nobody", msg); !errors.Is(err, ErrRobotNotConnected) {
		t.Errorf("SendTo error = %v, want ErrRobotNotConnected", err)
	}
}

func TestBridge_ParseErrorsCounted(t *testing.T) {
	b := New(nil, nil, log.Discard())
	base := startBridge(t, b)
	ws := dial(t, base+"/ws/robot/noisy")

	ws.WriteMessage(gorilla.TextMessage, []byte("not json"))
	waitFor(t, func() bool { return b.Stats().ParseErrors == 1 })
}

func TestBridge_APIRoutes(t *testing.T) {
	b := New(nil, nil, log.Discard())
	app := fiber.New()
	b.RegisterRoutes(app)
	b.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/robots/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"robots"`) {
		t.Errorf("body = %s, want robots field", body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/robots/stats", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("stats status = %d, want 200", resp.StatusCode)
	}
}

func TestBridge_RejectsPlainHTTP(t *testing.T) {
	b := New(nil, nil, log.Discard())
	app := fiber.New()
	b.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/robot/x", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
