package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "scan message",
			msgType: TypeScan,
			data:    ScanData{Ranges: Ranges{1, 2, 3}},
			wantErr: false,
		},
		{
			name:    "centroid message",
			msgType: TypeCentroid,
			data:    CentroidData{X: 320, Y: 240, Z: 2},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if msg == nil && !tt.wantErr {
				t.Error("NewMessage() returned nil message")
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestScanMessage_NonFiniteRanges(t *testing.T) {
	msg, err := NewScanMessage([]float64{1.5, math.Inf(1), math.NaN(), 0.3}, -math.Pi, 0.01, 0.05, 25)
	if err != nil {
		t.Fatalf("NewScanMessage() error = %v", err)
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	scan, err := parsed.GetScanData()
	if err != nil {
		t.Fatalf("GetScanData() error = %v", err)
	}
	if len(scan.Ranges) != 4 {
		t.Fatalf("len(Ranges) = %d, want 4", len(scan.Ranges))
	}
	if scan.Ranges[0] != 1.5 || scan.Ranges[3] != 0.3 {
		t.Errorf("finite ranges = %v", scan.Ranges)
	}
	if !math.IsInf(scan.Ranges[1], 1) {
		t.Errorf("no-return beam decoded as %v, want +Inf", scan.Ranges[1])
	}
	if scan.Ranges[2] != -1 {
		t.Errorf("invalid beam decoded as %v, want -1", scan.Ranges[2])
	}
	if scan.AngleMin != -math.Pi || scan.RangeMax != 25 {
		t.Errorf("metadata = %+v", scan)
	}
}

func TestCentroidAndAck(t *testing.T) {
	msg, err := NewCentroidMessage(7, 310, 250, 2.2)
	if err != nil {
		t.Fatalf("NewCentroidMessage() error = %v", err)
	}
	c, err := msg.GetCentroidData()
	if err != nil {
		t.Fatalf("GetCentroidData() error = %v", err)
	}
	if c.Seq != 7 || c.X != 310 || c.Y != 250 || c.Z != 2.2 {
		t.Errorf("centroid = %+v", c)
	}

	ack, err := NewAckMessage(c.Seq, false, "negative depth")
	if err != nil {
		t.Fatalf("NewAckMessage() error = %v", err)
	}
	a, err := ack.GetAckData()
	if err != nil {
		t.Fatalf("GetAckData() error = %v", err)
	}
	if a.Seq != 7 || a.Check || a.Error != "negative depth" {
		t.Errorf("ack = %+v", a)
	}
}

func TestCmdVelMessage(t *testing.T) {
	joint := 0.25
	msg, err := NewCmdVelMessage(0.5, -0.1, &joint)
	if err != nil {
		t.Fatalf("NewCmdVelMessage() error = %v", err)
	}
	cmd, err := msg.GetCmdVelData()
	if err != nil {
		t.Fatalf("GetCmdVelData() error = %v", err)
	}
	if cmd.Linear != 0.5 || cmd.Angular != -0.1 || cmd.Joint == nil || *cmd.Joint != 0.25 {
		t.Errorf("cmd_vel = %+v", cmd)
	}

	base, _ := NewCmdVelMessage(0.5, 0, nil)
	var parsed map[string]interface{}
	json.Unmarshal(base.Data, &parsed)
	if _, ok := parsed["joint"]; ok {
		t.Error("joint should be omitted for base-only commands")
	}
}

func TestStatusMessage(t *testing.T) {
	msg, err := NewStatusMessage(StatusData{RunID: "r1", State: "running", Cycles: 42, Clearance: 0.9, Blocked: true})
	if err != nil {
		t.Fatalf("NewStatusMessage() error = %v", err)
	}
	st, err := msg.GetStatusData()
	if err != nil {
		t.Fatalf("GetStatusData() error = %v", err)
	}
	if st.State != "running" || st.Cycles != 42 || !st.Blocked {
		t.Errorf("status = %+v", st)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "empty json",
			input:   "{}",
			wantErr: false, // Empty is valid, just no type
		},
		{
			name:    "valid message",
			input:   `{"type":"scan","ts":1234567890,"data":{"ranges":[1,null,2]}}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetCentroidData_Incomplete(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"no data", `{"type":"centroid"}`, ErrNoData},
		{"null data", `{"type":"centroid","data":null}`, ErrNoData},
		{"empty object", `{"type":"centroid","data":{}}`, ErrMissingField},
		{"missing depth", `{"type":"centroid","data":{"x":320,"y":240}}`, ErrMissingField},
		{"missing x", `{"type":"centroid","data":{"y":240,"z":2}}`, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if _, err := msg.GetCentroidData(); !errors.Is(err, tt.want) {
				t.Errorf("GetCentroidData() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetCentroidData_ZeroIsPresent(t *testing.T) {
	msg, _ := ParseMessage([]byte(`{"type":"centroid","data":{"seq":4,"x":0,"y":0,"z":0}}`))
	c, err := msg.GetCentroidData()
	if err != nil {
		t.Fatalf("explicit zeros should parse: %v", err)
	}
	if c.Seq != 4 {
		t.Errorf("Seq = %d, want 4", c.Seq)
	}
}

func TestMessageJSON(t *testing.T) {
	msg, _ := NewCmdVelMessage(0.3, 0.1, nil)
	bytes, _ := msg.Bytes()

	var parsed map[string]interface{}
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "cmd_vel" {
		t.Errorf("type = %v, want cmd_vel", parsed["type"])
	}
	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}
	if _, ok := parsed["data"]; !ok {
		t.Error("data field should be present")
	}
}

func BenchmarkNewScanMessage(b *testing.B) {
	ranges := make([]float64, 720)
	for i := range ranges {
		ranges[i] = float64(i%50) / 10
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewScanMessage(ranges, -math.Pi, 2*math.Pi/720, 0.05, 25)
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewScanMessage(make([]float64, 720), 0, 0, 0, 0)
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(bytes)
	}
}
