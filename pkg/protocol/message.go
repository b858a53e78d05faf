// Package protocol defines the WebSocket message types exchanged between the
// follower controller and a robot (or simulated base).
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoData is returned when a message that needs a payload has none.
	ErrNoData = errors.New("protocol: message has no data")

	// ErrMissingField is returned when a required payload field is absent.
	ErrMissingField = errors.New("protocol: missing field")
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Robot → Controller messages
	TypeScan     MessageType = "scan"     // Laser sweep
	TypeCentroid MessageType = "centroid" // Tracked target observation

	// Controller → Robot messages
	TypeAck    MessageType = "ack"     // Centroid acknowledgment
	TypeCmdVel MessageType = "cmd_vel" // Actuator command
	TypeStatus MessageType = "status"  // Loop status

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct. A missing
// or null payload is an error.
func (m *Message) ParseData(v interface{}) error {
	if len(m.Data) == 0 || bytes.Equal(bytes.TrimSpace(m.Data), []byte("null")) {
		return fmt.Errorf("%w: %s", ErrNoData, m.Type)
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Robot → Controller Message Types
// =============================================================================

// Ranges is a list of distances in meters. JSON has no infinities, so a
// missing return travels as null and an invalid reading as -1.
type Ranges []float64

// MarshalJSON implements json.Marshaler.
func (r Ranges) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		switch {
		case math.IsInf(v, 1):
			buf.WriteString("null")
		case math.IsNaN(v), math.IsInf(v, -1):
			buf.WriteString("-1")
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ranges) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Ranges, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = *p
	}
	*r = out
	return nil
}

// ScanData contains one laser sweep
type ScanData struct {
	Ranges         Ranges  `json:"ranges"`
	AngleMin       float64 `json:"angle_min,omitempty"`       // Radians
	AngleIncrement float64 `json:"angle_increment,omitempty"` // Radians per beam
	RangeMin       float64 `json:"range_min,omitempty"`       // Meters
	RangeMax       float64 `json:"range_max,omitempty"`       // Meters
}

// CentroidData contains a target observation
type CentroidData struct {
	Seq uint64  `json:"seq,omitempty"` // Echoed in the ack
	X   float64 `json:"x"`             // Pixels
	Y   float64 `json:"y"`             // Pixels
	Z   float64 `json:"z"`             // Depth, meters
}

// UnmarshalJSON requires x, y and z. An absent coordinate would otherwise
// decode as 0, which is a valid but very different observation.
func (c *CentroidData) UnmarshalJSON(data []byte) error {
	var raw struct {
		Seq uint64   `json:"seq"`
		X   *float64 `json:"x"`
		Y   *float64 `json:"y"`
		Z   *float64 `json:"z"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.X == nil:
		return fmt.Errorf("%w: centroid x", ErrMissingField)
	case raw.Y == nil:
		return fmt.Errorf("%w: centroid y", ErrMissingField)
	case raw.Z == nil:
		return fmt.Errorf("%w: centroid z", ErrMissingField)
	}
	*c = CentroidData{Seq: raw.Seq, X: *raw.X, Y: *raw.Y, Z: *raw.Z}
	return nil
}

// =============================================================================
// Controller → Robot Message Types
// =============================================================================

// AckData answers a centroid message
type AckData struct {
	Seq   uint64 `json:"seq,omitempty"`
	Check bool   `json:"check"`
	Error string `json:"error,omitempty"`
}

// CmdVelData is one actuator command
type CmdVelData struct {
	Linear  float64  `json:"linear"`          // m/s
	Angular float64  `json:"angular"`         // rad/s
	Joint   *float64 `json:"joint,omitempty"` // rad/s, head joint
}

// StatusData summarizes the control loop
type StatusData struct {
	RunID     string  `json:"run_id"`
	State     string  `json:"state"`
	Cycles    uint64  `json:"cycles"`
	Clearance float64 `json:"clearance"`
	Blocked   bool    `json:"blocked"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
