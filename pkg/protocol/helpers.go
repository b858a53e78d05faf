package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewScanMessage creates a scan message
func NewScanMessage(ranges []float64, angleMin, angleIncrement, rangeMin, rangeMax float64) (*Message, error) {
	return NewMessage(TypeScan, ScanData{
		Ranges:         Ranges(ranges),
		AngleMin:       angleMin,
		AngleIncrement: angleIncrement,
		RangeMin:       rangeMin,
		RangeMax:       rangeMax,
	})
}

// NewCentroidMessage creates a target observation message
func NewCentroidMessage(seq uint64, x, y, z float64) (*Message, error) {
	return NewMessage(TypeCentroid, CentroidData{Seq: seq, X: x, Y: y, Z: z})
}

// NewAckMessage creates a centroid acknowledgment
func NewAckMessage(seq uint64, check bool, reason string) (*Message, error) {
	return NewMessage(TypeAck, AckData{Seq: seq, Check: check, Error: reason})
}

// NewCmdVelMessage creates an actuator command message
func NewCmdVelMessage(linear, angular float64, joint *float64) (*Message, error) {
	return NewMessage(TypeCmdVel, CmdVelData{
		Linear:  linear,
		Angular: angular,
		Joint:   joint,
	})
}

// NewStatusMessage creates a loop status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetScanData extracts scan data from a message
func (m *Message) GetScanData() (*ScanData, error) {
	var data ScanData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCentroidData extracts a target observation from a message
func (m *Message) GetCentroidData() (*CentroidData, error) {
	var data CentroidData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts an acknowledgment from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCmdVelData extracts an actuator command from a message
func (m *Message) GetCmdVelData() (*CmdVelData, error) {
	var data CmdVelData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts loop status from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
