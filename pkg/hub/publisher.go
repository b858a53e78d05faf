package hub

import (
	"errors"

	"github.com/teslashibe/go-follow/pkg/protocol"
	"github.com/teslashibe/go-follow/pkg/robot"
)

// ErrQueueFull is returned when the hub cannot accept another frame.
var ErrQueueFull = errors.New("hub: broadcast queue full")

// CmdVelPublisher broadcasts every command as a cmd_vel message.
type CmdVelPublisher struct {
	hub *Hub
}

// NewCmdVelPublisher publishes through h.
func NewCmdVelPublisher(h *Hub) *CmdVelPublisher {
	return &CmdVelPublisher{hub: h}
}

// Publish implements robot.Publisher. A command with no subscribers is not
// an error.
func (p *CmdVelPublisher) Publish(cmd robot.Command) error {
	msg, err := protocol.NewCmdVelMessage(cmd.Linear, cmd.Angular, cmd.Clone().Joint)
	if err != nil {
		return err
	}
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if !p.hub.Broadcast(frame) {
		return ErrQueueFull
	}
	return nil
}

var _ robot.Publisher = (*CmdVelPublisher)(nil)
