// Package hub fans controller output out to any number of websocket clients
// using a channel-based broadcast loop.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-follow/pkg/protocol"
)

// Message is one pre-encoded text frame.
type Message struct {
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// Encode marshals a protocol message into a hub frame.
func Encode(msg *protocol.Message) (Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
