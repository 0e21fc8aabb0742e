// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/gazelog/pkg/protocol"
)

// Message is a JSON text frame to be broadcast to clients
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded JSON bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewProtocolMessage wraps data in a protocol envelope of the given type.
func NewProtocolMessage(msgType protocol.MessageType, data interface{}) (Message, error) {
	msg, err := protocol.NewMessage(msgType, data)
	if err != nil {
		return Message{}, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(raw), nil
}
