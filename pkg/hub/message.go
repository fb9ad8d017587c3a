// Package hub fans state updates out to websocket clients using a
// channel-based register/unregister/broadcast loop.
package hub

import "encoding/json"

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// TextMessage is a UTF-8 (usually JSON) frame.
	TextMessage MessageType = iota
	// BinaryMessage is raw bytes.
	BinaryMessage
)

// Message is one frame queued for every client.
type Message struct {
	Type MessageType
	Data []byte
}

// Event is the JSON envelope sent to status clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewTextMessage wraps pre-encoded text.
func NewTextMessage(data []byte) Message {
	return Message{Type: TextMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewEvent encodes an Event envelope.
func NewEvent(kind string, v any) (Message, error) {
	data, err := json.Marshal(Event{Type: kind, Data: v})
	if err != nil {
		return Message{}, err
	}
	return NewTextMessage(data), nil
}
