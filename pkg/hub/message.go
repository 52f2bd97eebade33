// Package hub fans session events out to websocket subscribers using a
// single goroutine that owns the client set.
package hub

import "encoding/json"

// MessageType selects the websocket frame type.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame, e.g. raw PCM for a visualizer.
	BinaryMessage
)

// Message is one frame queued for every client.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Envelope is the JSON shape every event takes on the wire.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EncodeEnvelope marshals an envelope into a JSON message.
func EncodeEnvelope(typ string, data any) (Message, error) {
	b, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}
