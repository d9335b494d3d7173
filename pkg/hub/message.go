// Package hub fans dashboard events out to websocket clients. One goroutine
// owns the client set; each client has its own writer.
package hub

import "encoding/json"

// MessageType is the websocket frame type a message is sent as.
type MessageType int

const (
	TextMessage MessageType = iota
	BinaryMessage
)

// Message is one payload queued for every client.
type Message struct {
	Type MessageType
	Data []byte
}

// Text wraps pre-encoded bytes as a text message.
func Text(data []byte) Message {
	return Message{Type: TextMessage, Data: data}
}

// JSON encodes v as a text message.
func JSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Text(data), nil
}
