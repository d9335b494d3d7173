// Package protocol defines the WebSocket message types exchanged with the vision
// process and pushed to dashboard clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-mission/pkg/perception"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Mission → Vision messages
	TypePull  MessageType = "pull"  // Request the current snapshot
	TypeQuery MessageType = "query" // On-demand query

	// Vision → Mission messages
	TypeSnapshot    MessageType = "snapshot"     // Reply to pull
	TypeQueryResult MessageType = "query_result" // Reply to query
	TypeError       MessageType = "error"        // Failed request

	// Mission → Dashboard messages
	TypeTransition MessageType = "transition" // Mode change
	TypeTelemetry  MessageType = "telemetry"  // Decoded inbound byte

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages.
// ID correlates a reply with its request.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
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

// WithID sets the correlation ID and returns m.
func (m *Message) WithID(id string) *Message {
	m.ID = id
	return m
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
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
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Mission → Vision Message Types
// =============================================================================

// QueryName names an on-demand vision query.
type QueryName string

const (
	QueryArrowDirection   QueryName = "arrow_direction"
	QueryDoorAlphabet     QueryName = "door_alphabet"
	QueryRoomAlphabet     QueryName = "room_alphabet"
	QueryBoxPosition      QueryName = "box_position"
	QueryCubePosition     QueryName = "cube_position"
	QuerySaferoomPosition QueryName = "saferoom_position"
)

// QueryData is the payload of a query message.
type QueryData struct {
	Name  QueryName            `json:"name"`
	Color perception.Color     `json:"color,omitempty"` // box_position only
	Edge  *perception.EdgeInfo `json:"edge,omitempty"`  // room_alphabet, box_position
}

// =============================================================================
// Vision → Mission Message Types
// =============================================================================

// QueryResultData is the payload of a query_result message. Exactly one of the
// value fields is set when Found is true.
type QueryResultData struct {
	Name         QueryName                `json:"name"`
	Found        bool                     `json:"found"`
	Point        *perception.Point        `json:"point,omitempty"`
	Direction    *perception.Direction    `json:"direction,omitempty"`
	Letter       *perception.Letter       `json:"letter,omitempty"`
	RoomAlphabet *perception.RoomAlphabet `json:"room_alphabet,omitempty"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Mission → Dashboard Message Types
// =============================================================================

// TransitionData reports a mode change.
type TransitionData struct {
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
	From    string `json:"from"`
	To      string `json:"to"`
	SubMode string `json:"sub_mode,omitempty"`
}

// TelemetryData reports one decoded inbound byte.
type TelemetryData struct {
	Kind  string `json:"kind"`
	Value uint8  `json:"value"`
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
