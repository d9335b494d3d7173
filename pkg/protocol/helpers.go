package protocol

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-mission/pkg/perception"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPullMessage creates a pull request for the current snapshot
func NewPullMessage(id string, req perception.Request) (*Message, error) {
	msg, err := NewMessage(TypePull, req)
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewSnapshotMessage creates a snapshot reply
func NewSnapshotMessage(id string, snap perception.Snapshot) (*Message, error) {
	msg, err := NewMessage(TypeSnapshot, snap)
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewQueryMessage creates an on-demand query
func NewQueryMessage(id string, q QueryData) (*Message, error) {
	msg, err := NewMessage(TypeQuery, q)
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewQueryResultMessage creates a query reply
func NewQueryResultMessage(id string, r QueryResultData) (*Message, error) {
	msg, err := NewMessage(TypeQueryResult, r)
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewErrorMessage creates an error reply
func NewErrorMessage(id, code, message string) (*Message, error) {
	msg, err := NewMessage(TypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewTransitionMessage creates a mode change notification
func NewTransitionMessage(t TransitionData) (*Message, error) {
	return NewMessage(TypeTransition, t)
}

// NewTelemetryMessage creates a telemetry notification
func NewTelemetryMessage(kind string, value uint8) (*Message, error) {
	return NewMessage(TypeTelemetry, TelemetryData{Kind: kind, Value: value})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	msg, err := NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	msg, err := NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetRequest extracts the pull request from a message
func (m *Message) GetRequest() (*perception.Request, error) {
	var data perception.Request
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSnapshot extracts the snapshot from a message
func (m *Message) GetSnapshot() (*perception.Snapshot, error) {
	if m.Type != TypeSnapshot {
		return nil, fmt.Errorf("expected %s message, got %s", TypeSnapshot, m.Type)
	}
	var data perception.Snapshot
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetQuery extracts query data from a message
func (m *Message) GetQuery() (*QueryData, error) {
	var data QueryData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetQueryResult extracts query result data from a message
func (m *Message) GetQueryResult() (*QueryResultData, error) {
	if m.Type != TypeQueryResult {
		return nil, fmt.Errorf("expected %s message, got %s", TypeQueryResult, m.Type)
	}
	var data QueryResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTransitionData extracts transition data from a message
func (m *Message) GetTransitionData() (*TransitionData, error) {
	var data TransitionData
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
