// Package motion implements the one-byte serial command link to the actuator controller.
//
// Every outbound command is a single opcode byte. The controller answers on the same
// link: 200 acknowledges the last command, 16 asks the host to stop listening, and
// any other byte is the latest IR distance sample. At most one command may be
// unacknowledged at a time; Send enforces that with a bounded wait.
package motion

import (
	"fmt"
	"time"
)

// Reserved inbound bytes.
const (
	ByteExit byte = 16
	ByteAck  byte = 200
)

// Opcode is a one-byte command understood by the actuator controller.
type Opcode uint8

// CommandFrame is an opcode sent Repeat times with Delay between repeats.
type CommandFrame struct {
	Opcode Opcode
	Repeat int
	Delay  time.Duration
}

// String formats the frame for logs.
func (f CommandFrame) String() string {
	if f.Delay > 0 {
		return fmt.Sprintf("op=%d x%d every %s", f.Opcode, f.Repeat, f.Delay)
	}
	return fmt.Sprintf("op=%d x%d", f.Opcode, f.Repeat)
}

// EventKind tags a decoded telemetry byte.
type EventKind int

const (
	EventDistance EventKind = iota
	EventAck
	EventExit
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventAck:
		return "ack"
	case EventExit:
		return "exit"
	default:
		return "distance"
	}
}

// TelemetryEvent is one decoded inbound byte.
type TelemetryEvent struct {
	Kind  EventKind `json:"kind"`
	Value uint8     `json:"value"`
	At    time.Time `json:"at"`
}

// Decode classifies an inbound byte.
func Decode(b byte) TelemetryEvent {
	switch b {
	case ByteExit:
		return TelemetryEvent{Kind: EventExit, Value: b}
	case ByteAck:
		return TelemetryEvent{Kind: EventAck, Value: b}
	default:
		return TelemetryEvent{Kind: EventDistance, Value: b}
	}
}

// Stats is a point-in-time view of link counters.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Acks     uint64 `json:"acks"`
	Lost     uint64 `json:"lost"`     // frames whose Ack never arrived
	Spurious uint64 `json:"spurious"` // Acks with nothing in flight
	Distance uint8  `json:"distance"`
	InFlight bool   `json:"in_flight"`
	Debug    bool   `json:"debug"`
}
