package actuator

import (
	"context"
	"sync"

	"github.com/teslashibe/go-mission/pkg/motion"
)

// Recorder implements Executor for testing. It records every command and
// optionally fails some of them.
type Recorder struct {
	// ExecuteFunc, if set, decides the result of each command.
	ExecuteFunc func(ctx context.Context, cmd Command) error

	mu       sync.Mutex
	commands []Command
}

// NewRecorder creates a recorder that accepts every command.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Execute records cmd and calls ExecuteFunc.
func (r *Recorder) Execute(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if r.ExecuteFunc != nil {
		return r.ExecuteFunc(ctx, cmd)
	}
	return nil
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Reset clears the recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}

// MockSender implements Sender for testing.
type MockSender struct {
	// SendFunc, if set, decides the result of each send.
	SendFunc func(ctx context.Context, op motion.Opcode) error
	// DistanceValue is returned by Distance.
	DistanceValue uint8

	mu  sync.Mutex
	ops []motion.Opcode
}

// Send records op and calls SendFunc.
func (m *MockSender) Send(ctx context.Context, op motion.Opcode) error {
	m.mu.Lock()
	m.ops = append(m.ops, op)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, op)
	}
	return nil
}

// Distance returns DistanceValue.
func (m *MockSender) Distance() uint8 {
	return m.DistanceValue
}

// Opcodes returns a copy of every opcode passed to Send, including failed attempts.
func (m *MockSender) Opcodes() []motion.Opcode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]motion.Opcode, len(m.ops))
	copy(out, m.ops)
	return out
}
