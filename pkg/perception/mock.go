package perception

import (
	"context"
	"sync"
)

// Mock implements Service for testing.
// Pull returns Snapshots in order and then repeats the last one.
// Query methods can be customized via function fields; nil means "nothing found".
type Mock struct {
	Snapshots []Snapshot

	PullFunc             func(ctx context.Context, req Request) (Snapshot, error)
	ArrowDirectionFunc   func(ctx context.Context) (*Direction, error)
	DoorAlphabetFunc     func(ctx context.Context) (*Letter, error)
	RoomAlphabetInfoFunc func(ctx context.Context, edge EdgeInfo) (*RoomAlphabet, error)
	BoxPositionFunc      func(ctx context.Context, color Color, edge EdgeInfo) (*Point, error)
	CubePositionFunc     func(ctx context.Context) (*Point, error)
	SaferoomPositionFunc func(ctx context.Context) (*Point, error)

	// Tracking
	mu       sync.Mutex
	next     int
	closed   bool
	calls    []string
	requests []Request
}

// NewMock creates a mock that plays back snaps.
func NewMock(snaps ...Snapshot) *Mock {
	return &Mock{Snapshots: snaps}
}

// Pull implements Service.
func (m *Mock) Pull(ctx context.Context, req Request) (Snapshot, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "Pull")
	m.requests = append(m.requests, req)
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if m.PullFunc != nil {
		fn := m.PullFunc
		m.mu.Unlock()
		return fn(ctx, req)
	}
	defer m.mu.Unlock()

	if len(m.Snapshots) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	i := m.next
	if i >= len(m.Snapshots) {
		i = len(m.Snapshots) - 1
	} else {
		m.next++
	}
	snap := m.Snapshots[i]
	snap.Seq = uint64(i + 1)
	return snap, nil
}

// ArrowDirection implements Service.
func (m *Mock) ArrowDirection(ctx context.Context) (*Direction, error) {
	m.record("ArrowDirection")
	if m.ArrowDirectionFunc != nil {
		return m.ArrowDirectionFunc(ctx)
	}
	return nil, nil
}

// DoorAlphabet implements Service.
func (m *Mock) DoorAlphabet(ctx context.Context) (*Letter, error) {
	m.record("DoorAlphabet")
	if m.DoorAlphabetFunc != nil {
		return m.DoorAlphabetFunc(ctx)
	}
	return nil, nil
}

// RoomAlphabetInfo implements Service.
func (m *Mock) RoomAlphabetInfo(ctx context.Context, edge EdgeInfo) (*RoomAlphabet, error) {
	m.record("RoomAlphabetInfo")
	if m.RoomAlphabetInfoFunc != nil {
		return m.RoomAlphabetInfoFunc(ctx, edge)
	}
	return nil, nil
}

// BoxPosition implements Service.
func (m *Mock) BoxPosition(ctx context.Context, color Color, edge EdgeInfo) (*Point, error) {
	m.record("BoxPosition")
	if m.BoxPositionFunc != nil {
		return m.BoxPositionFunc(ctx, color, edge)
	}
	return nil, nil
}

// CubePosition implements Service.
func (m *Mock) CubePosition(ctx context.Context) (*Point, error) {
	m.record("CubePosition")
	if m.CubePositionFunc != nil {
		return m.CubePositionFunc(ctx)
	}
	return nil, nil
}

// SaferoomPosition implements Service.
func (m *Mock) SaferoomPosition(ctx context.Context) (*Point, error) {
	m.record("SaferoomPosition")
	if m.SaferoomPositionFunc != nil {
		return m.SaferoomPositionFunc(ctx)
	}
	return nil, nil
}

// Close implements Service.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()
}

// Calls returns the names of every method invoked, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Requests returns every Request passed to Pull.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
