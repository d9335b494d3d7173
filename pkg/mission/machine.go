// Package mission is the course state machine: one handler per mode, run
// once per tick against the latest perception snapshot.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

// Transition is reported to observers when the mode or walk sub-mode changes.
type Transition struct {
	Tick    uint64      `json:"tick"`
	From    Mode        `json:"from"`
	To      Mode        `json:"to"`
	SubMode WalkSubMode `json:"sub_mode"`
	At      time.Time   `json:"at"`
}

// Observer receives mission events. Calls happen on the goroutine running
// Step and must not block.
type Observer interface {
	OnTransition(t Transition)
	OnGap(tick uint64, gap PerceptionGap)
}

// Result describes one tick.
type Result struct {
	Tick     uint64
	From     Mode
	To       Mode
	Commands []actuator.Command // executed commands
	Gap      *PerceptionGap
	Resumed  bool // the tick finished an earlier tick's commands
}

// pendingTick is a planned tick whose commands stopped part way. Only the
// commands from the failed one onward are left to run.
type pendingTick struct {
	next Context
	cmds []actuator.Command
}

// Machine owns the mission context and advances it one tick at a time.
type Machine struct {
	exec     actuator.Executor
	th       Thresholds
	handlers map[Mode]Handler
	logger   *slog.Logger

	// mu guards ctx for readers; Step itself is not reentrant.
	mu        sync.RWMutex
	ctx       Context
	pending   *pendingTick
	observers []Observer
}

// NewMachine creates a machine starting in initial. Commands go to exec.
func NewMachine(exec actuator.Executor, initial Mode, th Thresholds, logger *slog.Logger) (*Machine, error) {
	if !initial.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(initial))
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		exec:     exec,
		th:       th,
		handlers: defaultHandlers(),
		logger:   logger.With("component", "mission"),
		ctx:      NewContext(initial, th),
	}, nil
}

func defaultHandlers() map[Mode]Handler {
	return map[Mode]Handler{
		ModeStart:               handleStart,
		ModeDetectAlphabet:      handleDetectAlphabet,
		ModeDetectDirection:     handleDetectDirection,
		ModeDetectDirectionFail: handleDetectDirection,
		ModeWalk:                handleWalk,
		ModeStartMission:        handleStartMission,
		ModeRecognizeAreaColor:  handleRecognizeAreaColor,
		ModeDetectRoomAlphabet:  handleDetectRoomAlphabet,
		ModeFindBox:             handleFindBox,
		ModeTrackBox:            handleTrackBox,
		ModeCatchBox:            handleCatchBox,
		ModeCheckArea:           handleCheckArea,
		ModeFitArea:             handleFitArea,
		ModeMoveIntoArea:        handleMoveIntoArea,
		ModeBoxIntoArea:         handleBoxIntoArea,
		ModeEndMission:          handleEndMission,
		ModeFindEdge:            handleFindEdge,
		ModeReturnLine:          handleReturnLine,
		ModeFindVertical:        handleFindVertical,
		ModeIsFinishLine:        handleIsFinishLine,
		ModeFinish:              handleFinish,
		ModeTrackCube:           handleTrackCube,
	}
}

// Subscribe adds an observer. Not safe to call concurrently with Step.
func (m *Machine) Subscribe(o Observer) {
	m.observers = append(m.observers, o)
}

// Thresholds returns the thresholds the machine was built with.
func (m *Machine) Thresholds() Thresholds {
	return m.th
}

// Context returns a copy of the current context.
func (m *Machine) Context() Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.ctx
	c.History = m.ctx.History.clone()
	return c
}

// Reset replaces the context, for resuming a run part way through the
// course. An empty head queue is filled from the thresholds.
func (m *Machine) Reset(c Context) error {
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(c.Mode))
	}
	if c.HeadQueue == (HeadQueue{}) {
		c.HeadQueue = m.th.HeadQueue
	}
	if c.ActiveColor == "" {
		c.ActiveColor = perception.Yellow
	}
	c.History = c.History.clone()

	m.mu.Lock()
	m.ctx = c
	m.pending = nil
	m.mu.Unlock()
	return nil
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx.Mode
}

// History returns the recorded modes, oldest first.
func (m *Machine) History() []Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx.History.Entries()
}

// Pending returns the commands still owed by a tick that failed part way.
// The next Step runs them before any handler.
func (m *Machine) Pending() []actuator.Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pending == nil {
		return nil
	}
	return append([]actuator.Command(nil), m.pending.cmds...)
}

// Needs says what the next tick's snapshot has to contain. A tick that only
// finishes pending commands needs nothing beyond the line.
func (m *Machine) Needs() perception.Request {
	m.mu.RLock()
	c := m.ctx
	resuming := m.pending != nil
	m.mu.RUnlock()
	if resuming {
		return perception.Request{LineColor: needs(c).LineColor}
	}
	return needs(c)
}

func needs(c Context) perception.Request {
	req := perception.Request{LineColor: c.ActiveColor}
	if req.LineColor == "" {
		req.LineColor = perception.Yellow
	}

	switch c.Mode {
	case ModeDetectAlphabet:
		req.DoorAlphabet = c.Alphabet == ""
	case ModeDetectDirection, ModeDetectDirectionFail:
		req.Arrow = !c.Direction.Valid()
	case ModeRecognizeAreaColor:
		req.LineColor = perception.Green
	case ModeDetectRoomAlphabet:
		req.RoomAlphabet = c.AlphabetColor == ""
	case ModeFindBox, ModeTrackBox:
		req.Box = true
		req.BoxColor = c.AlphabetColor
	case ModeTrackCube:
		req.Cube = !c.CubeGrabbed
		req.Saferoom = c.CubeGrabbed
	}
	return req
}

// Step runs the current mode's handler against snap and executes the
// commands it returns. A perception gap skips the tick without error. When a
// command fails the context is left as it was and the commands from the
// failed one onward are kept; the next Step runs only those, then commits
// what the handler planned. Commands that already ran are never repeated.
func (m *Machine) Step(ctx context.Context, snap perception.Snapshot) (Result, error) {
	m.mu.Lock()
	m.ctx.Tick++
	cur := m.ctx
	pend := m.pending
	m.mu.Unlock()

	res := Result{Tick: cur.Tick, From: cur.Mode, To: cur.Mode}

	var (
		next Context
		cmds []actuator.Command
	)
	if pend != nil {
		next, cmds = pend.next, pend.cmds
		res.Resumed = true
		m.logger.Info("resuming commands", "tick", cur.Tick, "mode", cur.Mode, "remaining", len(cmds))
	} else {
		h, ok := m.handlers[cur.Mode]
		if !ok {
			return res, fmt.Errorf("%w: %s", ErrUnknownMode, cur.Mode)
		}

		var err error
		next, cmds, err = h(cur, snap, &m.th)
		if err != nil {
			var gap *PerceptionGap
			if errors.As(err, &gap) {
				res.Gap = gap
				m.logger.Warn("perception gap", "tick", cur.Tick, "mode", cur.Mode, "field", gap.Field)
				for _, o := range m.observers {
					o.OnGap(cur.Tick, *gap)
				}
				return res, nil
			}
			return res, fmt.Errorf("mission: %s: %w", cur.Mode, err)
		}
	}

	for i, cmd := range cmds {
		if err := m.exec.Execute(ctx, cmd); err != nil {
			res.Commands = cmds[:i]
			m.mu.Lock()
			m.pending = &pendingTick{next: next, cmds: cmds[i:]}
			m.mu.Unlock()
			return res, fmt.Errorf("mission: %s: %s: %w", cur.Mode, cmd, err)
		}
	}
	res.Commands = cmds

	if next.Mode != ModeWalk {
		next.WalkSubMode = SubStraight
	}
	next.Tick = cur.Tick
	next.History.Push(next.Mode)

	m.mu.Lock()
	m.ctx = next
	m.pending = nil
	m.mu.Unlock()
	res.To = next.Mode

	if next.Mode != cur.Mode || next.WalkSubMode != cur.WalkSubMode {
		m.logger.Info("transition", "tick", cur.Tick, "from", cur.Mode, "to", next.Mode, "sub_mode", next.WalkSubMode)
		t := Transition{
			Tick:    cur.Tick,
			From:    cur.Mode,
			To:      next.Mode,
			SubMode: next.WalkSubMode,
			At:      time.Now(),
		}
		for _, o := range m.observers {
			o.OnTransition(t)
		}
	} else if len(cmds) > 0 {
		m.logger.Debug("tick", "tick", cur.Tick, "mode", cur.Mode, "commands", len(cmds))
	}

	return res, nil
}
