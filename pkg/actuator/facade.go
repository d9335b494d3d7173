// Package actuator maps semantic robot actions (walk, turn, head, grip, arm,
// announcements) onto controller opcodes and sends them over the motion link.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-mission/pkg/motion"
)

// Sender is the part of the motion protocol the facade needs.
type Sender interface {
	Send(ctx context.Context, op motion.Opcode) error
	Distance() uint8
}

// Executor runs mission commands.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// Config tunes the facade.
type Config struct {
	// MaxAttempts is how many times one opcode is sent before a retryable link
	// error surfaces.
	MaxAttempts int
	// RetryBackoff is slept between attempts.
	RetryBackoff time.Duration
	// TurnDelay is slept after each turn step when the command does not set one.
	TurnDelay time.Duration
	// ArmSettle is slept between the arm opcode and the head follow-up.
	ArmSettle time.Duration
}

// DefaultConfig returns the timings the stock firmware expects.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		RetryBackoff: 50 * time.Millisecond,
		TurnDelay:    500 * time.Millisecond,
		ArmSettle:    500 * time.Millisecond,
	}
}

// HeadState is the last commanded head position.
type HeadState struct {
	Vertical        Direction `json:"vertical"` // Down or CenterVertical
	VerticalAngle   int       `json:"vertical_angle,omitempty"`
	Horizontal      Direction `json:"horizontal"` // Left, Right or CenterHorizontal
	HorizontalAngle int       `json:"horizontal_angle,omitempty"`
}

// Facade sends semantic actions through a Sender.
type Facade struct {
	sender Sender
	cfg    Config
	logger *slog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.RWMutex
	head HeadState
}

// NewFacade creates a facade over sender.
func NewFacade(sender Sender, cfg Config, logger *slog.Logger) *Facade {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		sender: sender,
		cfg:    cfg,
		logger: logger.With("component", "actuator"),
		sleep:  sleepCtx,
		head:   HeadState{Vertical: CenterVertical, Horizontal: CenterHorizontal},
	}
}

// send writes one opcode, retrying retryable link errors.
func (f *Facade) send(ctx context.Context, op motion.Opcode) error {
	for attempt := 1; ; attempt++ {
		err := f.sender.Send(ctx, op)
		if err == nil {
			return nil
		}
		if attempt >= f.cfg.MaxAttempts || !motion.IsRetryable(err) {
			return fmt.Errorf("actuator: opcode %d after %d attempt(s): %w", op, attempt, err)
		}

		f.logger.Warn("send failed, retrying", "opcode", int(op), "attempt", attempt, "error", err)
		if err := f.sleep(ctx, f.cfg.RetryBackoff); err != nil {
			return err
		}
	}
}

// Walk takes loop steps in dir. grab selects the variant that keeps the gripper closed.
func (f *Facade) Walk(ctx context.Context, dir Direction, loop int, grab bool) error {
	op, err := WalkOpcode(dir, grab)
	if err != nil {
		return err
	}
	for i := 0; i < loop; i++ {
		if err := f.send(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// Turn turns loop times in dir, sleeping delay after each step.
func (f *Facade) Turn(ctx context.Context, dir Direction, loop int, delay time.Duration, grab, sliding bool) error {
	op, err := TurnOpcode(dir, grab, sliding)
	if err != nil {
		return err
	}
	for i := 0; i < loop; i++ {
		if err := f.send(ctx, op); err != nil {
			return err
		}
		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// SetHead moves the head. Down, Left and Right need a mapped angle; the center
// directions ignore it.
func (f *Facade) SetHead(ctx context.Context, dir Direction, angle int) error {
	op, err := HeadOpcode(dir, angle)
	if err != nil {
		return err
	}
	if err := f.send(ctx, op); err != nil {
		return err
	}

	f.mu.Lock()
	switch dir {
	case Down:
		f.head.Vertical, f.head.VerticalAngle = Down, angle
	case CenterVertical:
		f.head.Vertical, f.head.VerticalAngle = CenterVertical, 0
	case Left, Right:
		f.head.Horizontal, f.head.HorizontalAngle = dir, angle
	case CenterHorizontal:
		f.head.Horizontal, f.head.HorizontalAngle = CenterHorizontal, 0
	}
	f.mu.Unlock()
	return nil
}

// Head returns the last commanded head position.
func (f *Facade) Head() HeadState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.head
}

// Grab closes (true) or opens the gripper.
func (f *Facade) Grab(ctx context.Context, close bool) error {
	if close {
		return f.send(ctx, opGripClose)
	}
	return f.send(ctx, opGripOpen)
}

// GetIR asks the controller for a fresh IR reading and returns the cached sample.
// The reply arrives asynchronously, so the value may predate the trigger.
func (f *Facade) GetIR(ctx context.Context) (uint8, error) {
	for i := 0; i < 2; i++ {
		if err := f.send(ctx, opIRTrigger); err != nil {
			return 0, err
		}
	}
	return f.sender.Distance(), nil
}

// NotifyDirection announces a compass letter.
func (f *Facade) NotifyDirection(ctx context.Context, l Letter) error {
	op, ok := letterOpcodes[l]
	if !ok {
		return &ConfigError{Table: "notify_direction", Key: l, Err: ErrUnknownLetter}
	}
	return f.send(ctx, op)
}

// NotifyArea announces an area color.
func (f *Facade) NotifyArea(ctx context.Context, a Area) error {
	op, ok := areaOpcodes[a]
	if !ok {
		return &ConfigError{Table: "notify_area", Key: a, Err: ErrUnknownArea}
	}
	return f.send(ctx, op)
}

// MoveArm raises the arm to level and lets the head follow to the angle the
// firmware pairs with it.
func (f *Facade) MoveArm(ctx context.Context, level int, holding bool) error {
	op, head, err := ArmOpcode(level, holding)
	if err != nil {
		return err
	}
	if err := f.send(ctx, op); err != nil {
		return err
	}
	if err := f.sleep(ctx, f.cfg.ArmSettle); err != nil {
		return err
	}
	return f.SetHead(ctx, Down, head)
}

// BasicForm returns the robot to its resting pose with the head centered.
func (f *Facade) BasicForm(ctx context.Context) error {
	for _, op := range basicForm {
		if err := f.send(ctx, op); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.head = HeadState{Vertical: CenterVertical, Horizontal: CenterHorizontal}
	f.mu.Unlock()
	return nil
}

// OpenDoor pushes the door loop times.
func (f *Facade) OpenDoor(ctx context.Context, loop int) error {
	for i := 0; i < loop; i++ {
		if err := f.send(ctx, opOpenDoor); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs one mission command.
func (f *Facade) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case KindWalk:
		return f.Walk(ctx, cmd.Dir, cmd.loop(), cmd.Grab)
	case KindTurn:
		delay := cmd.Delay
		if delay == 0 {
			delay = f.cfg.TurnDelay
		}
		return f.Turn(ctx, cmd.Dir, cmd.loop(), delay, cmd.Grab, cmd.Sliding)
	case KindHead:
		return f.SetHead(ctx, cmd.Dir, cmd.Angle)
	case KindGrip:
		return f.Grab(ctx, cmd.Close)
	case KindIR:
		_, err := f.GetIR(ctx)
		return err
	case KindNotifyDirection:
		return f.NotifyDirection(ctx, cmd.Letter)
	case KindNotifyArea:
		return f.NotifyArea(ctx, cmd.Area)
	case KindArm:
		return f.MoveArm(ctx, cmd.Level, cmd.Holding)
	case KindBasicForm:
		return f.BasicForm(ctx)
	case KindOpenDoor:
		return f.OpenDoor(ctx, cmd.loop())
	case KindPause:
		return f.sleep(ctx, cmd.Delay)
	default:
		return &ConfigError{Table: "command", Key: cmd.Kind, Err: ErrUnknownCommand}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
