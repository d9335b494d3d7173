package actuator

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a mission command.
type Kind string

const (
	KindWalk            Kind = "walk"
	KindTurn            Kind = "turn"
	KindHead            Kind = "head"
	KindGrip            Kind = "grip"
	KindIR              Kind = "ir"
	KindNotifyDirection Kind = "notify_direction"
	KindNotifyArea      Kind = "notify_area"
	KindArm             Kind = "arm"
	KindBasicForm       Kind = "basic_form"
	KindOpenDoor        Kind = "open_door"
	KindPause           Kind = "pause"
)

// Command is one action a mission handler asks for. Only the fields relevant
// to Kind are set. Commands are plain values so handlers stay pure and tests
// can compare them directly.
type Command struct {
	Kind    Kind          `json:"kind"`
	Dir     Direction     `json:"dir,omitempty"`
	Angle   int           `json:"angle,omitempty"`
	Loop    int           `json:"loop,omitempty"`
	Grab    bool          `json:"grab,omitempty"`
	Sliding bool          `json:"sliding,omitempty"`
	Close   bool          `json:"close,omitempty"`
	Level   int           `json:"level,omitempty"`
	Holding bool          `json:"holding,omitempty"`
	Letter  Letter        `json:"letter,omitempty"`
	Area    Area          `json:"area,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
}

func (c Command) loop() int {
	if c.Loop < 1 {
		return 1
	}
	return c.Loop
}

// Walk steps loop times in dir.
func Walk(dir Direction, loop int, grab bool) Command {
	return Command{Kind: KindWalk, Dir: dir, Loop: loop, Grab: grab}
}

// Turn turns loop times in dir with the default inter-step delay.
func Turn(dir Direction, loop int, grab bool) Command {
	return Command{Kind: KindTurn, Dir: dir, Loop: loop, Grab: grab}
}

// Slide turns sideways loop times.
func Slide(dir Direction, loop int, grab bool) Command {
	return Command{Kind: KindTurn, Dir: dir, Loop: loop, Grab: grab, Sliding: true}
}

// Head moves the head.
func Head(dir Direction, angle int) Command {
	return Command{Kind: KindHead, Dir: dir, Angle: angle}
}

// GripClose closes the gripper.
func GripClose() Command {
	return Command{Kind: KindGrip, Close: true}
}

// GripOpen opens the gripper.
func GripOpen() Command {
	return Command{Kind: KindGrip}
}

// IR triggers an IR reading.
func IR() Command {
	return Command{Kind: KindIR}
}

// NotifyDirection announces a compass letter.
func NotifyDirection(l Letter) Command {
	return Command{Kind: KindNotifyDirection, Letter: l}
}

// NotifyArea announces an area color.
func NotifyArea(a Area) Command {
	return Command{Kind: KindNotifyArea, Area: a}
}

// Arm moves the arm.
func Arm(level int, holding bool) Command {
	return Command{Kind: KindArm, Level: level, Holding: holding}
}

// BasicForm returns to the resting pose.
func BasicForm() Command {
	return Command{Kind: KindBasicForm}
}

// OpenDoor pushes the door.
func OpenDoor(loop int) Command {
	return Command{Kind: KindOpenDoor, Loop: loop}
}

// Pause waits d.
func Pause(d time.Duration) Command {
	return Command{Kind: KindPause, Delay: d}
}

// String formats the command for logs and the dashboard.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))

	switch c.Kind {
	case KindWalk, KindTurn:
		fmt.Fprintf(&b, " %s", c.Dir)
		if c.loop() > 1 {
			fmt.Fprintf(&b, " x%d", c.loop())
		}
		if c.Grab {
			b.WriteString(" grab")
		}
		if c.Sliding {
			b.WriteString(" sliding")
		}
	case KindHead:
		fmt.Fprintf(&b, " %s", c.Dir)
		if c.Dir == Down || c.Dir == Left || c.Dir == Right {
			fmt.Fprintf(&b, " %d", c.Angle)
		}
	case KindGrip:
		if c.Close {
			b.WriteString(" close")
		} else {
			b.WriteString(" open")
		}
	case KindNotifyDirection:
		fmt.Fprintf(&b, " %s", c.Letter)
	case KindNotifyArea:
		fmt.Fprintf(&b, " %s", c.Area)
	case KindArm:
		fmt.Fprintf(&b, " level=%d", c.Level)
		if c.Holding {
			b.WriteString(" holding")
		}
	case KindOpenDoor:
		fmt.Fprintf(&b, " x%d", c.loop())
	case KindPause:
		fmt.Fprintf(&b, " %s", c.Delay)
	}
	return b.String()
}
