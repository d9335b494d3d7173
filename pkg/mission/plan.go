package mission

import (
	"time"

	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

// Handler runs one tick of a mode. It must not perform I/O: it returns the
// next context and the commands that get there, or a *PerceptionGap.
type Handler func(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error)

// plan accumulates a handler's commands and keeps the context in step with
// what they do to the head.
type plan struct {
	c    Context
	cmds []actuator.Command
}

func newPlan(c Context) *plan {
	return &plan{c: c}
}

func (p *plan) done() (Context, []actuator.Command, error) {
	return p.c, p.cmds, nil
}

func (p *plan) gap(field string) (Context, []actuator.Command, error) {
	return p.c, nil, &PerceptionGap{Mode: p.c.Mode, Field: field}
}

func (p *plan) add(cmds ...actuator.Command) {
	p.cmds = append(p.cmds, cmds...)
}

func (p *plan) walk(dir actuator.Direction, loop int, grab bool) {
	p.add(actuator.Walk(dir, loop, grab))
}

func (p *plan) turn(dir actuator.Direction, loop int, grab bool) {
	p.add(actuator.Turn(dir, loop, grab))
}

// headDown points the head down at angle, skipping the command when the head
// is already there.
func (p *plan) headDown(angle int) {
	if p.c.HeadVertical == angle {
		return
	}
	p.add(actuator.Head(actuator.Down, angle))
	p.c.HeadVertical = angle
}

func (p *plan) headSide(dir actuator.Direction, angle int) {
	p.add(actuator.Head(dir, angle))
}

func (p *plan) centerVertical() {
	p.add(actuator.Head(actuator.CenterVertical, 0))
	p.c.HeadVertical = 0
}

func (p *plan) centerHorizontal() {
	p.add(actuator.Head(actuator.CenterHorizontal, 0))
}

// arm moves the arm; the controller drops the head with it.
func (p *plan) arm(level int, holding bool) {
	p.add(actuator.Arm(level, holding))
	if _, head, err := actuator.ArmOpcode(level, holding); err == nil {
		p.c.HeadVertical = head
	} else {
		p.c.HeadVertical = 0
	}
}

func (p *plan) basicForm() {
	p.add(actuator.BasicForm())
	p.c.HeadVertical = 0
}

func (p *plan) grip(close bool) {
	if close {
		p.add(actuator.GripClose())
	} else {
		p.add(actuator.GripOpen())
	}
}

func (p *plan) pause(d time.Duration) {
	if d > 0 {
		p.add(actuator.Pause(d))
	}
}

func (p *plan) enter(m Mode) {
	p.c.Mode = m
}

func (p *plan) enterWalk() {
	p.c.Mode = ModeWalk
	p.c.WalkSubMode = SubStraight
}

// side converts an arrow direction to the matching movement direction.
func side(d perception.Direction) actuator.Direction {
	if d == perception.DirLeft {
		return actuator.Left
	}
	return actuator.Right
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
