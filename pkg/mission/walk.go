package mission

import (
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

func handleStart(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	c.Mode = ModeDetectAlphabet
	return c, nil, nil
}

func handleDetectAlphabet(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	if c.Alphabet != "" {
		p.headDown(th.WalkHead)
		p.pause(th.AlphabetSettle)
		p.enterWalk()
		return p.done()
	}

	p.headDown(th.AlphabetHead)
	if s.DoorAlphabet != nil {
		letter := actuator.Letter(*s.DoorAlphabet)
		if err := actuator.ValidateLetter(letter); err != nil {
			return p.gap("door_alphabet")
		}
		p.c.Alphabet = *s.DoorAlphabet
		p.add(actuator.NotifyDirection(letter))
	}
	return p.done()
}

func handleWalk(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	p.headDown(th.WalkHead)

	if !c.ArmExtended {
		if top, ok := c.History.Top(); ok && (top == ModeDetectAlphabet || top == ModeFinish) {
			p.arm(th.ArmFree, false)
			p.c.ArmExtended = true
			p.headDown(th.WalkHead)
		}
	}
	grab := p.c.ArmExtended
	line := s.Line

	if c.WalkSubMode == SubCornerLeft || c.WalkSubMode == SubCornerRight {
		return walkCorner(p, line, th, grab)
	}

	switch {
	case line.HasVertical && !line.HasHorizontal:
		p.c.WalkSubMode = SubStraight
		steerLane(p, line, th, grab)

	case !line.HasVertical && !line.HasHorizontal:
		p.c.WalkSubMode = SubModifyAngle
		steerAngle(p, line, th, grab)

	default:
		x0, x1 := line.HorizontalX[0], line.HorizontalX[1]
		switch {
		case x0 <= th.TeeLeft && x1 >= th.TeeRight:
			p.c.WalkSubMode = SubTee
			p.enter(ModeDetectDirection)
			p.basicForm()
			p.c.ArmExtended = false
		case x0 < th.TeeLeft && x1 < th.TeeRight:
			p.c.WalkSubMode = SubCornerLeft
		case x0 > th.TeeLeft && x1 > th.TeeRight:
			p.c.WalkSubMode = SubCornerRight
		}
	}
	return p.done()
}

// walkCorner approaches a corner until its bottom edge is near, then decides
// from the arrow whether the corner leads into a room or to the finish.
func walkCorner(p *plan, line perception.LineInfo, th *Thresholds, grab bool) (Context, []actuator.Command, error) {
	if line.HorizontalY[1] <= th.CornerNearY {
		followLine(p, line, th, grab)
		return p.done()
	}
	if !p.c.Direction.Valid() {
		return p.gap("direction")
	}

	p.walk(actuator.Forward, 1, grab)
	intoRoom := (p.c.WalkSubMode == SubCornerLeft && p.c.Direction == perception.DirRight) ||
		(p.c.WalkSubMode == SubCornerRight && p.c.Direction == perception.DirLeft)
	if intoRoom {
		p.enter(ModeStartMission)
	} else {
		p.enter(ModeIsFinishLine)
	}
	return p.done()
}

func followLine(p *plan, line perception.LineInfo, th *Thresholds, grab bool) {
	if line.HasVertical {
		steerLane(p, line, th, grab)
	} else {
		steerAngle(p, line, th, grab)
	}
}

func steerLane(p *plan, line perception.LineInfo, th *Thresholds, grab bool) {
	switch mid := line.VerticalMid(); {
	case mid < th.LaneLow:
		p.walk(actuator.Left, 1, grab)
	case mid > th.LaneHigh:
		p.walk(actuator.Right, 1, grab)
	default:
		p.walk(actuator.Forward, 1, grab)
	}
}

func steerAngle(p *plan, line perception.LineInfo, th *Thresholds, grab bool) {
	switch {
	case line.Degree <= th.DegreeLow:
		p.turn(actuator.Left, 1, grab)
	case line.Degree >= th.DegreeHigh:
		p.turn(actuator.Right, 1, grab)
	}
}

func handleDetectDirection(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	p.headDown(th.DirectionHead)
	if c.Mode == ModeDetectDirectionFail {
		p.walk(actuator.Backward, 1, false)
		p.pause(th.StepSettle)
	}

	if !c.Direction.Valid() {
		if s.Arrow == nil || !s.Arrow.Valid() {
			p.enter(ModeDetectDirectionFail)
			return p.done()
		}
		p.c.Direction = *s.Arrow
		p.enter(ModeDetectDirection)
		p.headDown(th.WalkHead)
		p.pause(th.DirectionSettle)
		return p.done()
	}

	dir := side(c.Direction)
	p.walk(actuator.Forward, th.ApproachSteps, false)
	p.walk(dir, th.SideSteps, false)
	p.turn(dir, th.TeeTurns, false)
	p.enterWalk()
	return p.done()
}

func handleIsFinishLine(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	if s.Line.HasHorizontal {
		followLine(p, s.Line, th, false)
		p.pause(th.StepSettle)
		return p.done()
	}
	if c.MissionCount < th.FinishAfter {
		p.enterWalk()
		return p.done()
	}
	if !c.Direction.Valid() {
		return p.gap("direction")
	}
	p.turn(side(c.Direction), th.FinishTurns, false)
	p.pause(th.StepSettle)
	p.enter(ModeFinish)
	return p.done()
}

func handleFinish(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	p.enterWalk()
	return p.done()
}
