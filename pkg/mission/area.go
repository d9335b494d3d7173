package mission

import (
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

// Placing the box: turn until the area border is in view, line up with it,
// walk up to it and set the box down inside.

func handleCheckArea(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	switch c.BoxPos {
	case BoxRight, BoxLeft:
		if s.Line.HasHorizontal {
			p.enter(ModeFitArea)
		} else if c.BoxPos == BoxRight {
			p.turn(actuator.Left, 1, true)
		} else {
			p.turn(actuator.Right, 1, true)
		}
	case BoxMiddle:
		p.enter(ModeFitArea)
	default:
		return p.gap("box_pos")
	}

	p.pause(th.StepSettle)
	return p.done()
}

func handleFitArea(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	switch c.BoxPos {
	case BoxRight, BoxLeft:
	case BoxMiddle:
		if !s.Edge.EdgeDown {
			return p.gap("edge_down")
		}
	default:
		return p.gap("box_pos")
	}

	p.headDown(th.FitHead)
	p.pause(th.StepSettle)

	all := s.Line.AllX
	var fits bool
	switch c.BoxPos {
	case BoxRight:
		fits = all[1] > th.AreaFarX && all[0] < th.AreaRightNear
		if !fits {
			p.walk(actuator.Right, 1, true)
		}
	case BoxLeft:
		fits = all[0] < th.AreaLeftNear && all[1] > th.AreaFarX
		if !fits {
			p.walk(actuator.Left, 1, true)
		}
	case BoxMiddle:
		switch x := s.Edge.EdgeDownX; {
		case x < th.CornerLow:
			p.walk(actuator.Right, 1, true)
		case x > th.CornerHigh:
			p.walk(actuator.Left, 1, true)
		default:
			fits = true
		}
	}

	if fits {
		p.arm(th.ArmHigh, true)
		p.enter(ModeMoveIntoArea)
	}
	p.pause(th.StepSettle)
	return p.done()
}

func handleMoveIntoArea(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	if c.BoxPos == BoxUnknown {
		return p.gap("box_pos")
	}

	if s.Line.AllY[1] > th.AreaDepthY {
		p.enter(ModeBoxIntoArea)
		return p.done()
	}
	p.walk(actuator.Forward, 1, true)
	p.pause(th.StepSettle)
	return p.done()
}

func handleBoxIntoArea(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	p.walk(actuator.Forward, th.PlaceSteps, true)
	p.grip(false)
	p.c.CubeGrabbed = false
	p.c.ActiveColor = perception.Yellow
	p.c.MissionCount++

	switch c.BoxPos {
	case BoxLeft:
		p.turn(actuator.Right, th.ExitTurns, false)
	case BoxRight:
		p.turn(actuator.Left, th.ExitTurns, false)
	}
	p.enter(ModeEndMission)
	return p.done()
}
