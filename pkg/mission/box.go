package mission

import (
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

func handleFindBox(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	front := c.HeadQueue.Front()

	if s.Box == nil {
		if front == th.grabHead() {
			if !c.Direction.Valid() {
				return p.gap("direction")
			}
			p.headDown(front)
			p.turn(side(c.Direction), 1, false)
		} else {
			p.headDown(front)
		}
		p.c.HeadQueue = c.HeadQueue.Rotate()
		return p.done()
	}

	p.headDown(front)
	p.enter(ModeTrackBox)
	if c.RoomColor == perception.Green {
		p.c.BoxPos = classifyBox(s.Edge, *s.Box, c.Direction, th.BoxCornerBand)
	}
	return p.done()
}

// classifyBox places the box relative to the area corner. Without a corner in
// view it assumes the box is on the side away from the arrow.
func classifyBox(edge perception.EdgeInfo, box perception.Point, dir perception.Direction, band int) BoxPos {
	if !edge.EdgeDown {
		if dir == perception.DirRight {
			return BoxLeft
		}
		return BoxRight
	}

	cx, cy := edge.EdgeDownX, edge.EdgeDownY
	switch {
	case box.X >= cx-band && box.X <= cx+band:
		if box.Y <= cy {
			return BoxMiddle
		}
		if box.X <= cx {
			return BoxRight
		}
		return BoxLeft
	case box.X < cx-band:
		return BoxLeft
	default:
		return BoxRight
	}
}

func handleTrackBox(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	front := c.HeadQueue.Front()
	p.headDown(front)

	if s.Box == nil {
		p.enter(ModeFindBox)
		return p.done()
	}

	dx := th.BaselineX - s.Box.X
	dy := th.BaselineY - s.Box.Y

	if dy > th.NearY {
		switch {
		case abs(dx) <= th.CenterBand:
			p.walk(actuator.Forward, 1, false)
		case dx <= -th.TurnBand:
			p.turn(actuator.Right, 1, false)
		case dx <= -th.StepBand:
			p.walk(actuator.Right, th.StrafeSteps, false)
		case dx < 0:
			p.walk(actuator.Right, 1, false)
		case dx >= th.TurnBand:
			p.turn(actuator.Left, 1, false)
		case dx >= th.StepBand:
			p.walk(actuator.Left, th.StrafeSteps, false)
		default:
			p.walk(actuator.Left, 1, false)
		}
		return p.done()
	}

	if front != th.grabHead() {
		p.c.HeadQueue = c.HeadQueue.Rotate()
		return p.done()
	}
	return grabBox(p, th)
}

func handleCatchBox(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	return grabBox(newPlan(c), th)
}

// grabBox closes the gripper on the box and turns away with it. In a green
// room the box is carried to the area; in a black room it is taken back out.
func grabBox(p *plan, th *Thresholds) (Context, []actuator.Command, error) {
	switch p.c.ActiveColor {
	case perception.Green:
		p.grip(true)
		p.c.CubeGrabbed = true
		switch p.c.BoxPos {
		case BoxRight:
			p.turn(actuator.Left, th.CatchTurns, true)
		case BoxLeft:
			p.turn(actuator.Right, th.CatchTurns, true)
		}
		p.arm(th.ArmLow, true)
		p.enter(ModeCheckArea)

	case perception.Black:
		if !p.c.Direction.Valid() {
			return p.gap("direction")
		}
		p.grip(true)
		p.c.CubeGrabbed = true
		p.turn(side(p.c.Direction), th.CatchTurns, true)
		p.c.ActiveColor = perception.Yellow
		p.enter(ModeEndMission)

	default:
		return p.gap("active_color")
	}
	return p.done()
}
