package mission

import (
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

func handleEndMission(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	p.headDown(th.ReturnHeads[0])
	p.pause(th.StepSettle)

	if s.Line.AllX[1] > th.ReturnSpanX {
		if s.Line.AllY[1] < th.ReturnNearY {
			p.c.ReturnHead = th.ReturnHeads[0]
		} else {
			p.headDown(th.ReturnHeads[1])
			p.c.ReturnHead = th.ReturnHeads[1]
		}
		p.enter(ModeFindEdge)
		return p.done()
	}

	return searchEdge(p, th)
}

// searchEdge turns in place looking for the border of the room. In a black
// room the box is still held, so the turn uses the grab variant.
func searchEdge(p *plan, th *Thresholds) (Context, []actuator.Command, error) {
	switch {
	case p.c.RoomColor == perception.Black:
		if !p.c.Direction.Valid() {
			return p.gap("direction")
		}
		p.turn(side(p.c.Direction), 1, true)
	case p.c.BoxPos == BoxRight:
		p.turn(actuator.Left, 1, false)
	default:
		p.turn(actuator.Right, 1, false)
	}
	p.pause(th.StepSettle)
	return p.done()
}

func handleFindEdge(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	if e := s.Edge.EdgePos; e != nil && e.X > th.EdgeLow && e.X < th.EdgeHigh {
		p.enter(ModeReturnLine)
		return p.done()
	}
	return searchEdge(p, th)
}

func handleReturnLine(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	if s.Line.AllY[1] > th.HeadStepY {
		for i := 0; i < len(th.ReturnHeads)-1; i++ {
			if c.ReturnHead == th.ReturnHeads[i] {
				next := th.ReturnHeads[i+1]
				p.headDown(next)
				p.c.ReturnHead = next
				p.pause(th.StepSettle)
				break
			}
		}
	}

	edge := s.Edge.EdgePos
	reached := edge != nil && edge.Y > th.EdgeReachY
	if reached && !c.Direction.Valid() {
		return p.gap("direction")
	}

	if c.RoomColor == perception.Black {
		p.walk(actuator.Forward, 1, true)
		if reached {
			p.grip(false)
			p.c.CubeGrabbed = false
			p.turn(side(c.Direction), th.ReturnTurns, false)
			p.enter(ModeFindVertical)
		}
		p.pause(th.StepSettle)
		return p.done()
	}

	if edge == nil {
		p.enter(ModeFindEdge)
		return searchEdge(p, th)
	}
	p.walk(actuator.Forward, 1, false)
	if reached {
		p.turn(side(c.Direction), th.ReturnTurns, false)
		p.enter(ModeFindVertical)
	}
	p.pause(th.StepSettle)
	return p.done()
}

func handleFindVertical(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	if !s.Line.HasVertical {
		if !c.Direction.Valid() {
			return p.gap("direction")
		}
		p.turn(side(c.Direction), 1, false)
		p.pause(th.StepSettle)
		return p.done()
	}

	switch mid := s.Line.VerticalMid(); {
	case mid > th.VerticalLow && mid < th.VerticalHigh:
		p.walk(actuator.Forward, th.RejoinSteps, false)
		p.enterWalk()
	case mid <= th.VerticalLow:
		p.walk(actuator.Left, 1, false)
	default:
		p.walk(actuator.Right, 1, false)
	}
	p.pause(th.StepSettle)
	return p.done()
}
