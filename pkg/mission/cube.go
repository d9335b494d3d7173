package mission

import (
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

// handleTrackCube drives the cube variant of the course: walk up to the
// cube, pick it up, then carry it into the safe room.
func handleTrackCube(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	if !c.CubeGrabbed {
		if s.Cube == nil {
			return p.gap("cube")
		}
		p.headDown(th.CubeHead)

		x, y := s.Cube.X, s.Cube.Y
		centered := abs(th.FrameCenterX-x) < th.CubeBand
		switch {
		case centered:
			p.walk(actuator.Forward, 1, false)
		case x > th.CubeHigh:
			p.walk(actuator.Right, 1, false)
		case x < th.CubeLow:
			p.walk(actuator.Left, 1, false)
		}
		if centered && y > th.CubeGrabY {
			p.grip(true)
			p.c.CubeGrabbed = true
		}
		return p.done()
	}

	if c.HeadVertical != 0 {
		p.centerVertical()
	}
	if s.Saferoom == nil {
		p.turn(actuator.Left, 1, true)
		return p.done()
	}

	x, y := s.Saferoom.X, s.Saferoom.Y
	centered := abs(th.FrameCenterX-x) < th.CubeBand
	switch {
	case centered && th.FrameCenterY-y > th.CubeBand:
		p.walk(actuator.Forward, 1, true)
	case centered && y > th.CubeGrabY:
		p.grip(false)
		p.c.CubeGrabbed = false
		p.c.MissionCount++
	case x < th.CubeLow:
		p.turn(actuator.Left, 1, true)
	case x > th.CubeHigh:
		p.turn(actuator.Right, 1, true)
	}
	return p.done()
}
