package mission

import (
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

func handleStartMission(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	if !c.Direction.Valid() {
		return p.gap("direction")
	}

	p.headSide(side(c.Direction), th.SideHead)
	p.pause(th.LookSettle)
	p.headDown(th.AreaHead)
	p.pause(th.LookSettle)
	p.enter(ModeRecognizeAreaColor)
	return p.done()
}

func handleRecognizeAreaColor(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)

	var color perception.Color
	switch {
	case s.AreaColor != nil:
		color = *s.AreaColor
	case s.Edge.EdgeDown:
		color = perception.Green
	default:
		color = perception.Black
	}

	var area actuator.Area
	switch color {
	case perception.Green:
		area = actuator.AreaGreen
	case perception.Black:
		area = actuator.AreaBlack
	default:
		return p.gap("area_color")
	}

	p.add(actuator.NotifyArea(area))
	p.c.ActiveColor = color
	p.c.RoomColor = color
	p.pause(th.LookSettle)
	p.enter(ModeDetectRoomAlphabet)
	return p.done()
}

func handleDetectRoomAlphabet(c Context, s perception.Snapshot, th *Thresholds) (Context, []actuator.Command, error) {
	p := newPlan(c)
	p.centerHorizontal()

	if c.AlphabetColor == "" {
		p.headDown(th.RoomAlphabetHead)
		p.pause(th.RoomAlphabetSettle)
		if s.RoomAlphabetColor == nil {
			return p.done()
		}
		p.c.AlphabetColor = *s.RoomAlphabetColor
	}

	p.enter(ModeFindBox)
	return p.done()
}
