package mission

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-mission/pkg/actuator"
)

// Thresholds holds every tunable number the handlers use. Pixel values refer
// to the 640x480 camera frame, head angles to the controller's head tables.
type Thresholds struct {
	// Vertical head angles
	WalkHead         int       // while following the line
	AlphabetHead     int       // reading the door alphabet
	DirectionHead    int       // reading the arrow at the tee
	SideHead         int       // looking sideways into a room (left/right table)
	AreaHead         int       // reading the area color
	RoomAlphabetHead int       // reading the room alphabet
	HeadQueue        HeadQueue // box search angles; the last one is the grab angle
	FitHead          int       // aligning with the area
	ReturnHeads      [3]int    // return leg, stepped down as the line gets closer
	CubeHead         int       // cube search

	// Arm levels
	ArmFree int // arm extension while walking without a box
	ArmLow  int // carrying the box
	ArmHigh int // presenting the box over the area

	// Line following
	LaneLow     int     // vertical line midpoint below this strafes left
	LaneHigh    int     // and above this strafes right
	DegreeLow   float64 // line angle at or below this turns left
	DegreeHigh  float64 // at or above this turns right
	TeeLeft     int     // horizontal line reaching left of this...
	TeeRight    int     // ...and right of this is a tee
	CornerNearY int     // horizontal line bottom below this means the corner is reached

	// Tee maneuver
	ApproachSteps int
	SideSteps     int
	TeeTurns      int

	// Box tracking, offsets from the baseline
	BaselineX     int
	BaselineY     int
	NearY         int // vertical offset at or below this is grabbing distance
	CenterBand    int // |dx| within this walks forward
	StepBand      int // from here a strafe takes StrafeSteps steps
	TurnBand      int // from here the robot turns instead
	StrafeSteps   int
	BoxCornerBand int // horizontal band around the area corner that counts as middle
	CatchTurns    int

	// Area placement
	AreaFarX      int // ALL_X[1] beyond this means the area spans to the right
	AreaRightNear int // ALL_X[0] below this when the box came from the right
	AreaLeftNear  int // ALL_X[0] below this when the box came from the left
	CornerLow     int // area corner x window for a box found in the middle
	CornerHigh    int
	AreaDepthY    int // ALL_Y[1] beyond this means the area is at the feet
	PlaceSteps    int
	ExitTurns     int

	// Return leg
	ReturnSpanX  int // ALL_X[1] beyond this means the main line is in view
	ReturnNearY  int // ALL_Y[1] below this keeps the first return head angle
	EdgeLow      int // edge x window that counts as aligned
	EdgeHigh     int
	HeadStepY    int // ALL_Y[1] beyond this steps the head down
	EdgeReachY   int // edge y beyond this means the line is reached
	ReturnTurns  int
	VerticalLow  int // vertical midpoint window for re-entering the line
	VerticalHigh int
	RejoinSteps  int

	// Finish
	FinishAfter int // completed missions before the final turn
	FinishTurns int

	// Cube variant
	FrameCenterX int
	FrameCenterY int
	CubeBand     int
	CubeGrabY    int
	CubeLow      int
	CubeHigh     int

	// Settle pauses
	AlphabetSettle     time.Duration
	DirectionSettle    time.Duration
	LookSettle         time.Duration
	RoomAlphabetSettle time.Duration
	StepSettle         time.Duration
}

// DefaultThresholds returns the values the robot was tuned with on the course.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WalkHead:         10,
		AlphabetHead:     75,
		DirectionHead:    90,
		SideHead:         45,
		AreaHead:         45,
		RoomAlphabetHead: 80,
		HeadQueue:        HeadQueue{75, 60, 35},
		FitHead:          35,
		ReturnHeads:      [3]int{60, 45, 35},
		CubeHead:         60,

		ArmFree: 2,
		ArmLow:  1,
		ArmHigh: 2,

		LaneLow:     290,
		LaneHigh:    350,
		DegreeLow:   85,
		DegreeHigh:  95,
		TeeLeft:     170,
		TeeRight:    430,
		CornerNearY: 90,

		ApproachSteps: 4,
		SideSteps:     4,
		TeeTurns:      8,

		BaselineX:     320,
		BaselineY:     370,
		NearY:         10,
		CenterBand:    40,
		StepBand:      50,
		TurnBand:      90,
		StrafeSteps:   3,
		BoxCornerBand: 100,
		CatchTurns:    5,

		AreaFarX:      440,
		AreaRightNear: 180,
		AreaLeftNear:  150,
		CornerLow:     300,
		CornerHigh:    340,
		AreaDepthY:    460,
		PlaceSteps:    2,
		ExitTurns:     9,

		ReturnSpanX:  240,
		ReturnNearY:  320,
		EdgeLow:      300,
		EdgeHigh:     380,
		HeadStepY:    240,
		EdgeReachY:   450,
		ReturnTurns:  2,
		VerticalLow:  300,
		VerticalHigh: 340,
		RejoinSteps:  2,

		FinishAfter: 3,
		FinishTurns: 5,

		FrameCenterX: 320,
		FrameCenterY: 240,
		CubeBand:     20,
		CubeGrabY:    440,
		CubeLow:      300,
		CubeHigh:     340,

		AlphabetSettle:     2 * time.Second,
		DirectionSettle:    1500 * time.Millisecond,
		LookSettle:         500 * time.Millisecond,
		RoomAlphabetSettle: 600 * time.Millisecond,
		StepSettle:         time.Second,
	}
}

// NoPauses returns t with every settle pause set to zero. Used for replays
// and tests where nothing physical has to settle.
func (t Thresholds) NoPauses() Thresholds {
	t.AlphabetSettle = 0
	t.DirectionSettle = 0
	t.LookSettle = 0
	t.RoomAlphabetSettle = 0
	t.StepSettle = 0
	return t
}

// grabHead is the head angle at which the box is close enough to grab.
func (t *Thresholds) grabHead() int {
	return t.HeadQueue[len(t.HeadQueue)-1]
}

// Validate checks that every head angle and arm level exists in the
// controller tables and that the bands are ordered.
func (t *Thresholds) Validate() error {
	var errs []error

	down := []int{t.WalkHead, t.AlphabetHead, t.DirectionHead, t.AreaHead, t.RoomAlphabetHead, t.FitHead, t.CubeHead}
	down = append(down, t.HeadQueue[:]...)
	down = append(down, t.ReturnHeads[:]...)
	for _, angle := range down {
		if err := actuator.ValidateHead(actuator.Down, angle); err != nil {
			errs = append(errs, err)
		}
	}
	for _, dir := range []actuator.Direction{actuator.Left, actuator.Right} {
		if err := actuator.ValidateHead(dir, t.SideHead); err != nil {
			errs = append(errs, err)
		}
	}

	if _, _, err := actuator.ArmOpcode(t.ArmFree, false); err != nil {
		errs = append(errs, err)
	}
	for _, level := range []int{t.ArmLow, t.ArmHigh} {
		if _, _, err := actuator.ArmOpcode(level, true); err != nil {
			errs = append(errs, err)
		}
	}

	ordered := []struct {
		name      string
		low, high float64
	}{
		{"lane", float64(t.LaneLow), float64(t.LaneHigh)},
		{"degree", t.DegreeLow, t.DegreeHigh},
		{"tee", float64(t.TeeLeft), float64(t.TeeRight)},
		{"center/step band", float64(t.CenterBand), float64(t.StepBand)},
		{"step/turn band", float64(t.StepBand), float64(t.TurnBand)},
		{"corner", float64(t.CornerLow), float64(t.CornerHigh)},
		{"edge", float64(t.EdgeLow), float64(t.EdgeHigh)},
		{"vertical", float64(t.VerticalLow), float64(t.VerticalHigh)},
		{"cube", float64(t.CubeLow), float64(t.CubeHigh)},
	}
	for _, o := range ordered {
		if o.low >= o.high {
			errs = append(errs, fmt.Errorf("mission: %s bounds out of order: %v >= %v", o.name, o.low, o.high))
		}
	}

	if t.FinishAfter < 1 {
		errs = append(errs, fmt.Errorf("mission: finish after must be at least 1, got %d", t.FinishAfter))
	}

	return errors.Join(errs...)
}
