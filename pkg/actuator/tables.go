package actuator

import (
	"sort"

	"github.com/teslashibe/go-mission/pkg/motion"
)

// Direction names a movement or head direction. Which values are valid depends
// on the action: walk, turn and head each have their own table.
type Direction string

const (
	Forward          Direction = "forward"
	Backward         Direction = "backward"
	Left             Direction = "left"
	Right            Direction = "right"
	SlideLeft        Direction = "slide_left"
	SlideRight       Direction = "slide_right"
	Down             Direction = "down"
	CenterVertical   Direction = "center_vertical"
	CenterHorizontal Direction = "center_horizontal"
)

// Letter is a compass letter the robot can announce.
type Letter string

const (
	East  Letter = "E"
	West  Letter = "W"
	South Letter = "S"
	North Letter = "N"
)

// Area is the color of a target area the robot can announce.
type Area string

const (
	AreaGreen Area = "green"
	AreaBlack Area = "black"
)

// Controller firmware opcodes.
const (
	opGripClose motion.Opcode = 65
	opGripOpen  motion.Opcode = 66
	opOpenDoor  motion.Opcode = 66
	opIRTrigger motion.Opcode = 5

	walkGrabOffset    = 13
	turnGrabOffset    = 11
	turnSlidingOffset = 9 // only on top of the grab variant

	armHoldingBase = 75
	armFreeBase    = 73
	armFreeHead    = 100
)

var walkOpcodes = map[Direction]motion.Opcode{
	Forward:  56,
	Backward: 57,
	Left:     58,
	Right:    59,
}

var turnOpcodes = map[Direction]motion.Opcode{
	SlideLeft:  60,
	SlideRight: 61,
	Left:       62,
	Right:      63,
}

var headOpcodes = map[Direction]map[int]motion.Opcode{
	Down: {
		10: 37, 20: 80, 30: 38, 35: 39, 45: 40, 50: 84, 55: 81,
		60: 41, 70: 82, 75: 42, 80: 43, 85: 83, 90: 44, 100: 45,
	},
	Left:  {30: 47, 45: 48, 60: 49, 90: 50},
	Right: {30: 51, 45: 52, 60: 53, 90: 54},
}

var centerOpcodes = map[Direction]motion.Opcode{
	CenterVertical:   46,
	CenterHorizontal: 55,
}

var letterOpcodes = map[Letter]motion.Opcode{
	East:  33,
	West:  34,
	South: 35,
	North: 36,
}

var areaOpcodes = map[Area]motion.Opcode{
	AreaGreen: 67,
	AreaBlack: 68,
}

// Head angle the arm motion leaves the head at, by level, while holding the box.
var armHoldingHead = map[int]int{1: 30, 2: 90, 3: 60}

var basicForm = []motion.Opcode{46, 55, 10}

// WalkOpcode returns the opcode for one walk step.
func WalkOpcode(dir Direction, grab bool) (motion.Opcode, error) {
	op, ok := walkOpcodes[dir]
	if !ok {
		return 0, &ConfigError{Table: "walk", Key: dir, Err: ErrUnknownDirection}
	}
	if grab {
		op += walkGrabOffset
	}
	return op, nil
}

// TurnOpcode returns the opcode for one turn step. The sliding variant only exists
// for grab turns; a plain sliding turn uses the plain opcode.
func TurnOpcode(dir Direction, grab, sliding bool) (motion.Opcode, error) {
	op, ok := turnOpcodes[dir]
	if !ok {
		return 0, &ConfigError{Table: "turn", Key: dir, Err: ErrUnknownDirection}
	}
	if grab {
		op += turnGrabOffset
		if sliding {
			op += turnSlidingOffset
		}
	}
	return op, nil
}

// HeadOpcode returns the opcode that moves the head. angle is ignored for the
// center directions.
func HeadOpcode(dir Direction, angle int) (motion.Opcode, error) {
	if op, ok := centerOpcodes[dir]; ok {
		return op, nil
	}
	angles, ok := headOpcodes[dir]
	if !ok {
		return 0, &ConfigError{Table: "head", Key: dir, Err: ErrUnknownDirection}
	}
	op, ok := angles[angle]
	if !ok {
		return 0, &ConfigError{Table: "head/" + string(dir), Key: angle, Err: ErrUnmappedAngle}
	}
	return op, nil
}

// ValidateHead reports whether SetHead(dir, angle) can be sent.
func ValidateHead(dir Direction, angle int) error {
	_, err := HeadOpcode(dir, angle)
	return err
}

// ValidateLetter reports whether l can be announced.
func ValidateLetter(l Letter) error {
	if _, ok := letterOpcodes[l]; !ok {
		return &ConfigError{Table: "notify_direction", Key: l, Err: ErrUnknownLetter}
	}
	return nil
}

// ValidateArea reports whether a can be announced.
func ValidateArea(a Area) error {
	if _, ok := areaOpcodes[a]; !ok {
		return &ConfigError{Table: "notify_area", Key: a, Err: ErrUnknownArea}
	}
	return nil
}

// HeadAngles lists the mapped angles for dir in ascending order.
func HeadAngles(dir Direction) []int {
	angles := make([]int, 0, len(headOpcodes[dir]))
	for a := range headOpcodes[dir] {
		angles = append(angles, a)
	}
	sort.Ints(angles)
	return angles
}

// ArmOpcode returns the arm opcode for level and the Down angle the head ends at.
// Holding the box allows levels 1 to 3, a free arm 1 to 2.
func ArmOpcode(level int, holding bool) (motion.Opcode, int, error) {
	if holding {
		head, ok := armHoldingHead[level]
		if !ok {
			return 0, 0, &ConfigError{Table: "arm/holding", Key: level, Err: ErrArmLevel}
		}
		return motion.Opcode(armHoldingBase + level), head, nil
	}
	if level < 1 || level > 2 {
		return 0, 0, &ConfigError{Table: "arm/free", Key: level, Err: ErrArmLevel}
	}
	return motion.Opcode(armFreeBase + level), armFreeHead, nil
}
