package mission

import (
	"fmt"
	"strings"
)

// Mode is the phase of the mission. The zero value is ModeStart.
type Mode int

const (
	ModeStart Mode = iota
	ModeDetectAlphabet
	ModeDetectDirection
	ModeDetectDirectionFail
	ModeWalk
	ModeStartMission
	ModeRecognizeAreaColor
	ModeDetectRoomAlphabet
	ModeFindBox
	ModeTrackBox
	ModeCatchBox
	ModeCheckArea
	ModeFitArea
	ModeMoveIntoArea
	ModeBoxIntoArea
	ModeEndMission
	ModeFindEdge
	ModeReturnLine
	ModeFindVertical
	ModeIsFinishLine
	ModeFinish
	ModeTrackCube

	numModes
)

var modeNames = [numModes]string{
	ModeStart:               "start",
	ModeDetectAlphabet:      "detect_alphabet",
	ModeDetectDirection:     "detect_direction",
	ModeDetectDirectionFail: "detect_direction_fail",
	ModeWalk:                "walk",
	ModeStartMission:        "start_mission",
	ModeRecognizeAreaColor:  "recognize_area_color",
	ModeDetectRoomAlphabet:  "detect_room_alphabet",
	ModeFindBox:             "find_box",
	ModeTrackBox:            "track_box",
	ModeCatchBox:            "catch_box",
	ModeCheckArea:           "check_area",
	ModeFitArea:             "fit_area",
	ModeMoveIntoArea:        "move_into_area",
	ModeBoxIntoArea:         "box_into_area",
	ModeEndMission:          "end_mission",
	ModeFindEdge:            "find_edge",
	ModeReturnLine:          "return_line",
	ModeFindVertical:        "find_vertical",
	ModeIsFinishLine:        "is_finish_line",
	ModeFinish:              "finish",
	ModeTrackCube:           "track_cube",
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	modes := make([]Mode, 0, numModes)
	for m := ModeStart; m < numModes; m++ {
		modes = append(modes, m)
	}
	return modes
}

// Valid reports whether m is a declared mode.
func (m Mode) Valid() bool {
	return m >= ModeStart && m < numModes
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode parses a mode name as printed by String. Matching ignores case
// and accepts dashes for underscores.
func ParseMode(s string) (Mode, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// WalkSubMode says how the line geometry is read while walking. It has no
// meaning outside ModeWalk.
type WalkSubMode int

const (
	SubStraight WalkSubMode = iota
	SubModifyAngle
	SubTee
	SubCornerLeft
	SubCornerRight
)

func (s WalkSubMode) String() string {
	switch s {
	case SubStraight:
		return "straight"
	case SubModifyAngle:
		return "modify_angle"
	case SubTee:
		return "tee"
	case SubCornerLeft:
		return "corner_left"
	case SubCornerRight:
		return "corner_right"
	default:
		return fmt.Sprintf("submode(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s WalkSubMode) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
