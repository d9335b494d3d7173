// Package perception defines what the vision process reports each tick and the
// queries the mission can issue to it. The vision process itself lives elsewhere;
// see the remote subpackage for the websocket client.
package perception

import "time"

// Point is a pixel position in the 640x480 camera frame.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Direction is the arrow direction painted at the tee.
type Direction string

const (
	DirLeft  Direction = "LEFT"
	DirRight Direction = "RIGHT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirLeft || d == DirRight
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirLeft {
		return DirRight
	}
	return DirLeft
}

// Color is a marker, line or area color.
type Color string

const (
	Yellow Color = "YELLOW"
	Green  Color = "GREEN"
	Black  Color = "BLACK"
	Red    Color = "RED"
	Blue   Color = "BLUE"
)

// Letter is a door or room alphabet character.
type Letter string

const (
	LetterE Letter = "E"
	LetterW Letter = "W"
	LetterS Letter = "S"
	LetterN Letter = "N"
)

// LineInfo is the line extraction result for the active line color.
type LineInfo struct {
	HasVertical   bool    `json:"has_vertical"`
	VerticalX     [2]int  `json:"vertical_x"`
	HasHorizontal bool    `json:"has_horizontal"`
	HorizontalX   [2]int  `json:"horizontal_x"`
	HorizontalY   [2]int  `json:"horizontal_y"`
	Degree        float64 `json:"degree"`
	AllX          [2]int  `json:"all_x"`
	AllY          [2]int  `json:"all_y"`
}

// VerticalMid is the x coordinate of the vertical line's midpoint.
func (l LineInfo) VerticalMid() int {
	return (l.VerticalX[0] + l.VerticalX[1]) / 2
}

// EdgeInfo describes the area border.
type EdgeInfo struct {
	EdgePos   *Point `json:"edge_pos,omitempty"`
	EdgeDown  bool   `json:"edge_down"`
	EdgeDownX int    `json:"edge_down_x"`
	EdgeDownY int    `json:"edge_down_y"`
}

// RoomAlphabet is the letter painted inside a room and its color.
type RoomAlphabet struct {
	Color  Color  `json:"color"`
	Letter Letter `json:"letter"`
}

// Snapshot is one tick of vision output. Optional features are nil when absent.
type Snapshot struct {
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
	Line LineInfo  `json:"line"`
	Edge EdgeInfo  `json:"edge"`

	Box               *Point     `json:"box,omitempty"`
	Arrow             *Direction `json:"arrow,omitempty"`
	DoorAlphabet      *Letter    `json:"door_alphabet,omitempty"`
	RoomAlphabetColor *Color     `json:"room_alphabet_color,omitempty"`
	AreaColor         *Color     `json:"area_color,omitempty"`

	Cube     *Point `json:"cube,omitempty"`
	Saferoom *Point `json:"saferoom,omitempty"`
}

// Request tells the vision process what the current mode needs.
type Request struct {
	LineColor Color `json:"line_color"`
	BoxColor  Color `json:"box_color,omitempty"`

	Arrow        bool `json:"arrow,omitempty"`
	DoorAlphabet bool `json:"door_alphabet,omitempty"`
	RoomAlphabet bool `json:"room_alphabet,omitempty"`
	Box          bool `json:"box,omitempty"`
	Cube         bool `json:"cube,omitempty"`
	Saferoom     bool `json:"saferoom,omitempty"`
}

// Ptr returns a pointer to v. Handy for building snapshots.
func Ptr[T any](v T) *T {
	return &v
}
