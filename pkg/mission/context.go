package mission

import (
	"encoding/json"
	"slices"

	"github.com/teslashibe/go-mission/pkg/perception"
)

// BoxPos is where the box sat relative to the area corner when it was found.
type BoxPos string

const (
	BoxUnknown BoxPos = ""
	BoxLeft    BoxPos = "LEFT"
	BoxMiddle  BoxPos = "MIDDLE"
	BoxRight   BoxPos = "RIGHT"
)

// HeadQueue holds the three vertical head angles tried in turn while looking
// for the box. It only ever rotates.
type HeadQueue [3]int

// Front is the angle currently in use.
func (q HeadQueue) Front() int {
	return q[0]
}

// Rotate moves the front angle to the back.
func (q HeadQueue) Rotate() HeadQueue {
	return HeadQueue{q[1], q[2], q[0]}
}

// History records the modes the robot went through, oldest first. Walk is
// never recorded and consecutive duplicates are dropped.
type History struct {
	entries []Mode
}

// Push records m. It reports whether m was appended.
func (h *History) Push(m Mode) bool {
	if m == ModeWalk {
		return false
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == m {
		return false
	}
	h.entries = append(h.entries, m)
	return true
}

// Top returns the latest entry.
func (h History) Top() (Mode, bool) {
	if len(h.entries) == 0 {
		return 0, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of entries.
func (h History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the entries, oldest first.
func (h History) Entries() []Mode {
	return slices.Clone(h.entries)
}

func (h History) clone() History {
	return History{entries: slices.Clone(h.entries)}
}

// MarshalJSON encodes the history as a list of mode names.
func (h History) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

// Context is everything the mission remembers between ticks. It is owned by
// the Machine; handlers receive a copy and return the next one.
type Context struct {
	Mode        Mode        `json:"mode"`
	WalkSubMode WalkSubMode `json:"walk_sub_mode"`

	Direction     perception.Direction `json:"direction"`
	ActiveColor   perception.Color     `json:"active_color"`
	BoxPos        BoxPos               `json:"box_pos"`
	RoomColor     perception.Color     `json:"room_color"`
	Alphabet      perception.Letter    `json:"alphabet"`
	AlphabetColor perception.Color     `json:"alphabet_color"`

	CubeGrabbed  bool      `json:"cube_grabbed"`
	ArmExtended  bool      `json:"arm_extended"`
	HeadQueue    HeadQueue `json:"head_queue"`
	MissionCount int       `json:"mission_count"`

	// HeadVertical is the last vertical head angle commanded through the
	// mission, 0 when unknown or centered.
	HeadVertical int `json:"head_vertical"`
	ReturnHead   int `json:"return_head"`

	Tick    uint64  `json:"tick"`
	History History `json:"history"`
}

// NewContext returns the context a run starts from.
func NewContext(initial Mode, th Thresholds) Context {
	return Context{
		Mode:        initial,
		ActiveColor: perception.Yellow,
		HeadQueue:   th.HeadQueue,
	}
}
