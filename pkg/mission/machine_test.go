package mission

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/teslashibe/go-mission/internal/log"
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/perception"
)

type recordingObserver struct {
	transitions []Transition
	gaps        []PerceptionGap
}

func (o *recordingObserver) OnTransition(t Transition) {
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) OnGap(tick uint64, gap PerceptionGap) {
	o.gaps = append(o.gaps, gap)
}

func newTestMachine(t *testing.T, initial Mode) (*Machine, *actuator.Recorder) {
	t.Helper()
	rec := actuator.NewRecorder()
	m, err := NewMachine(rec, initial, DefaultThresholds().NoPauses(), log.Discard())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	return m, rec
}

func TestStep_WalkForwardScenario(t *testing.T) {
	m, rec := newTestMachine(t, ModeWalk)
	snap := perception.Snapshot{Line: perception.LineInfo{HasVertical: true, VerticalX: [2]int{310, 310}}}

	res, err := m.Step(context.Background(), snap)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	var walks []actuator.Command
	for _, c := range rec.Commands() {
		if c.Kind == actuator.KindWalk {
			walks = append(walks, c)
		}
	}
	if len(walks) != 1 || walks[0] != actuator.Walk(actuator.Forward, 1, false) {
		t.Errorf("walk commands = %v, want exactly one walk forward", walks)
	}
	if res.To != ModeWalk || m.Mode() != ModeWalk {
		t.Errorf("mode = %s, want walk", m.Mode())
	}
}

func TestStep_ModifyAngleScenario(t *testing.T) {
	m, rec := newTestMachine(t, ModeWalk)

	if _, err := m.Step(context.Background(), perception.Snapshot{Line: perception.LineInfo{Degree: 80}}); err != nil {
		t.Fatal(err)
	}
	if got := m.Context().WalkSubMode; got != SubModifyAngle {
		t.Errorf("WalkSubMode = %s, want modify_angle", got)
	}
	if n := countKind(rec.Commands(), actuator.KindTurn); n != 1 {
		t.Errorf("turn commands = %d, want 1", n)
	}
}

func TestStep_TrackBoxScenarios(t *testing.T) {
	th := DefaultThresholds()

	t.Run("turn toward far box", func(t *testing.T) {
		m, rec := newTestMachine(t, ModeTrackBox)
		c := m.Context()
		c.HeadVertical = c.HeadQueue.Front()
		m.Reset(c)

		// dx = -95, dy = 20
		box := perception.Point{X: th.BaselineX + 95, Y: th.BaselineY - 20}
		if _, err := m.Step(context.Background(), perception.Snapshot{Box: &box}); err != nil {
			t.Fatal(err)
		}
		wantCommands(t, rec.Commands(), actuator.Turn(actuator.Right, 1, false))
		if m.Mode() != ModeTrackBox {
			t.Errorf("Mode = %s, want track_box", m.Mode())
		}
	})

	t.Run("grab at final head angle", func(t *testing.T) {
		m, rec := newTestMachine(t, ModeTrackBox)
		c := m.Context()
		c.HeadQueue = HeadQueue{35, 75, 60}
		c.HeadVertical = 35
		c.ActiveColor = perception.Green
		c.RoomColor = perception.Green
		c.BoxPos = BoxLeft
		m.Reset(c)

		box := perception.Point{X: th.BaselineX, Y: th.BaselineY - 10}
		if _, err := m.Step(context.Background(), perception.Snapshot{Box: &box}); err != nil {
			t.Fatal(err)
		}
		wantCommands(t, rec.Commands(),
			actuator.GripClose(),
			actuator.Turn(actuator.Right, 5, true),
			actuator.Arm(1, true),
		)
		if m.Mode() != ModeCheckArea {
			t.Errorf("Mode = %s, want check_area", m.Mode())
		}
	})
}

func TestStep_PerceptionGapIsNoOp(t *testing.T) {
	m, rec := newTestMachine(t, ModeCheckArea)
	obs := &recordingObserver{}
	m.Subscribe(obs)
	before := m.Context()

	res, err := m.Step(context.Background(), perception.Snapshot{})
	if err != nil {
		t.Fatalf("Step() error = %v, want nil for a gap", err)
	}
	if res.Gap == nil || res.Gap.Field != "box_pos" {
		t.Errorf("Gap = %v, want box_pos", res.Gap)
	}
	if len(rec.Commands()) != 0 {
		t.Errorf("commands = %v, want none", rec.Commands())
	}

	after := m.Context()
	if after.Mode != before.Mode || after.History.Len() != before.History.Len() {
		t.Errorf("context changed on a gap: %+v", after)
	}
	if len(obs.gaps) != 1 {
		t.Errorf("observer gaps = %d, want 1", len(obs.gaps))
	}
}

func TestStep_CommandFailureKeepsContext(t *testing.T) {
	m, rec := newTestMachine(t, ModeDetectDirection)
	c := m.Context()
	c.Direction = perception.DirRight
	c.HeadVertical = 90
	m.Reset(c)

	linkErr := errors.New("link down")
	rec.ExecuteFunc = func(ctx context.Context, cmd actuator.Command) error {
		if cmd.Kind == actuator.KindTurn {
			return linkErr
		}
		return nil
	}

	res, err := m.Step(context.Background(), perception.Snapshot{})
	if !errors.Is(err, linkErr) {
		t.Fatalf("Step() error = %v, want %v", err, linkErr)
	}
	if len(res.Commands) != 2 {
		t.Errorf("executed = %v, want the two walks before the failing turn", res.Commands)
	}
	if m.Mode() != ModeDetectDirection {
		t.Errorf("Mode = %s, want detect_direction unchanged", m.Mode())
	}
	if len(m.History()) != 0 {
		t.Errorf("History = %v, want empty", m.History())
	}

	if p := m.Pending(); len(p) != 1 || p[0].Kind != actuator.KindTurn {
		t.Errorf("Pending() = %v, want the failed turn", p)
	}

	// Once the link recovers only the turn is sent, then the tick commits.
	rec.ExecuteFunc = nil
	rec.Reset()
	res, err = m.Step(context.Background(), perception.Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resumed {
		t.Error("Resumed = false, want true")
	}
	if got := rec.Commands(); len(got) != 1 || got[0] != actuator.Turn(actuator.Right, 8, false) {
		t.Errorf("resumed commands = %v, want only the turn", got)
	}
	if m.Mode() != ModeWalk {
		t.Errorf("Mode = %s, want walk", m.Mode())
	}
	if m.Pending() != nil {
		t.Errorf("Pending() = %v after commit, want none", m.Pending())
	}
	if got := m.Context().Tick; got != 2 {
		t.Errorf("Tick = %d, want 2", got)
	}
}

func TestStep_FailedGripDoesNotRepeatPlacementWalk(t *testing.T) {
	m, rec := newTestMachine(t, ModeBoxIntoArea)
	c := m.Context()
	c.BoxPos = BoxLeft
	c.CubeGrabbed = true
	c.ActiveColor = perception.Green
	c.RoomColor = perception.Green
	m.Reset(c)

	failed := false
	rec.ExecuteFunc = func(ctx context.Context, cmd actuator.Command) error {
		if cmd.Kind == actuator.KindGrip && !failed {
			failed = true
			return errors.New("grip open: ack timeout")
		}
		return nil
	}

	ctx := context.Background()
	if _, err := m.Step(ctx, perception.Snapshot{}); err == nil {
		t.Fatal("first Step() should report the grip failure")
	}
	if m.Context().MissionCount != 0 {
		t.Error("mission count must not advance before the box is released")
	}
	if _, err := m.Step(ctx, perception.Snapshot{}); err != nil {
		t.Fatalf("second Step() error = %v", err)
	}

	steps := 0
	for _, cmd := range rec.Commands() {
		if cmd.Kind == actuator.KindWalk && cmd.Dir == actuator.Forward {
			steps += cmd.Loop
		}
	}
	if want := m.Thresholds().PlaceSteps; steps != want {
		t.Errorf("forward steps = %d, want %d", steps, want)
	}
	if n := countKind(rec.Commands(), actuator.KindTurn); n != 1 {
		t.Errorf("exit turns = %d, want 1", n)
	}

	got := m.Context()
	if got.Mode != ModeEndMission || got.MissionCount != 1 || got.CubeGrabbed {
		t.Errorf("context = mode %s, missions %d, grabbed %v; want end_mission, 1, false",
			got.Mode, got.MissionCount, got.CubeGrabbed)
	}
}

func TestStep_PendingClearedByReset(t *testing.T) {
	m, rec := newTestMachine(t, ModeBoxIntoArea)
	c := m.Context()
	c.BoxPos = BoxRight
	m.Reset(c)

	rec.ExecuteFunc = func(ctx context.Context, cmd actuator.Command) error {
		return errors.New("link down")
	}
	if _, err := m.Step(context.Background(), perception.Snapshot{}); err == nil {
		t.Fatal("Step() should fail")
	}
	if len(m.Pending()) == 0 {
		t.Fatal("expected pending commands")
	}

	if err := m.Reset(NewContext(ModeWalk, m.Thresholds())); err != nil {
		t.Fatal(err)
	}
	if m.Pending() != nil {
		t.Errorf("Pending() = %v after Reset, want none", m.Pending())
	}
}

func TestStep_CourseToFirstRoom(t *testing.T) {
	m, _ := newTestMachine(t, ModeStart)
	obs := &recordingObserver{}
	m.Subscribe(obs)
	ctx := context.Background()

	steps := []perception.Snapshot{
		{}, // start
		{DoorAlphabet: perception.Ptr(perception.LetterE)},
		{}, // alphabet known, head down
		{Line: perception.LineInfo{HasVertical: true, VerticalX: [2]int{320, 320}}},
		{Line: perception.LineInfo{HasHorizontal: true, HorizontalX: [2]int{100, 540}}}, // tee
		{Arrow: perception.Ptr(perception.DirRight)},
		{}, // maneuver
		{Line: perception.LineInfo{HasHorizontal: true, HorizontalX: [2]int{80, 300}}}, // left corner ahead
		{Line: perception.LineInfo{HasHorizontal: true, HorizontalX: [2]int{80, 300}, HorizontalY: [2]int{100, 200}}},
	}
	for i, s := range steps {
		if _, err := m.Step(ctx, s); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if m.Mode() != ModeStartMission {
		t.Fatalf("Mode = %s, want start_mission", m.Mode())
	}
	want := []Mode{ModeDetectAlphabet, ModeDetectDirection, ModeStartMission}
	if got := m.History(); !reflect.DeepEqual(got, want) {
		t.Errorf("History = %v, want %v", got, want)
	}
	c := m.Context()
	if c.ArmExtended || c.Direction != perception.DirRight {
		t.Errorf("context = %+v", c)
	}
	if len(obs.transitions) == 0 || obs.transitions[len(obs.transitions)-1].To != ModeStartMission {
		t.Errorf("last transition = %+v, want to start_mission", obs.transitions)
	}
}

func TestHistory_NoConsecutiveDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	randomSnapshot := func() perception.Snapshot {
		s := perception.Snapshot{
			Line: perception.LineInfo{
				HasVertical:   rng.Intn(2) == 0,
				VerticalX:     [2]int{rng.Intn(640), rng.Intn(640)},
				HasHorizontal: rng.Intn(3) == 0,
				HorizontalX:   [2]int{rng.Intn(320), 320 + rng.Intn(320)},
				HorizontalY:   [2]int{rng.Intn(240), rng.Intn(480)},
				Degree:        float64(60 + rng.Intn(60)),
				AllX:          [2]int{rng.Intn(320), rng.Intn(640)},
				AllY:          [2]int{rng.Intn(240), rng.Intn(480)},
			},
			Edge: perception.EdgeInfo{
				EdgeDown:  rng.Intn(2) == 0,
				EdgeDownX: rng.Intn(640),
				EdgeDownY: rng.Intn(480),
			},
		}
		if rng.Intn(2) == 0 {
			s.Box = &perception.Point{X: rng.Intn(640), Y: rng.Intn(480)}
		}
		if rng.Intn(3) == 0 {
			s.Arrow = perception.Ptr(perception.DirLeft)
		}
		if rng.Intn(3) == 0 {
			s.DoorAlphabet = perception.Ptr(perception.LetterS)
		}
		if rng.Intn(3) == 0 {
			s.RoomAlphabetColor = perception.Ptr(perception.Blue)
		}
		if rng.Intn(3) == 0 {
			s.Edge.EdgePos = &perception.Point{X: rng.Intn(640), Y: rng.Intn(480)}
		}
		return s
	}

	for _, initial := range Modes() {
		m, _ := newTestMachine(t, initial)
		for i := 0; i < 300; i++ {
			if _, err := m.Step(context.Background(), randomSnapshot()); err != nil {
				t.Fatalf("%s tick %d: %v", initial, i, err)
			}

			c := m.Context()
			if !c.Mode.Valid() {
				t.Fatalf("invalid mode %d", c.Mode)
			}
			if c.Mode != ModeWalk && c.WalkSubMode != SubStraight {
				t.Fatalf("sub-mode %s outside walk", c.WalkSubMode)
			}
			if !isRotation(c.HeadQueue, DefaultThresholds().HeadQueue) {
				t.Fatalf("HeadQueue %v is not a rotation of the default", c.HeadQueue)
			}
		}

		h := m.History()
		for i, mode := range h {
			if mode == ModeWalk {
				t.Errorf("%s: walk recorded at %d", initial, i)
			}
			if i > 0 && h[i-1] == mode {
				t.Errorf("%s: duplicate %s at %d", initial, mode, i)
			}
		}
	}
}

func isRotation(q, base HeadQueue) bool {
	for i := 0; i < len(base); i++ {
		if q == base {
			return true
		}
		base = base.Rotate()
	}
	return false
}

func TestReadsAreIdempotent(t *testing.T) {
	m, _ := newTestMachine(t, ModeFindBox)
	c := m.Context()
	c.AlphabetColor = perception.Red
	c.History.Push(ModeDetectRoomAlphabet)
	m.Reset(c)

	if !reflect.DeepEqual(m.Context(), m.Context()) {
		t.Error("Context() differs between calls")
	}
	if !reflect.DeepEqual(m.History(), m.History()) {
		t.Error("History() differs between calls")
	}
	if m.Needs() != m.Needs() {
		t.Error("Needs() differs between calls")
	}

	// Mutating a returned copy does not leak into the machine.
	h := m.History()
	h[0] = ModeFinish
	if m.History()[0] != ModeDetectRoomAlphabet {
		t.Error("History() returned shared storage")
	}
}

func TestNeeds(t *testing.T) {
	tests := []struct {
		name string
		ctx  func(c *Context)
		want perception.Request
	}{
		{"walk", func(c *Context) { c.Mode = ModeWalk }, perception.Request{LineColor: perception.Yellow}},
		{"door alphabet", func(c *Context) { c.Mode = ModeDetectAlphabet }, perception.Request{LineColor: perception.Yellow, DoorAlphabet: true}},
		{"arrow", func(c *Context) { c.Mode = ModeDetectDirectionFail }, perception.Request{LineColor: perception.Yellow, Arrow: true}},
		{"arrow known", func(c *Context) {
			c.Mode = ModeDetectDirection
			c.Direction = perception.DirLeft
		}, perception.Request{LineColor: perception.Yellow}},
		{"area color", func(c *Context) { c.Mode = ModeRecognizeAreaColor }, perception.Request{LineColor: perception.Green}},
		{"box", func(c *Context) {
			c.Mode = ModeTrackBox
			c.ActiveColor = perception.Green
			c.AlphabetColor = perception.Blue
		}, perception.Request{LineColor: perception.Green, Box: true, BoxColor: perception.Blue}},
		{"saferoom", func(c *Context) {
			c.Mode = ModeTrackCube
			c.CubeGrabbed = true
		}, perception.Request{LineColor: perception.Yellow, Saferoom: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(ModeStart, DefaultThresholds())
			tt.ctx(&c)
			if got := needs(c); got != tt.want {
				t.Errorf("needs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewMachine_Validation(t *testing.T) {
	if _, err := NewMachine(actuator.NewRecorder(), Mode(99), DefaultThresholds(), nil); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("NewMachine(99) error = %v, want ErrUnknownMode", err)
	}

	th := DefaultThresholds()
	th.FitHead = 33
	if _, err := NewMachine(actuator.NewRecorder(), ModeStart, th, nil); !errors.Is(err, actuator.ErrUnmappedAngle) {
		t.Errorf("NewMachine() error = %v, want ErrUnmappedAngle", err)
	}

	th = DefaultThresholds()
	th.ArmLow = 4
	if err := th.Validate(); !errors.Is(err, actuator.ErrArmLevel) {
		t.Errorf("Validate() error = %v, want ErrArmLevel", err)
	}

	th = DefaultThresholds()
	th.LaneLow, th.LaneHigh = th.LaneHigh, th.LaneLow
	if err := th.Validate(); err == nil {
		t.Error("Validate() should reject swapped lane bounds")
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}

	if got, _ := ParseMode("Track-Box"); got != ModeTrackBox {
		t.Errorf("ParseMode(Track-Box) = %s", got)
	}
	if _, err := ParseMode("dance"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("ParseMode(dance) error = %v, want ErrUnknownMode", err)
	}
}

func TestHeadQueue_Rotate(t *testing.T) {
	q := HeadQueue{75, 60, 35}
	want := []int{75, 60, 35, 75}
	for i, w := range want {
		if q.Front() != w {
			t.Errorf("rotation %d: Front() = %d, want %d", i, q.Front(), w)
		}
		q = q.Rotate()
	}
}

func TestHistory_Push(t *testing.T) {
	var h History
	for _, m := range []Mode{ModeFindBox, ModeFindBox, ModeWalk, ModeTrackBox, ModeFindBox, ModeFindBox} {
		h.Push(m)
	}
	want := []Mode{ModeFindBox, ModeTrackBox, ModeFindBox}
	if !reflect.DeepEqual(h.Entries(), want) {
		t.Errorf("Entries() = %v, want %v", h.Entries(), want)
	}
	if top, ok := h.Top(); !ok || top != ModeFindBox {
		t.Errorf("Top() = %s, %v", top, ok)
	}
}
