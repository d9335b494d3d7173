package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/teslashibe/go-mission/internal/log"
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/mission"
	"github.com/teslashibe/go-mission/pkg/perception"
	"github.com/teslashibe/go-mission/pkg/protocol"
)

func runNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitMessages(t *testing.T, pub *MockPublisher, want int) []Published {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		msgs := pub.Messages()
		if len(msgs) >= want {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("published %d messages, want %d", len(msgs), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNotifier_Transition(t *testing.T) {
	pub := &MockPublisher{}
	n := NewNotifier(pub, "fleet", "run-9", log.Discard())
	runNotifier(t, n)

	n.OnTransition(mission.Transition{Tick: 3, From: mission.ModeWalk, To: mission.ModeWalk, SubMode: mission.SubTee})

	msg := waitMessages(t, pub, 1)[0]
	if msg.Topic != "fleet/run-9/mode" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if msg.QoS != 1 || msg.Retained {
		t.Errorf("qos = %d retained = %v, want 1/false", msg.QoS, msg.Retained)
	}

	var data protocol.TransitionData
	if err := json.Unmarshal(msg.Payload, &data); err != nil {
		t.Fatal(err)
	}
	want := protocol.TransitionData{RunID: "run-9", Tick: 3, From: "walk", To: "walk", SubMode: "tee"}
	if data != want {
		t.Errorf("payload = %+v, want %+v", data, want)
	}
}

func TestNotifier_Gap(t *testing.T) {
	pub := &MockPublisher{}
	n := NewNotifier(pub, "fleet", "run-9", log.Discard())
	runNotifier(t, n)

	n.OnGap(12, mission.PerceptionGap{Mode: mission.ModeCheckArea, Field: "box_pos"})

	msg := waitMessages(t, pub, 1)[0]
	if msg.Topic != "fleet/run-9/gap" {
		t.Errorf("topic = %q", msg.Topic)
	}
	var ev GapEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Tick != 12 || ev.Mode != "check_area" || ev.Field != "box_pos" {
		t.Errorf("gap = %+v", ev)
	}
}

func TestNotifier_PublishFailuresAreCounted(t *testing.T) {
	pub := &MockPublisher{PublishFunc: func(string, []byte) error { return ErrNotConnected }}
	n := NewNotifier(pub, "fleet", "run-9", log.Discard())

	n.OnGap(1, mission.PerceptionGap{Mode: mission.ModeFindBox, Field: "box"})
	n.OnGap(2, mission.PerceptionGap{Mode: mission.ModeFindBox, Field: "box"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx) // flushes the queue before returning

	sent, dropped, failed := n.Stats()
	if sent != 0 || dropped != 0 || failed != 2 {
		t.Errorf("stats = %d/%d/%d, want 0/0/2", sent, dropped, failed)
	}
}

func TestNotifier_DropsWhenQueueFull(t *testing.T) {
	n := NewNotifier(&MockPublisher{}, "fleet", "run-9", log.Discard())
	for i := 0; i < queueSize+3; i++ {
		n.OnTransition(mission.Transition{From: mission.ModeWalk, To: mission.ModeFinish})
	}
	if _, dropped, _ := n.Stats(); dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
}

func TestNotifier_ObservesMachine(t *testing.T) {
	pub := &MockPublisher{}
	n := NewNotifier(pub, "fleet", "run-1", log.Discard())

	m, err := mission.NewMachine(actuator.NewRecorder(), mission.ModeStart, mission.DefaultThresholds(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	m.Subscribe(n)
	runNotifier(t, n)

	if _, err := m.Step(context.Background(), perception.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	msg := waitMessages(t, pub, 1)[0]
	var data protocol.TransitionData
	if err := json.Unmarshal(msg.Payload, &data); err != nil {
		t.Fatal(err)
	}
	if data.From != "start" || data.To != "detect_alphabet" {
		t.Errorf("transition = %+v", data)
	}
}
