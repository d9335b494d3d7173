package motion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-mission/internal/log"
)

func testConfig() Config {
	return Config{
		AckTimeout:   500 * time.Millisecond,
		SettleDelay:  0,
		PollInterval: time.Millisecond,
	}
}

func waitDone(t *testing.T, p *Protocol) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		in   byte
		want EventKind
	}{
		{16, EventExit},
		{200, EventAck},
		{0, EventDistance},
		{45, EventDistance},
		{255, EventDistance},
	}

	for _, tt := range tests {
		got := Decode(tt.in)
		if got.Kind != tt.want || got.Value != tt.in {
			t.Errorf("Decode(%d) = %+v, want kind %s", tt.in, got, tt.want)
		}
	}
}

func TestListener_AckDistanceExit(t *testing.T) {
	link := NewFakeLink()
	p := New(link, testConfig(), log.Discard())
	ctx := context.Background()

	if err := p.Send(ctx, 10); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !p.InFlight() {
		t.Fatal("frame should be in flight before its ack")
	}

	var mu sync.Mutex
	var kinds []EventKind
	p.Subscribe(func(ev TelemetryEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	// Bytes after the exit signal are never processed.
	link.Inject(200, 45, 16, 77)
	p.Start(ctx)
	waitDone(t, p)

	if p.InFlight() {
		t.Error("ack should release the in-flight slot")
	}
	if got := p.Distance(); got != 45 {
		t.Errorf("Distance() = %d, want 45", got)
	}
	if s := p.Stats(); s.Acks != 1 || s.Sent != 1 {
		t.Errorf("Stats() = %+v, want 1 sent and 1 ack", s)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventAck, EventDistance, EventExit}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestSend_AckTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = 50 * time.Millisecond
	link := NewFakeLink()
	p := New(link, cfg, log.Discard())
	ctx := context.Background()

	if err := p.Send(ctx, 10); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	start := time.Now()
	err := p.Send(ctx, 11)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("second Send() error = %v, want ErrAckTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.AckTimeout {
		t.Errorf("Send() gave up after %s, before the ack timeout", elapsed)
	}
	if !IsRetryable(err) {
		t.Error("ack timeout should be retryable")
	}
	if got := p.Stats().Lost; got != 1 {
		t.Errorf("Lost = %d, want 1", got)
	}

	// The stale slot was reclaimed, so a retry goes out.
	if err := p.Send(ctx, 11); err != nil {
		t.Fatalf("retry Send() error = %v", err)
	}
	written := link.Written()
	if len(written) != 2 || written[0] != 10 || written[1] != 11 {
		t.Errorf("Written() = %v, want [10 11]", written)
	}
}

func TestSend_ConcurrentAtMostOneInFlight(t *testing.T) {
	link := NewFakeLink()
	link.AutoAck(2 * time.Millisecond)

	cfg := testConfig()
	cfg.AckTimeout = 2 * time.Second
	p := New(link, cfg, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	const workers, perWorker = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := p.Send(ctx, Opcode(30+w)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Send() error = %v", err)
	}
	if got := len(link.Written()); got != workers*perWorker {
		t.Errorf("wrote %d bytes, want %d", got, workers*perWorker)
	}
	if got := link.MaxUnacked(); got > 1 {
		t.Errorf("MaxUnacked() = %d, at most one frame may be outstanding", got)
	}

	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := p.Stats().Acks; got != workers*perWorker {
		t.Errorf("Acks = %d, want %d", got, workers*perWorker)
	}
}

func TestSend_DebugMode(t *testing.T) {
	p := NewDebug(log.Discard())

	for _, op := range []Opcode{56, 65, 5} {
		if err := p.Send(context.Background(), op); err != nil {
			t.Fatalf("Send(%d) error = %v", op, err)
		}
	}

	s := p.Stats()
	if !s.Debug || s.Sent != 3 || s.InFlight {
		t.Errorf("Stats() = %+v, want debug with 3 sent and nothing in flight", s)
	}
}

func TestSend_WriteFailure(t *testing.T) {
	link := NewFakeLink()
	link.FailWrites(errors.New("uart unplugged"))
	p := New(link, testConfig(), log.Discard())

	err := p.Send(context.Background(), 56)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Send() error = %v, want ErrWriteFailed", err)
	}
	var le *LinkError
	if !errors.As(err, &le) || le.Opcode != 56 {
		t.Errorf("error = %#v, want *LinkError for opcode 56", err)
	}
	if p.InFlight() {
		t.Error("failed write must not leave a frame in flight")
	}

	link.FailWrites(nil)
	if err := p.Send(context.Background(), 56); err != nil {
		t.Errorf("Send() after heal error = %v", err)
	}
}

func TestSend_Closed(t *testing.T) {
	p := New(NewFakeLink(), testConfig(), log.Discard())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	err := p.Send(context.Background(), 56)
	if !errors.Is(err, ErrLinkUnavailable) {
		t.Fatalf("Send() error = %v, want ErrLinkUnavailable", err)
	}
	if IsRetryable(err) {
		t.Error("closed link should not be retryable")
	}
	waitDone(t, p)
}

func TestSend_ContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = 5 * time.Second
	p := New(NewFakeLink(), cfg, log.Discard())

	if err := p.Send(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Send(ctx, 11); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want context.DeadlineExceeded", err)
	}
	if got := p.Stats().Lost; got != 0 {
		t.Errorf("Lost = %d, a cancelled wait must not reclaim the slot", got)
	}
}

func TestSendFrame_Repeats(t *testing.T) {
	link := NewFakeLink()
	link.AutoAck(0)
	p := New(link, testConfig(), log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	if err := p.SendFrame(ctx, CommandFrame{Opcode: 58, Repeat: 3}); err != nil {
		t.Fatalf("SendFrame() error = %v", err)
	}
	written := link.Written()
	if len(written) != 3 {
		t.Fatalf("Written() = %v, want three bytes", written)
	}
	for i, b := range written {
		if b != 58 {
			t.Errorf("byte %d = %d, want 58", i, b)
		}
	}
}

func TestListener_SpuriousAck(t *testing.T) {
	link := NewFakeLink()
	p := New(link, testConfig(), log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	link.Inject(200)
	eventually(t, "spurious ack", func() bool { return p.Stats().Spurious == 1 })
	if p.Stats().Acks != 0 {
		t.Error("spurious ack must not count as a real ack")
	}
}

func TestListener_StopsOnContext(t *testing.T) {
	link := NewFakeLink()
	p := New(link, testConfig(), log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	waitDone(t, p)

	if err := p.Send(context.Background(), 10); !errors.Is(err, ErrListenerStopped) {
		t.Errorf("Send() error = %v, want ErrListenerStopped", err)
	}
	if got := link.Written(); len(got) != 0 {
		t.Errorf("Written() = %v, want nothing after the listener stopped", got)
	}
}

func TestSend_RefusedAfterExitSignal(t *testing.T) {
	link := NewFakeLink()
	p := New(link, testConfig(), log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	link.Inject(ByteExit)
	waitDone(t, p)

	for i := 0; i < 4; i++ {
		err := p.Send(ctx, 56)
		if !errors.Is(err, ErrListenerStopped) {
			t.Errorf("Send #%d error = %v, want ErrListenerStopped", i+1, err)
		}
		if IsRetryable(err) {
			t.Errorf("Send #%d: a stopped listener must not be retryable", i+1)
		}
	}
	if err := p.SendFrame(ctx, CommandFrame{Opcode: 58, Repeat: 3}); !errors.Is(err, ErrListenerStopped) {
		t.Errorf("SendFrame() error = %v, want ErrListenerStopped", err)
	}

	if got := link.Written(); len(got) != 0 {
		t.Errorf("Written() = %v, want nothing after the exit byte", got)
	}
	if s := p.Stats(); s.Sent != 0 || s.Lost != 0 {
		t.Errorf("Stats() = %+v, want no sent or lost frames", s)
	}
}

func TestSend_WaitingSenderKeepsSlotWhenListenerStops(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = 2 * time.Second
	link := NewFakeLink()
	p := New(link, cfg, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Send(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	p.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Send(context.Background(), 11) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrListenerStopped) {
			t.Errorf("waiting Send() error = %v, want ErrListenerStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting Send() did not return after the listener stopped")
	}

	if !p.InFlight() {
		t.Error("the unacknowledged frame must keep the slot")
	}
	if err := p.Send(context.Background(), 12); !errors.Is(err, ErrListenerStopped) {
		t.Errorf("later Send() error = %v, want ErrListenerStopped", err)
	}
	if got := link.Written(); len(got) != 1 || got[0] != 10 {
		t.Errorf("Written() = %v, want only [10]", got)
	}
}

func TestDrain(t *testing.T) {
	link := NewFakeLink()
	p := New(link, testConfig(), log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain() on an idle link = %v", err)
	}
	if err := p.Send(ctx, 56); err != nil {
		t.Fatal(err)
	}

	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	defer stop()
	if err := p.Drain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() without an ack = %v, want deadline exceeded", err)
	}

	p.Start(ctx)
	link.Inject(ByteAck)
	waitCtx, stopWait := context.WithTimeout(ctx, 2*time.Second)
	defer stopWait()
	if err := p.Drain(waitCtx); err != nil {
		t.Errorf("Drain() after the ack = %v", err)
	}
	if s := p.Stats(); s.Sent != 1 || s.Acks != 1 || s.InFlight {
		t.Errorf("Stats = %+v, want one sent and acked", s)
	}
}
