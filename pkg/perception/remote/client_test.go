package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-mission/internal/log"
	"github.com/teslashibe/go-mission/pkg/perception"
	"github.com/teslashibe/go-mission/pkg/perception/server"
)

func startServer(t *testing.T, svc perception.Service, addr string) string {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	server.New(svc, log.Discard()).RegisterRoutes(app)

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	return "ws://" + addr + "/ws/perception"
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultConfig(url)
	cfg.PingInterval = 0
	c, err := Dial(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Pull(t *testing.T) {
	mock := perception.NewMock(perception.Snapshot{
		Line: perception.LineInfo{HasVertical: true, VerticalX: [2]int{300, 320}, Degree: 90},
		Box:  &perception.Point{X: 280, Y: 350},
	})
	c := dial(t, startServer(t, mock, "127.0.0.1:18190"))

	req := perception.Request{LineColor: perception.Green, Box: true, BoxColor: perception.Red}
	snap, err := c.Pull(context.Background(), req)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if snap.Line.VerticalMid() != 310 {
		t.Errorf("VerticalMid() = %d, want 310", snap.Line.VerticalMid())
	}
	if snap.Box == nil || *snap.Box != (perception.Point{X: 280, Y: 350}) {
		t.Errorf("Box = %v, want (280,350)", snap.Box)
	}
	if snap.Arrow != nil {
		t.Errorf("Arrow = %v, want nil", snap.Arrow)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0] != req {
		t.Errorf("server saw requests %+v, want [%+v]", reqs, req)
	}
}

func TestClient_Queries(t *testing.T) {
	mock := perception.NewMock()
	mock.ArrowDirectionFunc = func(ctx context.Context) (*perception.Direction, error) {
		return perception.Ptr(perception.DirRight), nil
	}
	var gotColor perception.Color
	mock.BoxPositionFunc = func(ctx context.Context, color perception.Color, edge perception.EdgeInfo) (*perception.Point, error) {
		gotColor = color
		return &perception.Point{X: 1, Y: 2}, nil
	}
	c := dial(t, startServer(t, mock, "127.0.0.1:18191"))
	ctx := context.Background()

	dir, err := c.ArrowDirection(ctx)
	if err != nil {
		t.Fatalf("ArrowDirection() error = %v", err)
	}
	if dir == nil || *dir != perception.DirRight {
		t.Errorf("ArrowDirection() = %v, want RIGHT", dir)
	}

	p, err := c.BoxPosition(ctx, perception.Blue, perception.EdgeInfo{EdgeDown: true})
	if err != nil {
		t.Fatalf("BoxPosition() error = %v", err)
	}
	if p == nil || p.Y != 2 || gotColor != perception.Blue {
		t.Errorf("BoxPosition() = %v with color %s, want (1,2) with BLUE", p, gotColor)
	}

	// Nothing found is not an error.
	l, err := c.DoorAlphabet(ctx)
	if err != nil || l != nil {
		t.Errorf("DoorAlphabet() = (%v, %v), want (nil, nil)", l, err)
	}
}

func TestClient_RemoteError(t *testing.T) {
	c := dial(t, startServer(t, perception.NewMock(), "127.0.0.1:18192"))

	_, err := c.Pull(context.Background(), perception.Request{})
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("Pull() error = %v, want *RemoteError", err)
	}
	if re.Code != server.CodeNoSnapshot {
		t.Errorf("Code = %q, want %q", re.Code, server.CodeNoSnapshot)
	}
}

func TestClient_Closed(t *testing.T) {
	c := dial(t, startServer(t, perception.NewMock(perception.Snapshot{}), "127.0.0.1:18193"))

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.Pull(context.Background(), perception.Request{}); !errors.Is(err, perception.ErrClosed) {
		t.Errorf("Pull() after Close error = %v, want ErrClosed", err)
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Error("Done() should be closed after Close")
	}
}

func TestDial_Unreachable(t *testing.T) {
	cfg := DefaultConfig("ws://127.0.0.1:18199/ws/perception")
	cfg.DialTimeout = 500 * time.Millisecond
	if _, err := Dial(context.Background(), cfg, log.Discard()); err == nil {
		t.Error("Dial() to a closed port should fail")
	}
}
