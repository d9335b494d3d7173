// Package web serves the operator dashboard: mission status over HTTP and
// live transitions and telemetry over websockets.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-mission/pkg/driver"
	"github.com/teslashibe/go-mission/pkg/hub"
	"github.com/teslashibe/go-mission/pkg/mission"
	"github.com/teslashibe/go-mission/pkg/motion"
	"github.com/teslashibe/go-mission/pkg/protocol"
)

const (
	maxTransitions = 500
	maxTelemetry   = 200
)

// Mission is the read side of the state machine.
type Mission interface {
	Context() mission.Context
	History() []mission.Mode
}

// Link is the motion link as the dashboard sees it.
type Link interface {
	Send(ctx context.Context, op motion.Opcode) error
	Stats() motion.Stats
}

// Options wires the dashboard to the running mission. Link and Loop may be
// nil; the matching fields are then left out of the responses.
type Options struct {
	Mission Mission
	Link    Link
	Loop    func() driver.Stats
	RunID   string
	Logger  *slog.Logger
}

// Server is the dashboard. It implements mission.Observer.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	statusHub    *hub.Hub
	telemetryHub *hub.Hub

	mu          sync.RWMutex
	transitions []protocol.TransitionData
	gaps        uint64
	telemetry   []motion.TelemetryEvent
}

var _ mission.Observer = (*Server)(nil)

// NewServer builds the fiber app and its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		opts:         opts,
		logger:       logger,
		statusHub:    hub.New("status", logger),
		telemetryHub: hub.New("telemetry", logger),
		transitions:  make([]protocol.TransitionData, 0, maxTransitions),
		telemetry:    make([]motion.TelemetryEvent, 0, maxTelemetry),
	}
	s.statusHub.Greet(s.statusGreeting)

	app := fiber.New(fiber.Config{
		AppName:               "Mission Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/history", s.handleHistory)
	api.Get("/telemetry", s.handleTelemetry)
	api.Post("/opcode/:code", s.handleOpcode)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/telemetry", websocket.New(s.serveHub(s.telemetryHub)))

	s.app = app
	return s
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and listens on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.statusHub.Run(ctx)
	go s.telemetryHub.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", addr)
	return s.app.Listen(addr)
}

// OnTransition records the transition and pushes it to status clients.
func (s *Server) OnTransition(t mission.Transition) {
	data := protocol.TransitionData{
		RunID: s.opts.RunID,
		Tick:  t.Tick,
		From:  t.From.String(),
		To:    t.To.String(),
	}
	if t.To == mission.ModeWalk {
		data.SubMode = t.SubMode.String()
	}

	s.mu.Lock()
	s.transitions = append(s.transitions, data)
	if len(s.transitions) > maxTransitions {
		s.transitions = s.transitions[1:]
	}
	s.mu.Unlock()

	msg, err := protocol.NewTransitionMessage(data)
	if err == nil {
		err = s.broadcast(s.statusHub, msg)
	}
	if err != nil {
		s.logger.Warn("transition broadcast", "error", err)
	}
}

// OnGap counts the gap and tells status clients about it.
func (s *Server) OnGap(tick uint64, gap mission.PerceptionGap) {
	s.mu.Lock()
	s.gaps++
	s.mu.Unlock()

	msg, err := protocol.NewErrorMessage("", "perception_gap", gap.Error())
	if err == nil {
		err = s.broadcast(s.statusHub, msg)
	}
	if err != nil {
		s.logger.Warn("gap broadcast", "tick", tick, "error", err)
	}
}

// OnTelemetry records an inbound controller byte. Subscribe it to the motion
// protocol.
func (s *Server) OnTelemetry(ev motion.TelemetryEvent) {
	s.mu.Lock()
	s.telemetry = append(s.telemetry, ev)
	if len(s.telemetry) > maxTelemetry {
		s.telemetry = s.telemetry[1:]
	}
	s.mu.Unlock()

	msg, err := protocol.NewTelemetryMessage(ev.Kind.String(), ev.Value)
	if err == nil {
		err = s.broadcast(s.telemetryHub, msg)
	}
	if err != nil {
		s.logger.Debug("telemetry broadcast", "error", err)
	}
}

func (s *Server) broadcast(h *hub.Hub, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.Broadcast(hub.Text(data))
	return nil
}

// statusGreeting sends a joining client the last transition.
func (s *Server) statusGreeting() (hub.Message, bool) {
	s.mu.RLock()
	n := len(s.transitions)
	var last protocol.TransitionData
	if n > 0 {
		last = s.transitions[n-1]
	}
	s.mu.RUnlock()
	if n == 0 {
		return hub.Message{}, false
	}

	msg, err := protocol.NewTransitionMessage(last)
	if err != nil {
		return hub.Message{}, false
	}
	data, err := msg.Bytes()
	if err != nil {
		return hub.Message{}, false
	}
	return hub.Text(data), true
}
