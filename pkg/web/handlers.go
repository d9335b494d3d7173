package web

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-mission/pkg/driver"
	"github.com/teslashibe/go-mission/pkg/hub"
	"github.com/teslashibe/go-mission/pkg/mission"
	"github.com/teslashibe/go-mission/pkg/motion"
	"github.com/teslashibe/go-mission/pkg/protocol"
)

const opcodeTimeout = 3 * time.Second

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	RunID   string          `json:"run_id,omitempty"`
	Context mission.Context `json:"context"`
	Gaps    uint64          `json:"gaps"`
	Loop    *driver.Stats   `json:"loop,omitempty"`
	Link    *motion.Stats   `json:"link,omitempty"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	History     []mission.Mode            `json:"history"`
	Transitions []protocol.TransitionData `json:"transitions"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		RunID:   s.opts.RunID,
		Context: s.opts.Mission.Context(),
	}
	s.mu.RLock()
	resp.Gaps = s.gaps
	s.mu.RUnlock()

	if s.opts.Loop != nil {
		st := s.opts.Loop()
		resp.Loop = &st
	}
	if s.opts.Link != nil {
		st := s.opts.Link.Stats()
		resp.Link = &st
	}
	return c.JSON(resp)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	s.mu.RLock()
	transitions := append([]protocol.TransitionData(nil), s.transitions...)
	s.mu.RUnlock()

	history := s.opts.Mission.History()
	if history == nil {
		history = []mission.Mode{}
	}
	if transitions == nil {
		transitions = []protocol.TransitionData{}
	}
	return c.JSON(HistoryResponse{History: history, Transitions: transitions})
}

func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	s.mu.RLock()
	events := append([]motion.TelemetryEvent{}, s.telemetry...)
	s.mu.RUnlock()
	return c.JSON(events)
}

// handleOpcode sends one raw opcode, for poking the controller by hand.
// Accepts decimal or 0x-prefixed codes.
func (s *Server) handleOpcode(c *fiber.Ctx) error {
	if s.opts.Link == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "motion link not configured",
		})
	}

	code, err := strconv.ParseUint(c.Params("code"), 0, 8)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "opcode must be 0-255",
		})
	}
	op := motion.Opcode(code)
	if byte(op) == motion.ByteExit || byte(op) == motion.ByteAck {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "opcode is reserved",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), opcodeTimeout)
	defer cancel()

	if err := s.opts.Link.Send(ctx, op); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, motion.ErrAckTimeout) {
			status = fiber.StatusGatewayTimeout
		}
		s.logger.Warn("manual opcode failed", "opcode", code, "error", err)
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	s.logger.Info("manual opcode", "opcode", code)
	return c.JSON(fiber.Map{"opcode": code, "sent": true})
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		if client == nil {
			conn.Close()
			return
		}
		client.Run()
	}
}
