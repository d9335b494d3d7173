// Package server exposes a perception.Service over the WebSocket wire protocol.
// The vision process (or a replay of a recorded run) sits behind it and the
// mission connects with the remote client.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-mission/pkg/perception"
	"github.com/teslashibe/go-mission/pkg/protocol"
)

// Error codes sent in error replies.
const (
	CodeBadRequest   = "bad_request"
	CodeNoSnapshot   = "no_snapshot"
	CodeUnknownQuery = "unknown_query"
	CodeInternal     = "internal"
)

// Connection is one connected mission client.
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the client
func (c *Connection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Server answers pull and query messages from a perception.Service.
type Server struct {
	svc            perception.Service
	logger         *slog.Logger
	requestTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]*Connection

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	pulls            atomic.Uint64
	queries          atomic.Uint64
	errors           atomic.Uint64
}

// New creates a server backed by svc.
func New(svc perception.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:            svc,
		logger:         logger.With("component", "perception.server"),
		requestTimeout: 2 * time.Second,
		clients:        make(map[string]*Connection),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (s *Server) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/perception", websocket.New(s.handleClient))
}

// RegisterAPIRoutes registers API routes for inspection
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/perception/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})
}

func (s *Server) handleClient(c *websocket.Conn) {
	conn := &Connection{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	s.mu.Lock()
	s.clients[conn.ID] = conn
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("client connected", "id", conn.ID, "total", count)

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn.ID)
		count := len(s.clients)
		s.mu.Unlock()
		s.logger.Info("client disconnected", "id", conn.ID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("read error", "id", conn.ID, "error", err)
			return
		}

		conn.mu.Lock()
		conn.LastSeen = time.Now()
		conn.mu.Unlock()

		s.messagesReceived.Add(1)
		if reply := s.handleMessage(data); reply != nil {
			s.messagesSent.Add(1)
			if err := conn.Send(reply); err != nil {
				s.logger.Warn("send failed", "id", conn.ID, "error", err)
				return
			}
		}
	}
}

// handleMessage turns one request into its reply. Pongs get no reply.
func (s *Server) handleMessage(data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return s.errorReply("", CodeBadRequest, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	switch msg.Type {
	case protocol.TypePull:
		s.pulls.Add(1)
		req, err := msg.GetRequest()
		if err != nil {
			return s.errorReply(msg.ID, CodeBadRequest, err)
		}
		snap, err := s.svc.Pull(ctx, *req)
		if err != nil {
			code := CodeInternal
			if errors.Is(err, perception.ErrNoSnapshot) {
				code = CodeNoSnapshot
			}
			return s.errorReply(msg.ID, code, err)
		}
		reply, err := protocol.NewSnapshotMessage(msg.ID, snap)
		if err != nil {
			return s.errorReply(msg.ID, CodeInternal, err)
		}
		return reply

	case protocol.TypeQuery:
		s.queries.Add(1)
		q, err := msg.GetQuery()
		if err != nil {
			return s.errorReply(msg.ID, CodeBadRequest, err)
		}
		res, code, err := s.answer(ctx, q)
		if err != nil {
			return s.errorReply(msg.ID, code, err)
		}
		reply, err := protocol.NewQueryResultMessage(msg.ID, res)
		if err != nil {
			return s.errorReply(msg.ID, CodeInternal, err)
		}
		return reply

	case protocol.TypePing:
		reply, _ := protocol.NewPongMessage(msg.ID, msg.Timestamp, time.Now().UnixMilli())
		return reply

	case protocol.TypePong:
		return nil

	default:
		return s.errorReply(msg.ID, CodeBadRequest, errors.New("unexpected message type "+string(msg.Type)))
	}
}

func (s *Server) answer(ctx context.Context, q *protocol.QueryData) (protocol.QueryResultData, string, error) {
	res := protocol.QueryResultData{Name: q.Name}
	var edge perception.EdgeInfo
	if q.Edge != nil {
		edge = *q.Edge
	}

	var err error
	switch q.Name {
	case protocol.QueryArrowDirection:
		res.Direction, err = s.svc.ArrowDirection(ctx)
		res.Found = res.Direction != nil
	case protocol.QueryDoorAlphabet:
		res.Letter, err = s.svc.DoorAlphabet(ctx)
		res.Found = res.Letter != nil
	case protocol.QueryRoomAlphabet:
		res.RoomAlphabet, err = s.svc.RoomAlphabetInfo(ctx, edge)
		res.Found = res.RoomAlphabet != nil
	case protocol.QueryBoxPosition:
		res.Point, err = s.svc.BoxPosition(ctx, q.Color, edge)
		res.Found = res.Point != nil
	case protocol.QueryCubePosition:
		res.Point, err = s.svc.CubePosition(ctx)
		res.Found = res.Point != nil
	case protocol.QuerySaferoomPosition:
		res.Point, err = s.svc.SaferoomPosition(ctx)
		res.Found = res.Point != nil
	default:
		return res, CodeUnknownQuery, errors.New("unknown query " + string(q.Name))
	}
	if err != nil {
		return res, CodeInternal, err
	}
	return res, "", nil
}

func (s *Server) errorReply(id, code string, err error) *protocol.Message {
	s.errors.Add(1)
	s.logger.Warn("request failed", "id", id, "code", code, "error", err)
	msg, _ := protocol.NewErrorMessage(id, code, err.Error())
	return msg
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stats contains server statistics
type Stats struct {
	ClientCount      int    `json:"client_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Pulls            uint64 `json:"pulls"`
	Queries          uint64 `json:"queries"`
	Errors           uint64 `json:"errors"`
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		ClientCount:      s.ClientCount(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		Pulls:            s.pulls.Load(),
		Queries:          s.queries.Load(),
		Errors:           s.errors.Load(),
	}
}
