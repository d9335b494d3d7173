// Package remote implements perception.Service over a WebSocket connection to
// the vision process.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-mission/pkg/perception"
	"github.com/teslashibe/go-mission/pkg/protocol"
)

// Config configures the client.
type Config struct {
	URL            string        // ws://host:port/ws/perception
	DialTimeout    time.Duration // handshake timeout
	RequestTimeout time.Duration // per pull/query
	PingInterval   time.Duration // 0 disables keepalive pings
}

// DefaultConfig returns a config for url with sensible timeouts.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 2 * time.Second,
		PingInterval:   10 * time.Second,
	}
}

// Client is a perception.Service backed by a WebSocket connection.
// Requests may be issued concurrently; replies are matched by message ID.
type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Message
	readErr error
	closed  bool

	done chan struct{}
}

var _ perception.Service = (*Client)(nil)

// Dial connects to the vision process.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote: URL required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig(cfg.URL).RequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to connect to %s: %w", cfg.URL, err)
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger.With("component", "perception.remote"),
		conn:    conn,
		pending: make(map[string]chan *protocol.Message),
		done:    make(chan struct{}),
	}

	go c.readLoop()
	if cfg.PingInterval > 0 {
		go c.pingLoop()
	}

	c.logger.Info("connected", "url", cfg.URL)
	return c, nil
}

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.readErr = err
			}
			c.mu.Unlock()
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypePing:
			pong, err := protocol.NewPongMessage(msg.ID, msg.Timestamp, time.Now().UnixMilli())
			if err == nil {
				c.write(pong)
			}
			continue
		case protocol.TypePong:
			if p, err := msg.GetPongData(); err == nil {
				c.logger.Debug("pong", "latency_ms", p.LatencyMs)
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("reply for unknown request", "id", msg.ID, "type", msg.Type)
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			msg, err := protocol.NewPingMessage(uuid.NewString())
			if err != nil {
				continue
			}
			if err := c.write(msg); err != nil {
				c.logger.Warn("ping failed", "error", err)
			}
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Client) write(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// roundTrip sends msg and waits for the reply carrying the same ID.
func (c *Client) roundTrip(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	id := uuid.NewString()
	msg.WithID(id)
	reply := make(chan *protocol.Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, perception.ErrClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return nil, fmt.Errorf("remote: send %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	select {
	case r := <-reply:
		if r.Type == protocol.TypeError {
			data, err := r.GetErrorData()
			if err != nil {
				return nil, fmt.Errorf("remote: malformed error reply: %w", err)
			}
			return nil, &RemoteError{Request: msg.Type, Code: data.Code, Message: data.Message}
		}
		return r, nil
	case <-c.done:
		return nil, c.connErr()
	case <-ctx.Done():
		return nil, fmt.Errorf("remote: %s: %w", msg.Type, ctx.Err())
	}
}

func (c *Client) connErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, c.readErr)
	}
	return perception.ErrClosed
}

// Pull implements perception.Service.
func (c *Client) Pull(ctx context.Context, req perception.Request) (perception.Snapshot, error) {
	msg, err := protocol.NewPullMessage("", req)
	if err != nil {
		return perception.Snapshot{}, err
	}
	reply, err := c.roundTrip(ctx, msg)
	if err != nil {
		return perception.Snapshot{}, err
	}
	snap, err := reply.GetSnapshot()
	if err != nil {
		return perception.Snapshot{}, fmt.Errorf("remote: pull: %w", err)
	}
	return *snap, nil
}

func (c *Client) query(ctx context.Context, q protocol.QueryData) (*protocol.QueryResultData, error) {
	msg, err := protocol.NewQueryMessage("", q)
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTrip(ctx, msg)
	if err != nil {
		return nil, err
	}
	res, err := reply.GetQueryResult()
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", q.Name, err)
	}
	if !res.Found {
		return nil, nil
	}
	return res, nil
}

// ArrowDirection implements perception.Service.
func (c *Client) ArrowDirection(ctx context.Context) (*perception.Direction, error) {
	res, err := c.query(ctx, protocol.QueryData{Name: protocol.QueryArrowDirection})
	if err != nil || res == nil {
		return nil, err
	}
	return res.Direction, nil
}

// DoorAlphabet implements perception.Service.
func (c *Client) DoorAlphabet(ctx context.Context) (*perception.Letter, error) {
	res, err := c.query(ctx, protocol.QueryData{Name: protocol.QueryDoorAlphabet})
	if err != nil || res == nil {
		return nil, err
	}
	return res.Letter, nil
}

// RoomAlphabetInfo implements perception.Service.
func (c *Client) RoomAlphabetInfo(ctx context.Context, edge perception.EdgeInfo) (*perception.RoomAlphabet, error) {
	res, err := c.query(ctx, protocol.QueryData{Name: protocol.QueryRoomAlphabet, Edge: &edge})
	if err != nil || res == nil {
		return nil, err
	}
	return res.RoomAlphabet, nil
}

// BoxPosition implements perception.Service.
func (c *Client) BoxPosition(ctx context.Context, color perception.Color, edge perception.EdgeInfo) (*perception.Point, error) {
	res, err := c.query(ctx, protocol.QueryData{Name: protocol.QueryBoxPosition, Color: color, Edge: &edge})
	if err != nil || res == nil {
		return nil, err
	}
	return res.Point, nil
}

// CubePosition implements perception.Service.
func (c *Client) CubePosition(ctx context.Context) (*perception.Point, error) {
	res, err := c.query(ctx, protocol.QueryData{Name: protocol.QueryCubePosition})
	if err != nil || res == nil {
		return nil, err
	}
	return res.Point, nil
}

// SaferoomPosition implements perception.Service.
func (c *Client) SaferoomPosition(ctx context.Context) (*perception.Point, error) {
	res, err := c.query(ctx, protocol.QueryData{Name: protocol.QuerySaferoomPosition})
	if err != nil || res == nil {
		return nil, err
	}
	return res.Point, nil
}

// Close closes the connection. Pending requests fail with perception.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.shutdown()
	return err
}
