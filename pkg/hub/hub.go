package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

// Hub keeps the set of connected clients and copies every broadcast to each
// of them. A client whose queue is full is dropped rather than blocking the
// others.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Greeting, when set, is queued to every client as it joins.
	greetMu  sync.Mutex
	greeting func() (Message, bool)

	count   atomic.Int64
	dropped atomic.Uint64
	running atomic.Bool
}

// New creates a hub. Call Run before clients connect.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Greet sets the message a client receives first, usually the current state.
// fn returns false when there is nothing to send yet.
func (h *Hub) Greet(fn func() (Message, bool)) {
	h.greetMu.Lock()
	h.greeting = fn
	h.greetMu.Unlock()
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client queue. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.greet(c)
			h.logger.Info("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
					h.dropped.Add(1)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) greet(c *Client) {
	h.greetMu.Lock()
	fn := h.greeting
	h.greetMu.Unlock()
	if fn == nil {
		return
	}
	if msg, ok := fn(); ok {
		c.send <- msg
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// Broadcast queues msg for every client. It never blocks: when the hub is
// backed up the message is dropped and false is returned.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Debug("broadcast queue full, dropping message")
		return false
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := JSON(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Dropped returns how many slow clients have been disconnected.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Running reports whether Run is active.
func (h *Hub) Running() bool {
	return h.running.Load()
}
