// Package notify publishes mission events to an MQTT broker so a fleet
// monitor can follow a run.
//
// Topics:
//
//	<prefix>/<runID>/mode  transition events (protocol.TransitionData)
//	<prefix>/<runID>/gap   perception gaps (GapEvent)
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/teslashibe/go-mission/pkg/mission"
	"github.com/teslashibe/go-mission/pkg/protocol"
)

// QoS is used for every event.
const QoS byte = 1

const queueSize = 64

// ErrNotConnected is returned when publishing on a client that lost its broker.
var ErrNotConnected = errors.New("notify: not connected")

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// GapEvent is the payload of the gap topic.
type GapEvent struct {
	RunID string `json:"run_id"`
	Tick  uint64 `json:"tick"`
	Mode  string `json:"mode"`
	Field string `json:"field"`
}

// Config selects the broker and topic layout.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns settings for a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "mission",
		TopicPrefix:    "mission",
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Client adapts a paho client to Publisher.
type Client struct {
	client  mqtt.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Connect dials the broker. The client reconnects on its own afterwards.
func Connect(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("notify: connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: connect to %s: %w", cfg.Broker, err)
	}

	return &Client{client: c, timeout: cfg.PublishTimeout, logger: logger}, nil
}

// Publish sends payload and waits for the broker up to the publish timeout.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("notify: publish %s: timed out", topic)
	}
	return token.Error()
}

// Close disconnects, giving in-flight messages a moment to go out.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

type event struct {
	topic   string
	payload []byte
}

// Notifier turns mission events into MQTT messages. It implements
// mission.Observer; publishing happens on Run's goroutine so Step never
// waits on the network.
type Notifier struct {
	pub    Publisher
	prefix string
	runID  string
	logger *slog.Logger

	queue   chan event
	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ mission.Observer = (*Notifier)(nil)

// NewNotifier publishes through pub under <prefix>/<runID>.
func NewNotifier(pub Publisher, prefix, runID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		pub:    pub,
		prefix: prefix,
		runID:  runID,
		logger: logger.With("component", "notify", "run_id", runID),
		queue:  make(chan event, queueSize),
	}
}

// Topic returns the full topic for kind ("mode" or "gap").
func (n *Notifier) Topic(kind string) string {
	return n.prefix + "/" + n.runID + "/" + kind
}

// OnTransition queues a mode event.
func (n *Notifier) OnTransition(t mission.Transition) {
	data := protocol.TransitionData{
		RunID: n.runID,
		Tick:  t.Tick,
		From:  t.From.String(),
		To:    t.To.String(),
	}
	if t.To == mission.ModeWalk {
		data.SubMode = t.SubMode.String()
	}
	n.enqueue("mode", data)
}

// OnGap queues a gap event.
func (n *Notifier) OnGap(tick uint64, gap mission.PerceptionGap) {
	n.enqueue("gap", GapEvent{
		RunID: n.runID,
		Tick:  tick,
		Mode:  gap.Mode.String(),
		Field: gap.Field,
	})
}

func (n *Notifier) enqueue(kind string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		n.logger.Error("encode event", "kind", kind, "error", err)
		return
	}
	select {
	case n.queue <- event{topic: n.Topic(kind), payload: payload}:
	default:
		n.dropped.Add(1)
		n.logger.Warn("event queue full, dropping", "kind", kind)
	}
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// left in the queue.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-n.queue:
					n.publish(ev)
				default:
					return
				}
			}
		case ev := <-n.queue:
			n.publish(ev)
		}
	}
}

func (n *Notifier) publish(ev event) {
	if err := n.pub.Publish(ev.topic, QoS, false, ev.payload); err != nil {
		n.failed.Add(1)
		n.logger.Warn("publish failed", "topic", ev.topic, "error", err)
		return
	}
	n.sent.Add(1)
}

// Stats returns sent, dropped and failed event counts.
func (n *Notifier) Stats() (sent, dropped, failed uint64) {
	return n.sent.Load(), n.dropped.Load(), n.failed.Load()
}
