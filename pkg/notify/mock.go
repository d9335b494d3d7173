package notify

import "sync"

// Published is one message seen by MockPublisher.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// MockPublisher records messages instead of sending them.
type MockPublisher struct {
	PublishFunc func(topic string, payload []byte) error

	mu       sync.Mutex
	messages []Published
}

// Publish records the message, then calls PublishFunc when set.
func (m *MockPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(topic, payload); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Published{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

// Messages returns a copy of what was published.
func (m *MockPublisher) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.messages...)
}
