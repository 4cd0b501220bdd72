package mqtttest

import (
	"errors"
	"sync"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/mqtt"
)

// ClientCreator provides a NewClient method for creating new MockClients.
// All configs and clients created are recorded.
type ClientCreator struct {
	// ConnectFailures is the number of Connect calls that fail before one succeeds.
	ConnectFailures int

	mu      sync.Mutex
	Clients []*MockClient
	Configs []mqtt.Config
}

func (s *ClientCreator) NewClient(c mqtt.Config, _ mqtt.Diagnostic) mqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	cli := &MockClient{failures: s.ConnectFailures, subs: make(map[string]mqtt.MessageHandler)}
	s.Clients = append(s.Clients, cli)
	s.Configs = append(s.Configs, c)
	return cli
}

type MockClient struct {
	mu        sync.Mutex
	connected bool
	failures  int
	Connects  int
	subs      map[string]mqtt.MessageHandler
}

func (m *MockClient) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connects++
	if m.failures > 0 {
		m.failures--
		return errors.New("connection refused")
	}
	m.connected = true
	return nil
}

func (m *MockClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockClient) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) Subscribe(topic string, qos byte, h mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errors.New("Subscribe() called before Connect()")
	}
	m.subs[topic] = h
	return nil
}

// Deliver hands a message to the handler subscribed on filter.
func (m *MockClient) Deliver(filter, topic string, payload []byte) error {
	m.mu.Lock()
	h, ok := m.subs[filter]
	connected := m.connected
	m.mu.Unlock()
	if !ok || !connected {
		return errors.New("no subscription for " + filter)
	}
	h(topic, payload)
	return nil
}
