package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// MessageHandler receives the topic and payload of each delivered message.
type MessageHandler func(topic string, payload []byte)

// Client describes an MQTT client, designed to accommodate the
// incongruencies between real clients and mock clients.
type Client interface {
	Connect() error
	Disconnect()
	Subscribe(topic string, qos byte, h MessageHandler) error
}

// NewClient produces a disconnected MQTT client
var NewClient = func(c Config, d Diagnostic) Client {
	return &PahoClient{
		broker:   c.Broker(),
		username: c.Username,
		password: c.Password,
		clientID: c.ClientID,
		diag:     d,
		subs:     make(map[string]subscription),
	}
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

type PahoClient struct {
	broker string

	username string
	password string

	clientID string

	diag Diagnostic

	mu     sync.Mutex
	subs   map[string]subscription
	client pahomqtt.Client
}

var _ Client = &PahoClient{}

// DefaultQuiesceTimeout is the duration the client will wait for in flight
// work to complete before forcing a disconnection
const DefaultQuiesceTimeout time.Duration = 250 * time.Millisecond

func (p *PahoClient) Connect() error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(p.clientID)
	opts.SetUsername(p.username)
	opts.SetPassword(p.password)
	opts.SetAutoReconnect(true)
	// Subscriptions do not survive a clean session, they are restored on every connect.
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.diag.Connected(p.broker)
		p.mu.Lock()
		defer p.mu.Unlock()
		for topic, sub := range p.subs {
			if err := wait(c.Subscribe(topic, sub.qos, sub.callback())); err != nil {
				p.diag.Error("failed to resubscribe", errors.Wrap(err, topic))
			}
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.diag.ConnectionLost(err)
	})

	client := pahomqtt.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return errors.Wrapf(err, "connect to %s", p.broker)
	}
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

func (p *PahoClient) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(uint(DefaultQuiesceTimeout / time.Millisecond))
		p.client = nil
	}
}

func (p *PahoClient) Subscribe(topic string, qos byte, h MessageHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return errors.New("Subscribe() called before Connect()")
	}
	sub := subscription{qos: qos, handler: h}
	if err := wait(p.client.Subscribe(topic, qos, sub.callback())); err != nil {
		return errors.Wrapf(err, "subscribe to %s", topic)
	}
	p.subs[topic] = sub
	return nil
}

func (s subscription) callback() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, m pahomqtt.Message) {
		s.handler(m.Topic(), m.Payload())
	}
}

// wait blocks on a token, tokens are futures
func wait(t pahomqtt.Token) error {
	t.Wait()
	return t.Error()
}
