// Package mqtt subscribes to sensor readings on an MQTT broker and feeds them
// to the dispatch engine.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/dispatch"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

type Diagnostic interface {
	WithContext(ctx ...keyvalue.T) Diagnostic

	Connected(broker string)
	ConnectionLost(err error)
	Subscribed(topic string, qos byte)
	Error(msg string, err error)
}

// Engine handles decoded readings.
type Engine interface {
	Ingest(ctx context.Context, ev alert.Event) dispatch.Result
}

type Service struct {
	Engine Engine
	Clock  clock.Clock

	mu      sync.Mutex
	config  Config
	client  Client
	closing bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	diag Diagnostic
}

func NewService(c Config, d Diagnostic) *Service {
	return &Service{
		Clock:  clock.New(),
		config: c,
		diag:   d,
	}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.Enabled {
		return nil
	}
	if s.Engine == nil {
		return errors.New("mqtt service has no engine")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.closing = false

	client := NewClient(s.config, s.diag)
	// The broker may still be starting, retry for a while before giving up.
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Duration(s.config.ConnectTimeout)
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = DefaultConnectTimeout
	}
	err := backoff.Retry(func() error {
		err := client.Connect()
		if err != nil {
			s.diag.Error("failed to connect to broker, will retry", err)
		}
		return err
	}, b)
	if err != nil {
		s.cancel()
		return errors.Wrapf(err, "connect to MQTT broker at %s", s.config.Broker())
	}
	if err := client.Subscribe(s.config.Topic, s.config.QoS, s.handle); err != nil {
		client.Disconnect()
		s.cancel()
		return err
	}
	s.diag.Subscribed(s.config.Topic, s.config.QoS)
	s.client = client
	return nil
}

// Close disconnects from the broker and waits for in flight readings.
func (s *Service) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.closing = true
	cancel := s.cancel
	s.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// handle processes each message on its own goroutine.
func (s *Service) handle(topic string, payload []byte) {
	s.mu.Lock()
	if s.closing || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ev, err := s.decode(topic, payload)
		if err != nil {
			s.diag.WithContext(keyvalue.KV("topic", topic)).Error("dropping invalid reading", err)
			return
		}
		s.Engine.Ingest(ctx, ev)
	}()
}

func (s *Service) decode(topic string, payload []byte) (alert.Event, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(payload, &raw); err != nil {
		return alert.Event{}, errors.Wrap(err, "invalid event json")
	}
	if id, ok := raw["deviceId"].(string); !ok || id == "" {
		if id := DeviceFromTopic(s.config.Topic, topic); id != "" {
			raw["deviceId"] = id
		}
	}
	return alert.DecodeEvent(raw, s.Clock.Now())
}

// DeviceFromTopic returns the topic level matched by the single level wildcard
// of filter, or "" if the filter has none or the topic does not line up.
func DeviceFromTopic(filter, topic string) string {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	if len(fs) != len(ts) {
		return ""
	}
	id := ""
	for i, f := range fs {
		switch f {
		case "+":
			id = ts[i]
		case ts[i]:
		default:
			return ""
		}
	}
	return id
}
