package mqtt_test

import (
	"context"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/diagnostic"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/dispatch"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/mqtt"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/mqtt/mqtttest"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var diagService *diagnostic.Service

func init() {
	diagService = diagnostic.NewService(diagnostic.NewConfig(), ioutil.Discard, ioutil.Discard)
	diagService.Open()
}

type engine struct {
	mu     sync.Mutex
	events []alert.Event
	wg     sync.WaitGroup
}

func (e *engine) Ingest(ctx context.Context, ev alert.Event) dispatch.Result {
	defer e.wg.Done()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return dispatch.Result{DeviceID: ev.DeviceID, State: dispatch.Done}
}

func (e *engine) Events() []alert.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]alert.Event(nil), e.events...)
}

func newService(t *testing.T, cc *mqtttest.ClientCreator) (*mqtt.Service, *engine, *clock.Mock) {
	t.Helper()
	orig := mqtt.NewClient
	mqtt.NewClient = cc.NewClient
	t.Cleanup(func() { mqtt.NewClient = orig })

	c := mqtt.NewConfig()
	c.Enabled = true
	s := mqtt.NewService(c, diagService.NewMQTTHandler())
	e := new(engine)
	s.Engine = e
	m := clock.NewMock()
	m.Set(time.Date(2024, 7, 1, 4, 0, 0, 0, time.UTC))
	s.Clock = m
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	return s, e, m
}

func TestService_DeliversReadings(t *testing.T) {
	cc := new(mqtttest.ClientCreator)
	_, e, m := newService(t, cc)
	require.Len(t, cc.Clients, 1)
	cli := cc.Clients[0]

	e.wg.Add(2)
	require.NoError(t, cli.Deliver(mqtt.DefaultTopic, "flood/sensor01/readings",
		[]byte(`{"deviceId":"sensor01","reading":{"distance":160,"timestamp":1719806400000}}`)))
	// device named by the topic
	require.NoError(t, cli.Deliver(mqtt.DefaultTopic, "flood/sensor02/readings",
		[]byte(`{"reading":{"distance":42}}`)))
	e.wg.Wait()

	got := map[string]alert.Event{}
	for _, ev := range e.Events() {
		got[ev.DeviceID] = ev
	}
	require.Len(t, got, 2)
	assert.Equal(t, 160.0, *got["sensor01"].Reading.Distance)
	assert.True(t, got["sensor01"].Reading.Timestamp.Equal(time.Unix(1719806400, 0)))
	assert.Equal(t, 42.0, *got["sensor02"].Reading.Distance)
	assert.True(t, got["sensor02"].Reading.Timestamp.Equal(m.Now()))
}

func TestService_DropsInvalidPayloads(t *testing.T) {
	cc := new(mqtttest.ClientCreator)
	s, e, _ := newService(t, cc)
	cli := cc.Clients[0]

	require.NoError(t, cli.Deliver(mqtt.DefaultTopic, "flood/sensor01/readings", []byte(`not json`)))
	require.NoError(t, cli.Deliver(mqtt.DefaultTopic, "flood/sensor01/readings", []byte(`{"reading":{"distance":"high"}}`)))
	require.NoError(t, s.Close())
	assert.Empty(t, e.Events())
}

func TestService_RetriesInitialConnect(t *testing.T) {
	cc := &mqtttest.ClientCreator{ConnectFailures: 1}
	newService(t, cc)
	require.Len(t, cc.Clients, 1)
	assert.Equal(t, 2, cc.Clients[0].Connects)
	assert.True(t, cc.Clients[0].Connected())
}

func TestService_CloseDisconnects(t *testing.T) {
	cc := new(mqtttest.ClientCreator)
	s, e, _ := newService(t, cc)
	cli := cc.Clients[0]
	require.NoError(t, s.Close())
	assert.False(t, cli.Connected())
	assert.Error(t, cli.Deliver(mqtt.DefaultTopic, "flood/sensor01/readings", []byte(`{}`)))
	assert.Empty(t, e.Events())
}

func TestService_Disabled(t *testing.T) {
	s := mqtt.NewService(mqtt.NewConfig(), diagService.NewMQTTHandler())
	assert.NoError(t, s.Open())
	assert.NoError(t, s.Close())
}

func TestDeviceFromTopic(t *testing.T) {
	testCases := []struct {
		filter, topic, exp string
	}{
		{filter: "flood/+/readings", topic: "flood/sensor01/readings", exp: "sensor01"},
		{filter: "flood/+/readings", topic: "flood/sensor01/status", exp: ""},
		{filter: "flood/+/readings", topic: "flood/readings", exp: ""},
		{filter: "sensors/+", topic: "sensors/s9", exp: "s9"},
		{filter: "flood/readings", topic: "flood/readings", exp: ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.exp, mqtt.DeviceFromTopic(tc.filter, tc.topic), "%s %s", tc.filter, tc.topic)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := mqtt.NewConfig()
	assert.NoError(t, c.Validate())
	c.Enabled = true
	assert.NoError(t, c.Validate())
	assert.Equal(t, "tcp://localhost:1883", c.Broker())

	bad := c
	bad.Topic = "flood/+/+"
	assert.Error(t, bad.Validate())
	bad = c
	bad.QoS = 3
	assert.Error(t, bad.Validate())
	bad = c
	bad.Host = ""
	assert.Error(t, bad.Validate())
}
