package mqtt

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const (
	DefaultPort           = 1883
	DefaultClientID       = "floodd"
	DefaultTopic          = "flood/+/readings"
	DefaultQoS            = 1
	DefaultConnectTimeout = 2 * time.Minute
)

type Config struct {
	// Enabled indicates whether the service should be enabled
	Enabled bool `toml:"enabled" override:"enabled"`
	// Host of the MQTT Broker
	Host string `toml:"host" override:"host"`
	// Port of the MQTT Broker
	Port uint16 `toml:"port" override:"port"`

	ClientID string `toml:"client-id" override:"client-id"`
	Username string `toml:"username" override:"username"`
	Password string `toml:"password" override:"password,redact"`

	// Topic is the filter readings are subscribed on.
	// A single level wildcard in the filter names the device when the payload does not.
	Topic string `toml:"topic" override:"topic"`
	QoS   byte   `toml:"qos" override:"qos"`

	// ConnectTimeout bounds the retries of the initial connection.
	ConnectTimeout toml.Duration `toml:"connect-timeout" override:"connect-timeout"`
}

func NewConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           DefaultPort,
		ClientID:       DefaultClientID,
		Topic:          DefaultTopic,
		QoS:            DefaultQoS,
		ConnectTimeout: toml.Duration(DefaultConnectTimeout),
	}
}

// Broker formats the configured Host and Port as tcp://host:port, suitable for
// consumption by the Paho MQTT Client
func (c Config) Broker() string {
	portStr := strconv.FormatUint(uint64(c.Port), 10)
	u := &url.URL{
		Scheme: "tcp",
		Host:   net.JoinHostPort(c.Host, portStr),
	}
	return u.String()
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Host == "" || c.Port == 0 {
		return errors.New("must specify host and port for mqtt service")
	}
	if c.Topic == "" {
		return errors.New("must specify MQTT topic")
	}
	if strings.Count(c.Topic, "+") > 1 {
		return errors.Errorf("topic %q may contain at most one single level wildcard", c.Topic)
	}
	if c.QoS > 2 {
		return errors.Errorf("invalid qos %d, must be 0, 1 or 2", c.QoS)
	}
	if c.ConnectTimeout < 0 {
		return errors.New("connect-timeout must not be negative")
	}
	return nil
}
