package httpd

import (
	"net"
	"time"

	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const (
	DefaultBindAddress     = ":9094"
	DefaultShutdownTimeout = toml.Duration(time.Second * 10)
)

type Config struct {
	BindAddress     string        `toml:"bind-address" override:"bind-address"`
	AuthEnabled     bool          `toml:"auth-enabled" override:"auth-enabled"`
	SharedSecret    string        `toml:"shared-secret" override:"shared-secret,redact"`
	LogEnabled      bool          `toml:"log-enabled" override:"log-enabled"`
	ShutdownTimeout toml.Duration `toml:"shutdown-timeout" override:"shutdown-timeout"`
}

func NewConfig() Config {
	return Config{
		BindAddress:     DefaultBindAddress,
		LogEnabled:      true,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.BindAddress); err != nil {
		return errors.Wrapf(err, "invalid http bind-address %q", c.BindAddress)
	}
	if c.AuthEnabled && c.SharedSecret == "" {
		return errors.New("http shared-secret is required when auth-enabled is set")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("http shutdown-timeout must not be negative")
	}
	return nil
}
