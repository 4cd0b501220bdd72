package sms

import (
	"net/url"
	"time"

	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const (
	// DefaultURL is the Semaphore messages endpoint.
	DefaultURL = "https://api.semaphore.co/api/v4/messages"

	DefaultTimeout = 10 * time.Second
)

// Config is the [sms] section of the configuration file.
type Config struct {
	Enabled bool `toml:"enabled" override:"enabled"`
	// Gateway endpoint receiving the form encoded POST.
	URL    string `toml:"url" override:"url"`
	APIKey string `toml:"api-key" override:"api-key,redact"`
	// Registered sender name shown on handsets.
	SenderName string        `toml:"sender-name" override:"sender-name"`
	Timeout    toml.Duration `toml:"timeout" override:"timeout"`
}

func NewConfig() Config {
	return Config{
		URL:     DefaultURL,
		Timeout: toml.Duration(DefaultTimeout),
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.APIKey == "" {
		return errors.New("must specify api-key")
	}
	if c.URL == "" {
		return errors.New("must specify url")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return errors.Wrapf(err, "invalid URL %q", c.URL)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}
