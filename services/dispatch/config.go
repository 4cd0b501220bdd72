package dispatch

import (
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const (
	DefaultMaxExecutionDuration = 60 * time.Second
	DefaultMaxConcurrentSends   = 16
)

// Config is the [dispatch] section of the configuration file.
type Config struct {
	// Minimum time between two automatic alerts for the same device.
	Cooldown   toml.Duration `toml:"cooldown"`
	DailyQuota int           `toml:"daily-quota"`
	// IANA zone defining the calendar day of the quota and the message time.
	Timezone string `toml:"timezone"`
	// Readings older than this are not acted upon.
	RecencyThreshold toml.Duration `toml:"recency-threshold"`
	// Upper bound on handling a single reading.
	MaxExecutionDuration toml.Duration `toml:"max-execution-duration"`
	MaxConcurrentSends   int           `toml:"max-concurrent-sends"`
	// text/template for the SMS body, empty means the built in template.
	MessageTemplate string `toml:"message-template"`
}

func NewConfig() Config {
	return Config{
		Cooldown:             toml.Duration(ratelimit.DefaultCooldown),
		DailyQuota:           ratelimit.DefaultDailyQuota,
		Timezone:             ratelimit.DefaultTimezone,
		RecencyThreshold:     toml.Duration(alert.DefaultRecencyThreshold),
		MaxExecutionDuration: toml.Duration(DefaultMaxExecutionDuration),
		MaxConcurrentSends:   DefaultMaxConcurrentSends,
	}
}

func (c Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.RecencyThreshold <= 0 {
		return errors.New("recency-threshold must be positive")
	}
	if c.MaxExecutionDuration <= 0 {
		return errors.New("max-execution-duration must be positive")
	}
	if c.MaxConcurrentSends < 1 {
		return errors.New("max-concurrent-sends must be at least 1")
	}
	if _, err := c.Composer(); err != nil {
		return errors.Wrap(err, "invalid message-template")
	}
	return nil
}

// Policy builds the rate limit policy described by c.
func (c Config) Policy() (ratelimit.Policy, error) {
	return ratelimit.NewPolicy(time.Duration(c.Cooldown), c.DailyQuota, c.Timezone)
}

// Composer builds the message composer described by c.
func (c Config) Composer() (*alert.Composer, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, err
	}
	return alert.NewComposer(c.MessageTemplate, loc)
}
