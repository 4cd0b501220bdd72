package storage

import (
	"time"

	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const DefaultOpenTimeout = 5 * time.Second

type Config struct {
	// Path to a boltdb database file.
	BoltDBPath string `toml:"boltdb"`
	// How long to wait for the file lock held by another process.
	OpenTimeout toml.Duration `toml:"open-timeout"`
}

func NewConfig() Config {
	return Config{
		BoltDBPath:  "./floodd.db",
		OpenTimeout: toml.Duration(DefaultOpenTimeout),
	}
}

func (c Config) Validate() error {
	if c.BoltDBPath == "" {
		return errors.New("must specify storage 'boltdb' path")
	}
	if c.OpenTimeout < 0 {
		return errors.New("storage 'open-timeout' cannot be negative")
	}
	return nil
}
