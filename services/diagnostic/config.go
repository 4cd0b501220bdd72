package diagnostic

import (
	"fmt"
	"strings"
)

type Config struct {
	// STDERR, STDOUT or a file path.
	File  string `toml:"file"`
	Level string `toml:"level"`
	// console or json.
	Encoding string `toml:"encoding"`
}

func NewConfig() Config {
	return Config{
		File:     "STDERR",
		Level:    "INFO",
		Encoding: "console",
	}
}

func (c Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("logging file must not be empty, use STDERR or STDOUT for the console")
	}
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Encoding) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log encoding %q", c.Encoding)
	}
	return nil
}
