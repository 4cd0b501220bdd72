package load

import (
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	devicesFile    = "devices"
	recipientsFile = "recipients"
)

type Config struct {
	Enabled bool   `toml:"enabled" override:"enabled"`
	Dir     string `toml:"dir" override:"dir"`
}

func NewConfig() Config {
	return Config{
		Enabled: false,
		Dir:     "./load",
	}
}

// Validate verifies that the directory specified is an absolute path.
// The directory may hold a devices file, a recipients file, both or neither.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	// Verify that the path is absolute
	if !filepath.IsAbs(c.Dir) {
		return errors.New("dir must be an absolute path")
	}

	return nil
}
