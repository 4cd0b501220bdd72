// Package load seeds the device registry and the recipient roster from YAML or
// JSON files in a directory.
//
// The directory may contain devices.yaml and recipients.yaml (.yml and .json are
// also accepted). Each file holds a list of objects in the same shape as the HTTP API:
//
//	- id: sensor01
//	  status: active
//	  location: Marikina Bridge
//	  alertLevel: 150
//
// Loading only creates and updates. Entries removed from a file are left in place.
package load

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/devices"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/recipients"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

var extensions = []string{".yaml", ".yml", ".json"}

type Diagnostic interface {
	Loading(kind, file string)
	Loaded(kind string, created, updated int)
	Error(msg string, err error, ctx ...keyvalue.T)
}

type Service struct {
	mu     sync.Mutex
	config Config

	Devices interface {
		Upsert(d devices.Device) (bool, error)
	}
	Recipients interface {
		Get(id string) (recipients.Recipient, error)
		Put(r recipients.Recipient) error
	}

	diag Diagnostic
}

func NewService(c Config, d Diagnostic) *Service {
	return &Service{
		config: c,
		diag:   d,
	}
}

func (s *Service) Open() error {
	if !s.config.Enabled {
		return nil
	}
	if s.Devices == nil || s.Recipients == nil {
		return errors.New("load service is missing a dependency")
	}
	return s.Load()
}

func (s *Service) Close() error {
	return nil
}

// Load reads the roster files and upserts their contents.
// Every entry is validated before anything is stored.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.Enabled {
		return nil
	}

	var ds []devices.Device
	if err := s.read(devicesFile, &ds); err != nil {
		return err
	}
	var rs []recipients.Recipient
	if err := s.read(recipientsFile, &rs); err != nil {
		return err
	}
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return errors.Wrap(err, "invalid device in roster")
		}
	}
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return errors.Wrap(err, "invalid recipient in roster")
		}
	}

	if ds != nil {
		created, updated := 0, 0
		for _, d := range ds {
			c, err := s.Devices.Upsert(d)
			if err != nil {
				return errors.Wrapf(err, "failed to load device %q", d.ID)
			}
			if c {
				created++
			} else {
				updated++
			}
		}
		s.diag.Loaded(devicesFile, created, updated)
	}

	if rs != nil {
		created, updated := 0, 0
		for _, r := range rs {
			_, err := s.Recipients.Get(r.ID)
			switch {
			case errors.Is(err, recipients.ErrNoRecipientExists):
				created++
			case err != nil:
				return errors.Wrapf(err, "failed to load recipient %q", r.ID)
			default:
				updated++
			}
			if err := s.Recipients.Put(r); err != nil {
				return errors.Wrapf(err, "failed to load recipient %q", r.ID)
			}
		}
		s.diag.Loaded(recipientsFile, created, updated)
	}
	return nil
}

// read decodes the first file named kind with a known extension into v.
// A missing file leaves v untouched.
func (s *Service) read(kind string, v interface{}) error {
	for _, ext := range extensions {
		f := filepath.Join(s.config.Dir, kind+ext)
		data, err := ioutil.ReadFile(f)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return errors.Wrapf(err, "failed to read %s file %q", kind, f)
		}
		s.diag.Loading(kind, f)
		// YAML is a superset of JSON, one decoder serves all extensions.
		if err := yaml.Unmarshal(data, v); err != nil {
			s.diag.Error("failed to decode roster file", err, keyvalue.KV("file", f))
			return errors.Wrapf(err, "failed to unmarshal %s file %q", kind, f)
		}
		return nil
	}
	return nil
}
