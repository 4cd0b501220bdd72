package server

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/diagnostic"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/dispatch"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/httpd"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/load"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/mqtt"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/sms"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes the environment variables that override config values,
// e.g. FLOODD_SMS_API_KEY.
const EnvPrefix = "FLOODD"

// Config represents the configuration format for the floodd binary.
type Config struct {
	HTTP     httpd.Config      `toml:"http"`
	Storage  storage.Config    `toml:"storage"`
	Logging  diagnostic.Config `toml:"logging"`
	Dispatch dispatch.Config   `toml:"dispatch"`
	SMS      sms.Config        `toml:"sms"`
	MQTT     mqtt.Config       `toml:"mqtt"`
	Load     load.Config       `toml:"load"`
}

// NewConfig returns an instance of Config with reasonable defaults.
func NewConfig() *Config {
	return &Config{
		HTTP:     httpd.NewConfig(),
		Storage:  storage.NewConfig(),
		Logging:  diagnostic.NewConfig(),
		Dispatch: dispatch.NewConfig(),
		SMS:      sms.NewConfig(),
		MQTT:     mqtt.NewConfig(),
		Load:     load.NewConfig(),
	}
}

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return errors.Wrap(err, "http")
	}
	if err := c.Storage.Validate(); err != nil {
		return errors.Wrap(err, "storage")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "logging")
	}
	if err := c.Dispatch.Validate(); err != nil {
		return errors.Wrap(err, "dispatch")
	}
	if err := c.SMS.Validate(); err != nil {
		return errors.Wrap(err, "sms")
	}
	if err := c.MQTT.Validate(); err != nil {
		return errors.Wrap(err, "mqtt")
	}
	if err := c.Load.Validate(); err != nil {
		return errors.Wrap(err, "load")
	}
	return nil
}

func (c *Config) ApplyEnvOverrides() error {
	return c.applyEnvOverrides(EnvPrefix, "", reflect.ValueOf(c))
}

func (c *Config) applyEnvOverrides(prefix string, fieldDesc string, spec reflect.Value) error {
	// If we have a pointer, dereference it
	s := spec
	if spec.Kind() == reflect.Ptr {
		s = spec.Elem()
	}

	var value string

	if s.Kind() != reflect.Struct {
		value = os.Getenv(prefix)
		// Skip any fields we don't have a value to set
		if value == "" {
			return nil
		}

		if fieldDesc != "" {
			fieldDesc = " to " + fieldDesc
		}
	}

	switch s.Kind() {
	case reflect.String:
		s.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:

		var intValue int64

		// Handle toml.Duration
		if s.Type().Name() == "Duration" {
			dur, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("failed to apply %v%v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)
			}
			intValue = dur.Nanoseconds()
		} else {
			var err error
			intValue, err = strconv.ParseInt(value, 0, s.Type().Bits())
			if err != nil {
				return fmt.Errorf("failed to apply %v%v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)
			}
		}

		s.SetInt(intValue)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintValue, err := strconv.ParseUint(value, 0, s.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to apply %v%v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)
		}
		s.SetUint(uintValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("failed to apply %v%v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)

		}
		s.SetBool(boolValue)
	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, s.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to apply %v%v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)

		}
		s.SetFloat(floatValue)
	case reflect.Struct:
		if err := c.applyEnvOverridesToStruct(prefix, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnvOverridesToStruct(prefix string, s reflect.Value) error {
	typeOfSpec := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		// Get the toml tag to determine what env var name to use
		configName := typeOfSpec.Field(i).Tag.Get("toml")
		if configName == "" || configName == "-" {
			continue
		}
		// Replace hyphens with underscores to avoid issues with shells
		configName = strings.Replace(configName, "-", "_", -1)
		fieldName := typeOfSpec.Field(i).Name

		// Skip any fields that we cannot set
		if f.CanSet() {
			// Use the upper-case prefix and toml name for the env var
			key := strings.ToUpper(configName)
			if prefix != "" {
				key = strings.ToUpper(fmt.Sprintf("%s_%s", prefix, configName))
			}
			if err := c.applyEnvOverrides(key, fieldName, f); err != nil {
				return err
			}
		}
	}
	return nil
}
