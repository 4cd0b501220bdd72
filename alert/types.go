package alert

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Event is a single sensor-reading update for a device.
type Event struct {
	DeviceID string
	Reading  Reading
}

// IsMeasurement reports whether the event carries a distance reading.
// Events without one are status pings and never trigger an alert.
func (e Event) IsMeasurement() bool {
	return e.Reading.Distance != nil
}

type Reading struct {
	// Distance is the raw sensor measurement, nil when absent.
	Distance *float64
	// Timestamp assigned by the producer, or the ingestion time.
	Timestamp time.Time
}

// Severity is the status label assigned to a reading.
type Severity int

const (
	Normal Severity = iota
	Elevated
	// Critical is only produced by the dashboard's three tier display,
	// automatic dispatch never classifies a reading as Critical.
	Critical
	maxSeverity
)

const severityStrings = "NormalElevatedCritical"

var severityBytes = []byte(severityStrings)

var severityOffsets = []int{0, 6, 14, 22}

func (s Severity) String() string {
	if s >= 0 && s < maxSeverity {
		return severityStrings[severityOffsets[s]:severityOffsets[s+1]]
	}
	return "Unknown"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	idx := bytes.Index(severityBytes, text)
	if idx >= 0 {
		for i := 0; i < int(maxSeverity); i++ {
			if idx == severityOffsets[i] && len(text) == severityOffsets[i+1]-idx {
				*s = Severity(i)
				return nil
			}
		}
	}

	return fmt.Errorf("unknown severity '%s'", text)
}

// ParseSeverity parses a severity name, ignoring case.
func ParseSeverity(str string) (s Severity, err error) {
	if str == "" {
		return Normal, fmt.Errorf("unknown severity ''")
	}
	str = strings.ToUpper(str[:1]) + strings.ToLower(str[1:])
	err = s.UnmarshalText([]byte(str))
	return
}
