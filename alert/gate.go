package alert

import (
	"math"
	"time"
)

const (
	// StatusActive is the only device status allowed to trigger automatic alerts.
	StatusActive = "active"
	// StatusInactive marks a device switched off by an administrator.
	StatusInactive = "inactive"

	// DefaultRecencyThreshold is how fresh a reading must be to trigger an alert.
	DefaultRecencyThreshold = 90 * time.Second
)

// Eligible reports whether a device in the given state may trigger an automatic
// alert at all. The device must be active and its last update must be strictly
// younger than threshold.
func Eligible(status string, lastUpdate, now time.Time, threshold time.Duration) bool {
	if status != StatusActive {
		return false
	}
	if lastUpdate.IsZero() {
		return false
	}
	return now.Sub(lastUpdate) < threshold
}

// Classify maps a reading onto the two tier automatic-dispatch scale.
// The boundary is inclusive: a distance equal to the alert level is Elevated.
func Classify(distance, alertLevel float64) Severity {
	if distance >= alertLevel {
		return Elevated
	}
	return Normal
}

// RoundDistance rounds a distance to the nearest whole unit, halves rounding up.
// It is used for display only.
func RoundDistance(distance float64) int64 {
	return int64(math.Floor(distance + 0.5))
}
