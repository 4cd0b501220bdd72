package alert_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligible(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	threshold := alert.DefaultRecencyThreshold

	testCases := []struct {
		name       string
		status     string
		lastUpdate time.Time
		exp        bool
	}{
		{name: "fresh active", status: "active", lastUpdate: now.Add(-time.Second), exp: true},
		{name: "same instant", status: "active", lastUpdate: now, exp: true},
		{name: "just under threshold", status: "active", lastUpdate: now.Add(-threshold + time.Millisecond), exp: true},
		{name: "exactly threshold", status: "active", lastUpdate: now.Add(-threshold), exp: false},
		{name: "stale", status: "active", lastUpdate: now.Add(-10 * time.Minute), exp: false},
		{name: "missing timestamp", status: "active", exp: false},
		{name: "inactive", status: "inactive", lastUpdate: now, exp: false},
		{name: "case sensitive", status: "Active", lastUpdate: now, exp: false},
		{name: "empty status", status: "", lastUpdate: now, exp: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, alert.Eligible(tc.status, tc.lastUpdate, now, threshold))
		})
	}
}

func TestEligible_NonActiveNeverPasses(t *testing.T) {
	now := time.Now()
	for _, status := range []string{"inactive", "ACTIVE", "disabled", " active"} {
		for _, age := range []time.Duration{0, time.Millisecond, time.Minute, time.Hour} {
			if alert.Eligible(status, now.Add(-age), now, alert.DefaultRecencyThreshold) {
				t.Errorf("status %q age %v: expected ineligible", status, age)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		distance, level float64
		exp             alert.Severity
	}{
		{distance: 150, level: 150, exp: alert.Elevated},
		{distance: 149, level: 150, exp: alert.Normal},
		{distance: 160, level: 150, exp: alert.Elevated},
		{distance: 149.6, level: 150, exp: alert.Normal},
		{distance: 0, level: 0, exp: alert.Elevated},
	}
	for _, tc := range testCases {
		if got := alert.Classify(tc.distance, tc.level); got != tc.exp {
			t.Errorf("Classify(%v, %v): got %v exp %v", tc.distance, tc.level, got, tc.exp)
		}
	}
}

func TestRoundDistance(t *testing.T) {
	assert.Equal(t, int64(150), alert.RoundDistance(149.6))
	assert.Equal(t, int64(150), alert.RoundDistance(149.5))
	assert.Equal(t, int64(149), alert.RoundDistance(149.49))
	assert.Equal(t, int64(160), alert.RoundDistance(160))
}

func TestSeverity_Text(t *testing.T) {
	for _, s := range []alert.Severity{alert.Normal, alert.Elevated, alert.Critical} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got alert.Severity
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "Elevated", alert.Elevated.String())
	assert.Equal(t, "Unknown", alert.Severity(42).String())

	var s alert.Severity
	assert.Error(t, s.UnmarshalText([]byte("Elev")))
	assert.Error(t, s.UnmarshalText([]byte("bogus")))

	got, err := alert.ParseSeverity("elevated")
	require.NoError(t, err)
	assert.Equal(t, alert.Elevated, got)
	_, err = alert.ParseSeverity("")
	assert.Error(t, err)
}

func TestComposer_Compose(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	c, err := alert.NewComposer("", manila)
	require.NoError(t, err)

	ts := time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC)
	m, err := c.Compose("Marikina Bridge", 159.7, alert.Elevated, ts)
	require.NoError(t, err)

	text := m.String()
	assert.Contains(t, text, "Location: Marikina Bridge")
	assert.Contains(t, text, "Water Level: 160 cm")
	assert.Contains(t, text, "Status: Elevated")
	assert.Contains(t, text, "Time: Jul 1, 2024 2:30 PM")
}

func TestComposer_CustomTemplate(t *testing.T) {
	c, err := alert.NewComposer("{{.Status}} at {{.Location}}", nil)
	require.NoError(t, err)
	m, err := c.Compose("Tumana", 10, alert.Normal, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Normal at Tumana", m.String())

	_, err = alert.NewComposer("{{.Status", nil)
	assert.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	received := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	ev, err := alert.UnmarshalEvent([]byte(`{"deviceId":"sensor01","reading":{"distance":160,"timestamp":1719835200000}}`), received)
	require.NoError(t, err)
	assert.Equal(t, "sensor01", ev.DeviceID)
	require.True(t, ev.IsMeasurement())
	assert.Equal(t, 160.0, *ev.Reading.Distance)
	assert.True(t, ev.Reading.Timestamp.Equal(time.Unix(1719835200, 0)), "got %v", ev.Reading.Timestamp)

	// timestamp defaults to ingestion time
	ev, err = alert.UnmarshalEvent([]byte(`{"deviceId":"sensor01","reading":{"distance":12.5}}`), received)
	require.NoError(t, err)
	assert.True(t, ev.Reading.Timestamp.Equal(received))

	// no distance means not a measurement
	ev, err = alert.UnmarshalEvent([]byte(`{"deviceId":"sensor01","reading":{"battery":88}}`), received)
	require.NoError(t, err)
	assert.False(t, ev.IsMeasurement())

	ev, err = alert.UnmarshalEvent([]byte(`{"deviceId":"sensor01","reading":{"distance":null}}`), received)
	require.NoError(t, err)
	assert.False(t, ev.IsMeasurement())

	// integers decoded by other producers
	ev, err = alert.DecodeEvent(map[string]interface{}{
		"deviceId": "sensor02",
		"reading":  map[string]interface{}{"distance": 42, "timestamp": int64(1719835200000)},
	}, received)
	require.NoError(t, err)
	assert.Equal(t, 42.0, *ev.Reading.Distance)
	assert.True(t, ev.Reading.Timestamp.Equal(time.Unix(1719835200, 0)))

	_, err = alert.UnmarshalEvent([]byte(`{"reading":{"distance":1}}`), received)
	assert.Equal(t, alert.ErrMissingDeviceID, err)

	_, err = alert.UnmarshalEvent([]byte(`{"deviceId":`), received)
	assert.Error(t, err)

	_, err = alert.UnmarshalEvent([]byte(`{"deviceId":"x","reading":{"distance":"high"}}`), received)
	assert.True(t, err != nil && strings.Contains(err.Error(), "invalid event"), "got %v", err)
}

func TestDecodeEvent_RejectsNonNumericDistance(t *testing.T) {
	received := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	for _, distance := range []string{`""`, `true`, `false`, `"160"`, `[160]`, `{"cm":160}`} {
		t.Run(distance, func(t *testing.T) {
			data := []byte(`{"deviceId":"sensor01","reading":{"distance":` + distance + `}}`)
			ev, err := alert.UnmarshalEvent(data, received)
			require.Error(t, err, "decoded %+v", ev)
			assert.Contains(t, err.Error(), "invalid event")
		})
	}
}

func TestDecodeEvent_Timestamp(t *testing.T) {
	received := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		timestamp string
		exp       time.Time
		expErr    bool
	}{
		{name: "epoch millis", timestamp: "1719835200123", exp: time.UnixMilli(1719835200123)},
		{name: "zero defaults to received", timestamp: "0", exp: received},
		{name: "year 9999", timestamp: "253402300799000", exp: time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)},
		{name: "negative", timestamp: "-1", expErr: true},
		{name: "past year 9999", timestamp: "253402300800000", expErr: true},
		{name: "int64 overflow", timestamp: "9300000000000000000", expErr: true},
		{name: "huge", timestamp: "1e300", expErr: true},
		{name: "string", timestamp: `"1719835200000"`, expErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := []byte(`{"deviceId":"sensor01","reading":{"distance":160,"timestamp":` + tc.timestamp + `}}`)
			ev, err := alert.UnmarshalEvent(data, received)
			if tc.expErr {
				assert.Error(t, err, "decoded timestamp %v", ev.Reading.Timestamp)
				return
			}
			require.NoError(t, err)
			assert.True(t, ev.Reading.Timestamp.Equal(tc.exp), "got %v exp %v", ev.Reading.Timestamp, tc.exp)
		})
	}
}
