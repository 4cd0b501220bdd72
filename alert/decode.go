package alert

import (
	"encoding/json"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var (
	ErrMissingDeviceID  = errors.New("event is missing deviceId")
	ErrInvalidTimestamp = errors.New("event timestamp is out of range")
)

// maxTimestamp is the last epoch millisecond of year 9999.
var maxTimestamp = float64(time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli())

// rawEvent mirrors the wire shape produced by the sensor ingestion collaborator:
//
//	{"deviceId": "sensor01", "reading": {"distance": 160, "timestamp": 1700000000000}}
//
// timestamp is epoch milliseconds.
type rawEvent struct {
	DeviceID string `mapstructure:"deviceId"`
	Reading  struct {
		Distance  *float64 `mapstructure:"distance"`
		Timestamp *float64 `mapstructure:"timestamp"`
	} `mapstructure:"reading"`
}

// DecodeEvent converts a decoded JSON object into an Event.
// Fields must carry their wire types, a distance given as a string or bool is an error.
// The timestamp defaults to receivedAt when the producer did not assign one.
func DecodeEvent(raw map[string]interface{}, receivedAt time.Time) (Event, error) {
	var r rawEvent
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &r,
	})
	if err != nil {
		return Event{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Event{}, errors.Wrap(err, "invalid event")
	}
	if r.DeviceID == "" {
		return Event{}, ErrMissingDeviceID
	}

	ev := Event{
		DeviceID: r.DeviceID,
		Reading: Reading{
			Distance:  r.Reading.Distance,
			Timestamp: receivedAt,
		},
	}
	if ts := r.Reading.Timestamp; ts != nil && *ts != 0 {
		if !(*ts > 0 && *ts <= maxTimestamp) {
			return Event{}, errors.Wrapf(ErrInvalidTimestamp, "timestamp %v", *ts)
		}
		ev.Reading.Timestamp = time.UnixMilli(int64(*ts))
	}
	return ev, nil
}

// UnmarshalEvent decodes a JSON encoded event.
func UnmarshalEvent(data []byte, receivedAt time.Time) (Event, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, errors.Wrap(err, "invalid event json")
	}
	return DecodeEvent(raw, receivedAt)
}
