package alertlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
)

var (
	ErrNoAlertStateExists     = errors.New("no alert state exists")
	ErrNoDispatchRecordExists = errors.New("no dispatch record exists")
)

//--------------------------------------------------------------------
// The following structures are stored in the database via versioned JSON.
// Changes to the structures could break existing data.

const (
	alertStateVersion1     = 1
	dispatchRecordVersion1 = 1
)

const TypeAutomatic = "Automatic"

// AlertState is the current alert shown for a device.
type AlertState struct {
	DeviceID  string         `json:"deviceId"`
	AlertSent bool           `json:"alert_sent"`
	AutoSent  bool           `json:"auto_sent"`
	Distance  float64        `json:"distance"`
	Location  string         `json:"location"`
	Status    alert.Severity `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

func (a AlertState) ObjectID() string {
	return a.DeviceID
}

func (a AlertState) MarshalBinary() ([]byte, error) {
	if a.DeviceID == "" {
		return nil, errors.New("alert state must have a device ID")
	}
	return storage.VersionJSONEncode(alertStateVersion1, a)
}

func (a *AlertState) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(version int, dec *json.Decoder) error {
		if version != alertStateVersion1 {
			return fmt.Errorf("unknown alert state version %d: cannot decode", version)
		}
		return dec.Decode(a)
	})
}

// DispatchRecord is the audit entry written once per dispatch decision.
type DispatchRecord struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	SensorName string         `json:"sensorName"`
	Distance   float64        `json:"distance"`
	Location   string         `json:"location"`
	Status     alert.Severity `json:"status"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`

	// Fan-out tallies. Skipped counts recipients without a valid phone number.
	Attempted int `json:"attempted"`
	Accepted  int `json:"accepted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r DispatchRecord) ObjectID() string {
	return r.ID
}

func (r DispatchRecord) MarshalBinary() ([]byte, error) {
	if r.ID == "" {
		return nil, errors.New("dispatch record must have an ID")
	}
	return storage.VersionJSONEncode(dispatchRecordVersion1, r)
}

func (r *DispatchRecord) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(version int, dec *json.Decoder) error {
		if version != dispatchRecordVersion1 {
			return fmt.Errorf("unknown dispatch record version %d: cannot decode", version)
		}
		return dec.Decode(r)
	})
}

const (
	alertStatePrefix     = "alert_states"
	dispatchRecordPrefix = "dispatches"

	timeIndex = "time"
	// Fixed width so that lexical order is time order.
	timeIndexLayout = "20060102T150405.000000000Z"
)

func newAlertStateStore(store storage.Interface) (*storage.IndexedStore, error) {
	return storage.NewIndexedStore(store, storage.DefaultIndexedStoreConfig(alertStatePrefix, func() storage.BinaryObject {
		return new(AlertState)
	}))
}

func newDispatchRecordStore(store storage.Interface) (*storage.IndexedStore, error) {
	c := storage.DefaultIndexedStoreConfig(dispatchRecordPrefix, func() storage.BinaryObject {
		return new(DispatchRecord)
	})
	c.Indexes = append(c.Indexes, storage.Index{
		Name: timeIndex,
		ValueFunc: func(o storage.BinaryObject) (string, error) {
			r, ok := o.(*DispatchRecord)
			if !ok {
				return "", storage.ImpossibleTypeErr(r, o)
			}
			return r.Timestamp.UTC().Format(timeIndexLayout), nil
		},
	})
	return storage.NewIndexedStore(store, c)
}
