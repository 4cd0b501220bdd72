package devices

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
)

var (
	ErrDeviceExists   = errors.New("device already exists")
	ErrNoDeviceExists = errors.New("no device exists")
)

//--------------------------------------------------------------------
// Device is stored in the database via versioned JSON encoding.
// Changes to the structure could break existing data.

const (
	deviceVersion1 = 1
)

// Device is a registered flood sensor together with its automatic alert counters.
type Device struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Location   string  `json:"location"`
	AlertLevel float64 `json:"alertLevel"`

	// Rate limiter state, owned by ReserveAutoSMS.
	LastAutoSMSSent   time.Time `json:"lastAutoSmsSent"`
	AutoSMSCountToday int       `json:"autoSmsCountToday"`
	AutoSMSCountDate  string    `json:"autoSmsCountDate"`

	// Time of the most recent reading seen by ingestion.
	LastUpdate time.Time `json:"lastUpdate"`
}

var validDeviceID = regexp.MustCompile(`^[-\._\p{L}0-9]+$`)

func (d Device) Validate() error {
	if !validDeviceID.MatchString(d.ID) {
		return fmt.Errorf("device ID must contain only letters, numbers, '-', '.' and '_'. %q", d.ID)
	}
	switch d.Status {
	case alert.StatusActive, alert.StatusInactive:
	default:
		return fmt.Errorf("device %q status must be %q or %q, got %q", d.ID, alert.StatusActive, alert.StatusInactive, d.Status)
	}
	if math.IsNaN(d.AlertLevel) || math.IsInf(d.AlertLevel, 0) {
		return fmt.Errorf("device %q alert level must be a finite number", d.ID)
	}
	if d.AutoSMSCountToday < 0 {
		return fmt.Errorf("device %q auto SMS count cannot be negative", d.ID)
	}
	if d.AutoSMSCountDate != "" {
		if _, err := time.Parse(ratelimit.DateLayout, d.AutoSMSCountDate); err != nil {
			return errors.Wrapf(err, "device %q auto SMS count date", d.ID)
		}
	}
	return nil
}

// Counters returns the rate limiter view of the device.
func (d Device) Counters() ratelimit.Counters {
	return ratelimit.Counters{
		LastSent:   d.LastAutoSMSSent,
		CountToday: d.AutoSMSCountToday,
		CountDate:  d.AutoSMSCountDate,
	}
}

func (d *Device) SetCounters(c ratelimit.Counters) {
	d.LastAutoSMSSent = c.LastSent
	d.AutoSMSCountToday = c.CountToday
	d.AutoSMSCountDate = c.CountDate
}

func (d Device) ObjectID() string {
	return d.ID
}

func (d Device) MarshalBinary() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid device")
	}
	return storage.VersionJSONEncode(deviceVersion1, d)
}

func (d *Device) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(version int, dec *json.Decoder) error {
		switch version {
		case deviceVersion1:
			return dec.Decode(d)
		default:
			return fmt.Errorf("unknown device version %d: cannot decode", version)
		}
	})
}

// Key/Value store based data access for devices.
type deviceKV struct {
	db    storage.Interface
	store *storage.IndexedStore
}

const (
	devicePrefix = "devices"
)

func newDeviceKV(store storage.Interface) (*deviceKV, error) {
	c := storage.DefaultIndexedStoreConfig(devicePrefix, func() storage.BinaryObject {
		return new(Device)
	})
	istore, err := storage.NewIndexedStore(store, c)
	if err != nil {
		return nil, err
	}
	return &deviceKV{
		db:    store,
		store: istore,
	}, nil
}

func (kv *deviceKV) error(err error) error {
	if err == storage.ErrObjectExists {
		return ErrDeviceExists
	} else if err == storage.ErrNoObjectExists {
		return ErrNoDeviceExists
	}
	return err
}

func (kv *deviceKV) Get(id string) (Device, error) {
	return kv.getHelper(kv.store.Get(id))
}
func (kv *deviceKV) GetTx(tx storage.ReadOnlyTx, id string) (Device, error) {
	return kv.getHelper(kv.store.GetTx(tx, id))
}

func (kv *deviceKV) getHelper(o storage.BinaryObject, err error) (Device, error) {
	if err != nil {
		return Device{}, kv.error(err)
	}
	d, ok := o.(*Device)
	if !ok {
		return Device{}, storage.ImpossibleTypeErr(d, o)
	}
	return *d, nil
}

func (kv *deviceKV) Create(d Device) error {
	return kv.error(kv.store.Create(&d))
}

func (kv *deviceKV) Replace(d Device) error {
	return kv.error(kv.store.Replace(&d))
}

func (kv *deviceKV) PutTx(tx storage.Tx, d Device) error {
	return kv.error(kv.store.PutTx(tx, &d))
}

// Modify applies f to the stored device inside a single write transaction.
// Errors returned by f are passed through unchanged.
func (kv *deviceKV) Modify(id string, f func(*Device) error) (Device, error) {
	return kv.getHelper(kv.store.Modify(id, func(o storage.BinaryObject) error {
		d, ok := o.(*Device)
		if !ok {
			return storage.ImpossibleTypeErr(d, o)
		}
		return f(d)
	}))
}

func (kv *deviceKV) Delete(id string) error {
	return kv.store.Delete(id)
}

func (kv *deviceKV) List(pattern string, offset, limit int) ([]Device, error) {
	objects, err := kv.store.List(storage.DefaultIDIndex, pattern, offset, limit)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(objects))
	for i, o := range objects {
		d, ok := o.(*Device)
		if !ok {
			return nil, storage.ImpossibleTypeErr(d, o)
		}
		devices[i] = *d
	}
	return devices, nil
}
