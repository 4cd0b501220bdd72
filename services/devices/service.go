package devices

import (
	"sync"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
)

const (
	devicesNamespace = "device_registry"
)

type Diagnostic interface {
	ReservedAutoSMS(id string, count int, date string)
	Error(msg string, err error)
}

// Service is the device registry.
type Service struct {
	mu  sync.RWMutex
	dao *deviceKV

	StorageService interface {
		Store(namespace string) storage.Interface
	}

	diag Diagnostic
}

func NewService(d Diagnostic) *Service {
	return &Service{
		diag: d,
	}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dao, err := newDeviceKV(s.StorageService.Store(devicesNamespace))
	if err != nil {
		return err
	}
	s.dao = dao
	return nil
}

func (s *Service) Close() error {
	return nil
}

func (s *Service) kv() *deviceKV {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dao
}

// Get returns ErrNoDeviceExists if the device is not registered.
func (s *Service) Get(id string) (Device, error) {
	return s.kv().Get(id)
}

// List devices whose ID matches the path.Match pattern, ordered by ID.
// If limit < 0, then no limit is enforced.
func (s *Service) List(pattern string, offset, limit int) ([]Device, error) {
	return s.kv().List(pattern, offset, limit)
}

func (s *Service) Create(d Device) error {
	return s.kv().Create(d)
}

func (s *Service) Replace(d Device) error {
	return s.kv().Replace(d)
}

// Upsert stores the administrative fields of d.
// If the device already exists its rate limiter counters and last update time are kept.
func (s *Service) Upsert(d Device) (created bool, err error) {
	kv := s.kv()
	err = kv.db.Update(func(tx storage.Tx) error {
		existing, err := kv.GetTx(tx, d.ID)
		switch err {
		case nil:
			d.SetCounters(existing.Counters())
			d.LastUpdate = existing.LastUpdate
		case ErrNoDeviceExists:
			created = true
		default:
			return err
		}
		return kv.PutTx(tx, d)
	})
	return
}

// Update applies f to the stored device atomically and returns the result.
func (s *Service) Update(id string, f func(*Device) error) (Device, error) {
	return s.kv().Modify(id, f)
}

// Delete removes a device. It is not an error to delete a missing device.
func (s *Service) Delete(id string) error {
	return s.kv().Delete(id)
}

// SetLastUpdate records when the latest reading for the device arrived.
// Readings older than the stored time are ignored.
func (s *Service) SetLastUpdate(id string, t time.Time) error {
	_, err := s.kv().Modify(id, func(d *Device) error {
		if t.After(d.LastUpdate) {
			d.LastUpdate = t
		}
		return nil
	})
	return err
}

// ReserveAutoSMS checks policy against the stored counters and, when the dispatch is
// allowed, advances them. Check and write happen in one write transaction, so concurrent
// reservations for the same device are serialized and at most one can succeed per cooldown.
//
// A rejection returns the decision and a ratelimit.RejectedError.
func (s *Service) ReserveAutoSMS(id string, policy ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	d, err := s.kv().Modify(id, func(d *Device) error {
		next, dec, err := policy.Reserve(d.Counters(), now)
		decision = dec
		if err != nil {
			return err
		}
		d.SetCounters(next)
		return nil
	})
	if err != nil {
		if _, ok := ratelimit.IsRejected(err); ok {
			return decision, err
		}
		return decision, errors.Wrapf(err, "reserve auto SMS for device %q", id)
	}
	s.diag.ReservedAutoSMS(id, d.AutoSMSCountToday, d.AutoSMSCountDate)
	return decision, nil
}
