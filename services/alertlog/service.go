// Package alertlog persists the per-device alert mirror and the append-only dispatch audit log.
package alertlog

import (
	"sync"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	alertLogNamespace = "alert_log"
)

type Service struct {
	mu         sync.RWMutex
	states     *storage.IndexedStore
	dispatches *storage.IndexedStore

	StorageService interface {
		Store(namespace string) storage.Interface
	}
}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store := s.StorageService.Store(alertLogNamespace)
	states, err := newAlertStateStore(store)
	if err != nil {
		return err
	}
	dispatches, err := newDispatchRecordStore(store)
	if err != nil {
		return err
	}
	s.states = states
	s.dispatches = dispatches
	return nil
}

func (s *Service) Close() error {
	return nil
}

// SetAlertState replaces the alert mirror of the device.
func (s *Service) SetAlertState(a AlertState) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a.AlertSent = true
	a.AutoSent = true
	return errors.Wrapf(s.states.Put(&a), "set alert state for %q", a.DeviceID)
}

func (s *Service) AlertState(deviceID string) (AlertState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.states.Get(deviceID)
	if err == storage.ErrNoObjectExists {
		return AlertState{}, ErrNoAlertStateExists
	} else if err != nil {
		return AlertState{}, err
	}
	a, ok := o.(*AlertState)
	if !ok {
		return AlertState{}, storage.ImpossibleTypeErr(a, o)
	}
	return *a, nil
}

// AppendDispatch adds r to the audit log, assigning an ID when r has none.
// The stored record is returned.
func (s *Service) AppendDispatch(r DispatchRecord) (DispatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Type == "" {
		r.Type = TypeAutomatic
	}
	if err := s.dispatches.Create(&r); err != nil {
		return DispatchRecord{}, errors.Wrapf(err, "append dispatch record %q", r.ID)
	}
	return r, nil
}

func (s *Service) Dispatch(id string) (DispatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.dispatches.Get(id)
	if err == storage.ErrNoObjectExists {
		return DispatchRecord{}, ErrNoDispatchRecordExists
	} else if err != nil {
		return DispatchRecord{}, err
	}
	r, ok := o.(*DispatchRecord)
	if !ok {
		return DispatchRecord{}, storage.ImpossibleTypeErr(r, o)
	}
	return *r, nil
}

// Dispatches returns the audit log newest first.
// If limit < 0, then no limit is enforced.
func (s *Service) Dispatches(offset, limit int) ([]DispatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.dispatches.ReverseList(timeIndex, "", offset, limit)
	if err != nil {
		return nil, err
	}
	records := make([]DispatchRecord, len(objects))
	for i, o := range objects {
		r, ok := o.(*DispatchRecord)
		if !ok {
			return nil, storage.ImpossibleTypeErr(r, o)
		}
		records[i] = *r
	}
	return records, nil
}
