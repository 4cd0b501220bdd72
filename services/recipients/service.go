// Package recipients is the directory of people notified by automatic alerts.
package recipients

import (
	"sync"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
)

const (
	recipientsNamespace = "recipient_directory"
)

type Service struct {
	mu  sync.RWMutex
	dao *recipientKV

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
	dao, err := newRecipientKV(s.StorageService.Store(recipientsNamespace))
	if err != nil {
		return err
	}
	s.dao = dao
	return nil
}

func (s *Service) Close() error {
	return nil
}

func (s *Service) kv() *recipientKV {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dao
}

// List returns the full current roster ordered by ID.
// An empty roster is not an error.
func (s *Service) List() ([]Recipient, error) {
	rs, err := s.kv().List("", 0, -1)
	return rs, errors.Wrap(err, "list recipients")
}

// Page lists recipients whose ID matches the path.Match pattern.
func (s *Service) Page(pattern string, offset, limit int) ([]Recipient, error) {
	return s.kv().List(pattern, offset, limit)
}

func (s *Service) Get(id string) (Recipient, error) {
	return s.kv().Get(id)
}

func (s *Service) Create(r Recipient) error {
	return s.kv().Create(r)
}

func (s *Service) Replace(r Recipient) error {
	return s.kv().Replace(r)
}

// Put creates or replaces a recipient.
func (s *Service) Put(r Recipient) error {
	return s.kv().Put(r)
}

// Delete removes a recipient. It is not an error to delete a missing recipient.
func (s *Service) Delete(id string) error {
	return s.kv().Delete(id)
}
