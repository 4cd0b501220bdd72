package storage

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type Diagnostic interface {
	Info(msg string, path string)
	Error(msg string, err error)
}

type Service struct {
	dbpath      string
	openTimeout time.Duration

	boltdb *bolt.DB
	stores map[string]Interface
	mu     sync.Mutex

	diag Diagnostic
}

func NewService(conf Config, d Diagnostic) *Service {
	return &Service{
		dbpath:      conf.BoltDBPath,
		openTimeout: time.Duration(conf.OpenTimeout),
		stores:      make(map[string]Interface),
		diag:        d,
	}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.dbpath), 0755); err != nil {
		return errors.Wrapf(err, "mkdir dirs %q", s.dbpath)
	}
	db, err := bolt.Open(s.dbpath, 0600, &bolt.Options{Timeout: s.openTimeout})
	if err != nil {
		return errors.Wrapf(err, "open boltdb @ %q", s.dbpath)
	}
	s.boltdb = db
	s.diag.Info("opened database", s.dbpath)
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boltdb == nil {
		return nil
	}
	err := s.boltdb.Close()
	s.boltdb = nil
	s.stores = make(map[string]Interface)
	if err != nil {
		s.diag.Error("failed to close database", err)
	}
	return err
}

// Store returns a namespaced store.
// Calling Store with the same namespace returns the same store.
func (s *Service) Store(name string) Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[name]; ok {
		return store
	}
	store := NewBolt(s.boltdb, name)
	s.stores[name] = store
	return store
}
