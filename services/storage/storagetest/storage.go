// Package storagetest provides throwaway BoltDB databases for tests.
package storagetest

import (
	"path/filepath"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	bolt "go.etcd.io/bbolt"
)

type CleanedTest interface {
	TempDir() string
	Cleanup(func())
	Fatal(args ...interface{})
}

// TestStore hands out namespaced stores backed by a single temporary database.
// The database is closed when the test finishes.
type TestStore struct {
	db *bolt.DB
}

func New(t CleanedTest) *TestStore {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "floodd.db"), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &TestStore{db: db}
}

func (s *TestStore) Store(name string) storage.Interface {
	return storage.NewBolt(s.db, name)
}

// DB exposes the underlying database for tests that inspect raw buckets.
func (s *TestStore) DB() *bolt.DB {
	return s.db
}
