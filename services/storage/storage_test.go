package storage_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage/storagetest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Error used to specifically trigger a rollback for tests.
var rollbackErr = errors.New("rollback")

func TestStorage_CRUD(t *testing.T) {
	s := storagetest.New(t).Store("crud")
	err := s.Update(func(tx storage.Tx) error {
		exists, err := tx.Exists("key0")
		require.NoError(t, err)
		require.False(t, exists)

		require.NoError(t, tx.Put("key0", []byte("test value")))
		exists, err = tx.Exists("key0")
		require.NoError(t, err)
		require.True(t, exists)

		got, err := tx.Get("key0")
		require.NoError(t, err)
		assert.Equal(t, "test value", string(got.Value))

		require.NoError(t, tx.Delete("key0"))
		exists, err = tx.Exists("key0")
		require.NoError(t, err)
		assert.False(t, exists, "expected key to not exist after delete")

		_, err = tx.Get("key0")
		assert.Equal(t, storage.ErrNoKeyExists, err)
		return nil
	})
	require.NoError(t, err)
}

func TestStorage_ViewMissingBucket(t *testing.T) {
	s := storagetest.New(t).Store("never-written")
	err := s.View(func(tx storage.ReadOnlyTx) error {
		_, err := tx.Get("key0")
		assert.Equal(t, storage.ErrNoKeyExists, err)
		kvs, err := tx.List("")
		assert.Empty(t, kvs)
		return err
	})
	require.NoError(t, err)
}

func TestStorage_ListPrefix(t *testing.T) {
	s := storagetest.New(t).Store("list")
	require.NoError(t, s.Update(func(tx storage.Tx) error {
		for _, k := range []string{"/a/2", "/a/1", "/b/1", "/a1"} {
			if err := tx.Put(k, []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var keys []string
	require.NoError(t, s.View(func(tx storage.ReadOnlyTx) error {
		kvs, err := tx.List("/a/")
		for _, kv := range kvs {
			keys = append(keys, kv.Key)
		}
		return err
	}))
	assert.Equal(t, []string{"/a/1", "/a/2"}, keys)
}

func TestStorage_Update_Rollback(t *testing.T) {
	s := storagetest.New(t).Store("rollback")
	require.NoError(t, s.Update(func(tx storage.Tx) error {
		return tx.Put("key0", []byte("test value"))
	}))

	err := s.Update(func(tx storage.Tx) error {
		if err := tx.Put("key0", []byte("overridden value is rolledback")); err != nil {
			return err
		}
		return rollbackErr
	})
	require.Equal(t, rollbackErr, err)

	var got *storage.KeyValue
	require.NoError(t, s.View(func(tx storage.ReadOnlyTx) (err error) {
		got, err = tx.Get("key0")
		return
	}))
	assert.Equal(t, "test value", string(got.Value))
}

func TestStorage_Update_Concurrent(t *testing.T) {
	db := storagetest.New(t)

	const (
		workers    = 10
		iterations = 10
		keys       = 10
	)
	value := func(w, i, k int) string {
		return fmt.Sprintf("worker %d iteration %d key %d", w, i, k)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s := db.Store(fmt.Sprintf("bucket%d", w))
			for i := 0; i < iterations; i++ {
				err := s.Update(func(tx storage.Tx) error {
					for k := 0; k < keys; k++ {
						if err := tx.Put(fmt.Sprintf("key%d", k), []byte(value(w, i, k))); err != nil {
							return err
						}
					}
					// Do not commit every third transaction
					if i%3 == 0 {
						return rollbackErr
					}
					return nil
				})
				if err != nil && err != rollbackErr {
					errs <- errors.Wrapf(err, "worker %d", w)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	last := iterations - 1
	if last%3 == 0 {
		last--
	}
	for w := 0; w < workers; w++ {
		s := db.Store(fmt.Sprintf("bucket%d", w))
		for k := 0; k < keys; k++ {
			var kv *storage.KeyValue
			require.NoError(t, s.View(func(tx storage.ReadOnlyTx) (err error) {
				kv, err = tx.Get(fmt.Sprintf("key%d", k))
				return
			}))
			assert.Equal(t, value(w, last, k), string(kv.Value))
		}
	}
}

func TestVersionJSON(t *testing.T) {
	type v2 struct {
		Name string `json:"name"`
	}
	data, err := storage.VersionJSONEncode(2, v2{Name: "sensor01"})
	require.NoError(t, err)

	var got v2
	var version int
	err = storage.VersionJSONDecode(data, func(v int, dec *json.Decoder) error {
		version = v
		return dec.Decode(&got)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, "sensor01", got.Name)

	err = storage.VersionJSONDecode([]byte(`{"version":1}`), func(int, *json.Decoder) error { return nil })
	assert.Error(t, err)
}
