package storage

import (
	"encoding"
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultDataPrefix    = "data"
	defaultIndexesPrefix = "indexes"

	DefaultIDIndex = "id"
)

var (
	ErrObjectExists   = errors.New("object already exists")
	ErrNoObjectExists = errors.New("no object exists")
)

type BinaryObject interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	ObjectID() string
}

type NewObjectF func() BinaryObject
type ValueFunc func(BinaryObject) (string, error)

// Index maintains a secondary ordering of the objects in an IndexedStore.
type Index struct {
	Name      string
	ValueFunc ValueFunc
	// Unique indexes map a value to exactly one object.
	// Non unique values are suffixed with the object ID.
	Unique bool
}

func (idx Index) ValueOf(o BinaryObject) (string, error) {
	value, err := idx.ValueFunc(o)
	if err != nil {
		return "", err
	}
	if !idx.Unique {
		value = value + "/" + o.ObjectID()
	}
	return value, nil
}

// IndexedStore provides CRUD operations on objects and keeps their indexes current.
//
// Keys are laid out like a directory tree:
//
//	/<prefix>/data/<ID>              encoded object
//	/<prefix>/indexes/<index>/<value> object ID
type IndexedStore struct {
	store Interface

	dataPrefix    string
	indexesPrefix string

	indexes []Index

	newObject NewObjectF
}

type IndexedStoreConfig struct {
	Prefix        string
	DataPrefix    string
	IndexesPrefix string
	NewObject     NewObjectF
	Indexes       []Index
}

// DefaultIndexedStoreConfig returns a config with a single unique index on the object ID.
func DefaultIndexedStoreConfig(prefix string, newObject NewObjectF) IndexedStoreConfig {
	return IndexedStoreConfig{
		Prefix:        prefix,
		DataPrefix:    defaultDataPrefix,
		IndexesPrefix: defaultIndexesPrefix,
		NewObject:     newObject,
		Indexes: []Index{{
			Name:   DefaultIDIndex,
			Unique: true,
			ValueFunc: func(o BinaryObject) (string, error) {
				return o.ObjectID(), nil
			},
		}},
	}
}

func validPath(p string) bool {
	return p != "" && !strings.Contains(p, "/")
}

func (c IndexedStoreConfig) Validate() error {
	if !validPath(c.Prefix) {
		return fmt.Errorf("invalid prefix %q", c.Prefix)
	}
	if !validPath(c.DataPrefix) {
		return fmt.Errorf("invalid data prefix %q", c.DataPrefix)
	}
	if !validPath(c.IndexesPrefix) {
		return fmt.Errorf("invalid indexes prefix %q", c.IndexesPrefix)
	}
	if c.IndexesPrefix == c.DataPrefix {
		return fmt.Errorf("data prefix and indexes prefix must be different, both are %q", c.IndexesPrefix)
	}
	if c.NewObject == nil {
		return errors.New("must provide a NewObject function")
	}
	for _, idx := range c.Indexes {
		if !validPath(idx.Name) {
			return fmt.Errorf("invalid index name %q", idx.Name)
		}
		if idx.ValueFunc == nil {
			return fmt.Errorf("index %q does not have a ValueFunc", idx.Name)
		}
	}
	return nil
}

func NewIndexedStore(store Interface, c IndexedStoreConfig) (*IndexedStore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &IndexedStore{
		store:         store,
		dataPrefix:    path.Join("/", c.Prefix, c.DataPrefix) + "/",
		indexesPrefix: path.Join("/", c.Prefix, c.IndexesPrefix),
		indexes:       c.Indexes,
		newObject:     c.NewObject,
	}, nil
}

func (s *IndexedStore) dataKey(id string) string {
	return s.dataPrefix + id
}

func (s *IndexedStore) indexKey(index, value string) string {
	return path.Join(s.indexesPrefix, index, value)
}

func (s *IndexedStore) Get(id string) (o BinaryObject, err error) {
	err = s.store.View(func(tx ReadOnlyTx) error {
		o, err = s.GetTx(tx, id)
		return err
	})
	return
}

// GetTx is Get within an existing transaction.
func (s *IndexedStore) GetTx(tx ReadOnlyTx, id string) (BinaryObject, error) {
	kv, err := tx.Get(s.dataKey(id))
	if err == ErrNoKeyExists {
		return nil, ErrNoObjectExists
	} else if err != nil {
		return nil, err
	}
	o := s.newObject()
	if err := o.UnmarshalBinary(kv.Value); err != nil {
		return nil, errors.Wrapf(err, "failed to decode object %q", id)
	}
	return o, nil
}

// Create stores a new object, failing with ErrObjectExists if the ID is taken.
func (s *IndexedStore) Create(o BinaryObject) error {
	return s.store.Update(func(tx Tx) error {
		return s.CreateTx(tx, o)
	})
}

// CreateTx is Create within an existing transaction.
func (s *IndexedStore) CreateTx(tx Tx, o BinaryObject) error {
	return s.putTx(tx, o, false, false)
}

// Put stores an object, creating or replacing it.
func (s *IndexedStore) Put(o BinaryObject) error {
	return s.store.Update(func(tx Tx) error {
		return s.PutTx(tx, o)
	})
}

// PutTx is Put within an existing transaction.
func (s *IndexedStore) PutTx(tx Tx, o BinaryObject) error {
	return s.putTx(tx, o, true, false)
}

// Replace overwrites an existing object, failing with ErrNoObjectExists otherwise.
func (s *IndexedStore) Replace(o BinaryObject) error {
	return s.store.Update(func(tx Tx) error {
		return s.ReplaceTx(tx, o)
	})
}

// ReplaceTx is Replace within an existing transaction.
func (s *IndexedStore) ReplaceTx(tx Tx, o BinaryObject) error {
	return s.putTx(tx, o, true, true)
}

// Modify loads an object, applies f and stores the result, all in one transaction.
// If f returns an error nothing is written and the error is returned unchanged.
func (s *IndexedStore) Modify(id string, f func(BinaryObject) error) (o BinaryObject, err error) {
	err = s.store.Update(func(tx Tx) error {
		o, err = s.ModifyTx(tx, id, f)
		return err
	})
	return
}

// ModifyTx is Modify within an existing transaction.
func (s *IndexedStore) ModifyTx(tx Tx, id string, f func(BinaryObject) error) (BinaryObject, error) {
	o, err := s.GetTx(tx, id)
	if err != nil {
		return nil, err
	}
	if err := f(o); err != nil {
		return nil, err
	}
	if o.ObjectID() != id {
		return nil, fmt.Errorf("modify must not change the object ID, got %q exp %q", o.ObjectID(), id)
	}
	if err := s.putTx(tx, o, true, true); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *IndexedStore) putTx(tx Tx, o BinaryObject, allowReplace, requireReplace bool) error {
	id := o.ObjectID()
	old, err := s.GetTx(tx, id)
	replacing := err == nil
	switch {
	case err != nil && err != ErrNoObjectExists:
		return err
	case !replacing && requireReplace:
		return ErrNoObjectExists
	case replacing && !allowReplace:
		return ErrObjectExists
	}

	data, err := o.MarshalBinary()
	if err != nil {
		return err
	}
	if err := tx.Put(s.dataKey(id), data); err != nil {
		return err
	}

	for _, idx := range s.indexes {
		newValue, err := idx.ValueOf(o)
		if err != nil {
			return err
		}
		newKey := s.indexKey(idx.Name, newValue)
		if replacing {
			oldValue, err := idx.ValueOf(old)
			if err != nil {
				return err
			}
			oldKey := s.indexKey(idx.Name, oldValue)
			if oldKey == newKey {
				continue
			}
			if err := tx.Delete(oldKey); err != nil {
				return err
			}
		}
		if err := tx.Put(newKey, []byte(id)); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an object and its index entries.
// Deleting a missing object is not an error.
func (s *IndexedStore) Delete(id string) error {
	return s.store.Update(func(tx Tx) error {
		return s.DeleteTx(tx, id)
	})
}

// DeleteTx is Delete within an existing transaction.
func (s *IndexedStore) DeleteTx(tx Tx, id string) error {
	o, err := s.GetTx(tx, id)
	if err == ErrNoObjectExists {
		return nil
	} else if err != nil {
		return err
	}
	if err := tx.Delete(s.dataKey(id)); err != nil {
		return err
	}
	for _, idx := range s.indexes {
		value, err := idx.ValueOf(o)
		if err != nil {
			return err
		}
		if err := tx.Delete(s.indexKey(idx.Name, value)); err != nil {
			return err
		}
	}
	return nil
}

// List returns the objects whose ID matches pattern, ordered by index.
// The pattern uses path.Match syntax, an empty pattern matches everything.
// If limit < 0, then no limit is enforced.
func (s *IndexedStore) List(index, pattern string, offset, limit int) (objects []BinaryObject, err error) {
	err = s.store.View(func(tx ReadOnlyTx) error {
		objects, err = s.list(tx, index, pattern, offset, limit, false)
		return err
	})
	return
}

// ListTx is List within an existing transaction.
func (s *IndexedStore) ListTx(tx ReadOnlyTx, index, pattern string, offset, limit int) ([]BinaryObject, error) {
	return s.list(tx, index, pattern, offset, limit, false)
}

// ReverseList is List in reverse index order.
func (s *IndexedStore) ReverseList(index, pattern string, offset, limit int) (objects []BinaryObject, err error) {
	err = s.store.View(func(tx ReadOnlyTx) error {
		objects, err = s.list(tx, index, pattern, offset, limit, true)
		return err
	})
	return
}

func (s *IndexedStore) list(tx ReadOnlyTx, index, pattern string, offset, limit int, reverse bool) ([]BinaryObject, error) {
	ids, err := tx.List(s.indexKey(index, "") + "/")
	if err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	match := func([]byte) bool { return true }
	if pattern != "" {
		match = func(value []byte) bool {
			matched, _ := path.Match(pattern, string(value))
			return matched
		}
	}

	matches := page(ids, match, offset, limit)
	objects := make([]BinaryObject, 0, len(matches))
	for _, id := range matches {
		o, err := s.GetTx(tx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "index %q refers to object %q", index, id)
		}
		objects = append(objects, o)
	}
	return objects, nil
}

func ImpossibleTypeErr(exp interface{}, got interface{}) error {
	return fmt.Errorf("impossible error, object not of type %T, got %T", exp, got)
}
