package storage_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage/storagetest"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	ID    string
	Value string
	Date  time.Time
}

func (o *object) ObjectID() string {
	return o.ID
}

func (o *object) MarshalBinary() ([]byte, error) {
	return storage.VersionJSONEncode(1, o)
}

func (o *object) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(_ int, dec *json.Decoder) error {
		return dec.Decode(o)
	})
}

func newIndexedStore(t *testing.T) *storage.IndexedStore {
	t.Helper()
	return newIndexedStoreOn(t, storagetest.New(t).Store("objects"))
}

func newIndexedStoreOn(t *testing.T, store storage.Interface) *storage.IndexedStore {
	t.Helper()
	c := storage.DefaultIndexedStoreConfig("objects", func() storage.BinaryObject {
		return new(object)
	})
	c.Indexes = append(c.Indexes, storage.Index{
		Name: "date",
		ValueFunc: func(o storage.BinaryObject) (string, error) {
			obj, ok := o.(*object)
			if !ok {
				return "", storage.ImpossibleTypeErr(obj, o)
			}
			return obj.Date.UTC().Format(time.RFC3339), nil
		},
	})
	is, err := storage.NewIndexedStore(store, c)
	require.NoError(t, err)
	return is
}

func ids(objects []storage.BinaryObject) []string {
	out := make([]string, len(objects))
	for i, o := range objects {
		out[i] = o.ObjectID()
	}
	return out
}

func listIDs(t *testing.T, is *storage.IndexedStore, index string) []string {
	t.Helper()
	objects, err := is.List(index, "", 0, -1)
	require.NoError(t, err)
	return ids(objects)
}

func TestIndexedStore_CRUD(t *testing.T) {
	is := newIndexedStore(t)

	o1 := &object{ID: "1", Value: "obj1", Date: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, is.Create(o1))
	assert.Equal(t, storage.ErrObjectExists, is.Create(o1))

	got, err := is.Get("1")
	require.NoError(t, err)
	if !cmp.Equal(o1, got) {
		t.Errorf("unexpected object 1 retrieved:\ngot\n%s\nexp\n%s\n", spew.Sdump(got), spew.Sdump(o1))
	}

	o2 := &object{ID: "2", Value: "obj2", Date: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, is.Put(o2))
	assert.Equal(t, storage.ErrObjectExists, is.Create(o2))

	assert.Equal(t, []string{"1", "2"}, listIDs(t, is, "id"))
	assert.Equal(t, []string{"2", "1"}, listIDs(t, is, "date"))

	// Moving o2 forward in time must drop its old date index entry.
	o1.Value = "modified obj1"
	require.NoError(t, is.Replace(o1))
	o2.Date = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, is.Put(o2))

	got, err = is.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "modified obj1", got.(*object).Value)
	assert.Equal(t, []string{"1", "2"}, listIDs(t, is, "date"))

	require.NoError(t, is.Delete("2"))
	_, err = is.Get("2")
	assert.Equal(t, storage.ErrNoObjectExists, err)
	assert.Equal(t, []string{"1"}, listIDs(t, is, "id"))
	assert.Equal(t, []string{"1"}, listIDs(t, is, "date"))
	require.NoError(t, is.Delete("2"), "deleting a missing object is not an error")

	o3 := &object{ID: "3", Value: "obj3"}
	assert.Equal(t, storage.ErrNoObjectExists, is.Replace(o3))
}

func TestIndexedStore_Modify(t *testing.T) {
	is := newIndexedStore(t)
	require.NoError(t, is.Create(&object{ID: "a", Value: "before"}))

	o, err := is.Modify("a", func(o storage.BinaryObject) error {
		o.(*object).Value = "after"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after", o.(*object).Value)

	abort := errors.New("abort")
	_, err = is.Modify("a", func(o storage.BinaryObject) error {
		o.(*object).Value = "discarded"
		return abort
	})
	assert.Equal(t, abort, err)
	got, err := is.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "after", got.(*object).Value)

	_, err = is.Modify("a", func(o storage.BinaryObject) error {
		o.(*object).ID = "b"
		return nil
	})
	assert.Error(t, err)

	_, err = is.Modify("missing", func(storage.BinaryObject) error { return nil })
	assert.Equal(t, storage.ErrNoObjectExists, err)
}

func TestIndexedStore_ModifyTx(t *testing.T) {
	store := storagetest.New(t).Store("objects")
	is := newIndexedStoreOn(t, store)
	require.NoError(t, is.Create(&object{ID: "a", Value: "before"}))

	err := store.Update(func(tx storage.Tx) error {
		if err := is.CreateTx(tx, &object{ID: "b"}); err != nil {
			return err
		}
		_, err := is.ModifyTx(tx, "a", func(o storage.BinaryObject) error {
			o.(*object).Value = "after"
			return nil
		})
		return err
	})
	require.NoError(t, err)
	got, err := is.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "after", got.(*object).Value)
	_, err = is.Get("b")
	require.NoError(t, err)

	// A failed modification rolls back the rest of the transaction.
	err = store.Update(func(tx storage.Tx) error {
		if err := is.CreateTx(tx, &object{ID: "c"}); err != nil {
			return err
		}
		_, err := is.ModifyTx(tx, "missing", func(storage.BinaryObject) error { return nil })
		return err
	})
	assert.Equal(t, storage.ErrNoObjectExists, err)
	_, err = is.Get("c")
	assert.Equal(t, storage.ErrNoObjectExists, err)
}

func TestIndexedStore_ListPaging(t *testing.T) {
	is := newIndexedStore(t)
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"sensor01", "sensor02", "sensor03", "gauge01"} {
		require.NoError(t, is.Create(&object{ID: id, Date: start.Add(time.Duration(i) * time.Hour)}))
	}

	objects, err := is.List("id", "sensor*", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor02"}, ids(objects))

	objects, err = is.ReverseList("date", "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"gauge01", "sensor03"}, ids(objects))

	objects, err = is.List("id", "", 10, -1)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestIndexedStoreConfig_Validate(t *testing.T) {
	newObject := func() storage.BinaryObject { return new(object) }
	for _, c := range []storage.IndexedStoreConfig{
		storage.DefaultIndexedStoreConfig("", newObject),
		storage.DefaultIndexedStoreConfig("a/b", newObject),
		storage.DefaultIndexedStoreConfig("ok", nil),
		{Prefix: "ok", DataPrefix: "x", IndexesPrefix: "x", NewObject: newObject},
	} {
		assert.Error(t, c.Validate(), spew.Sdump(c.Prefix, c.DataPrefix, c.IndexesPrefix))
	}
}
