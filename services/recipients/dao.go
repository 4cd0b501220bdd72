package recipients

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
)

var (
	ErrRecipientExists   = errors.New("recipient already exists")
	ErrNoRecipientExists = errors.New("no recipient exists")
)

const (
	recipientVersion1 = 1
)

// Recipient is a person on the alert roster.
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// RawPhoneNumber is kept as entered. It is normalized only when a message is sent,
	// and recipients whose number cannot be normalized are skipped.
	RawPhoneNumber string            `json:"phoneNumber"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

var validRecipientID = regexp.MustCompile(`^[-\._\p{L}0-9]+$`)

func (r Recipient) Validate() error {
	if !validRecipientID.MatchString(r.ID) {
		return fmt.Errorf("recipient ID must contain only letters, numbers, '-', '.' and '_'. %q", r.ID)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("recipient %q must have a name", r.ID)
	}
	return nil
}

func (r Recipient) ObjectID() string {
	return r.ID
}

func (r Recipient) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid recipient")
	}
	return storage.VersionJSONEncode(recipientVersion1, r)
}

func (r *Recipient) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(version int, dec *json.Decoder) error {
		switch version {
		case recipientVersion1:
			return dec.Decode(r)
		default:
			return fmt.Errorf("unknown recipient version %d: cannot decode", version)
		}
	})
}

type recipientKV struct {
	store *storage.IndexedStore
}

const (
	recipientPrefix = "recipients"
)

func newRecipientKV(store storage.Interface) (*recipientKV, error) {
	c := storage.DefaultIndexedStoreConfig(recipientPrefix, func() storage.BinaryObject {
		return new(Recipient)
	})
	istore, err := storage.NewIndexedStore(store, c)
	if err != nil {
		return nil, err
	}
	return &recipientKV{
		store: istore,
	}, nil
}

func (kv *recipientKV) error(err error) error {
	if err == storage.ErrObjectExists {
		return ErrRecipientExists
	} else if err == storage.ErrNoObjectExists {
		return ErrNoRecipientExists
	}
	return err
}

func (kv *recipientKV) Get(id string) (Recipient, error) {
	o, err := kv.store.Get(id)
	if err != nil {
		return Recipient{}, kv.error(err)
	}
	r, ok := o.(*Recipient)
	if !ok {
		return Recipient{}, storage.ImpossibleTypeErr(r, o)
	}
	return *r, nil
}

func (kv *recipientKV) Create(r Recipient) error {
	return kv.error(kv.store.Create(&r))
}

func (kv *recipientKV) Replace(r Recipient) error {
	return kv.error(kv.store.Replace(&r))
}

func (kv *recipientKV) Put(r Recipient) error {
	return kv.error(kv.store.Put(&r))
}

func (kv *recipientKV) Delete(id string) error {
	return kv.store.Delete(id)
}

func (kv *recipientKV) List(pattern string, offset, limit int) ([]Recipient, error) {
	objects, err := kv.store.List(storage.DefaultIDIndex, pattern, offset, limit)
	if err != nil {
		return nil, err
	}
	rs := make([]Recipient, len(objects))
	for i, o := range objects {
		r, ok := o.(*Recipient)
		if !ok {
			return nil, storage.ImpossibleTypeErr(r, o)
		}
		rs[i] = *r
	}
	return rs, nil
}
