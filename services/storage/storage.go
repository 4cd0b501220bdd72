package storage

import "github.com/pkg/errors"

var (
	// ErrNoKeyExists is returned by Get when a key is missing.
	ErrNoKeyExists = errors.New("no key exists")
)

// ReadOperator is the set of read operations available inside a transaction.
type ReadOperator interface {
	// Get retrieves a value.
	Get(key string) (*KeyValue, error)
	// Exists reports whether a key is present.
	Exists(key string) (bool, error)
	// List returns every key/value whose key starts with prefix, in key order.
	List(prefix string) ([]*KeyValue, error)
}

// WriteOperator is the set of write operations available inside a read-write transaction.
type WriteOperator interface {
	Put(key string, value []byte) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error
}

// ReadOnlyTx is a read only transaction.
// Rollback must always be called once the transaction is no longer needed.
type ReadOnlyTx interface {
	ReadOperator
	Rollback() error
}

// Tx is a read-write transaction.
// Only one Tx may be open per store at a time, so everything done inside
// a single Tx is serialized with respect to every other writer.
type Tx interface {
	ReadOnlyTx
	WriteOperator
	Commit() error
}

type TxOperator interface {
	BeginReadOnlyTx() (ReadOnlyTx, error)
	BeginTx() (Tx, error)
}

// Interface is a namespaced key/value store.
type Interface interface {
	// View runs f in a read only transaction which is always rolled back.
	View(f func(ReadOnlyTx) error) error
	// Update runs f in a read-write transaction.
	// The transaction is committed only if f returns nil.
	Update(f func(Tx) error) error
}

// DoView implements Interface.View for a TxOperator.
func DoView(o TxOperator, f func(ReadOnlyTx) error) error {
	tx, err := o.BeginReadOnlyTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

// DoUpdate implements Interface.Update for a TxOperator.
func DoUpdate(o TxOperator, f func(Tx) error) error {
	tx, err := o.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type KeyValue struct {
	Key   string
	Value []byte
}

// page returns the values of the list entries accepted by match, skipping
// the first offset matches and returning at most limit.
// A negative limit returns every match.
func page(list []*KeyValue, match func(value []byte) bool, offset, limit int) []string {
	var matches []string
	i := 0
	for _, kv := range list {
		if !match(kv.Value) {
			continue
		}
		i++
		if i <= offset {
			continue
		}
		matches = append(matches, string(kv.Value))
		if limit >= 0 && len(matches) == limit {
			break
		}
	}
	return matches
}
