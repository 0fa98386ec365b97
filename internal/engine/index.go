package engine

import (
	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/store"
)

// Index is a handle to one index of an object store inside a transaction.
type Index struct {
	store *ObjectStore
	name  string
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// ObjectStore returns the store the index belongs to.
func (i *Index) ObjectStore() *ObjectStore {
	return i.store
}

func (i *Index) info() (store.IndexInfo, bool) {
	for _, idx := range i.store.tx.db.catalog[i.store.name].Indexes {
		if idx.Name == i.name {
			return idx, true
		}
	}
	return store.IndexInfo{}, false
}

// KeyPath returns the key path the index is built on.
func (i *Index) KeyPath() string {
	idx, _ := i.info()
	return idx.KeyPath
}

// Unique reports whether the index rejects duplicate keys.
func (i *Index) Unique() bool {
	idx, _ := i.info()
	return idx.Unique
}

func (i *Index) check() error {
	if _, err := i.store.check(false); err != nil {
		return err
	}
	if _, ok := i.info(); !ok {
		return newError(ErrCodeInvalidState, "index %q has been deleted", i.name)
	}
	return nil
}

// Get fetches the first record whose index key lies in r. The request
// result is the record, or nil if there is none.
func (i *Index) Get(r *keyrange.Range) (*Request, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	storeName, name := i.store.name, i.name
	return i.store.tx.addRequest(i, func(stx *store.Tx) (any, error) {
		row, ok, err := stx.SeekIndex(storeName, name, r, nil, nil)
		if err != nil || !ok {
			return nil, err
		}
		return row.Value, nil
	})
}

// OpenCursor opens a cursor over the records whose index keys lie in r,
// ordered by index key and then primary key.
func (i *Index) OpenCursor(r *keyrange.Range) (*Request, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	c := &Cursor{store: i.store.name, index: i.name, r: r}
	req, err := i.store.tx.addRequest(i, c.advance)
	if err != nil {
		return nil, err
	}
	c.req = req
	return req, nil
}
