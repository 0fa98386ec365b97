package engine

import (
	"log/slog"
	"slices"

	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/store"
	"github.com/roach88/storekeeper/internal/value"
)

// ObjectStore is a handle to one object store inside a transaction.
type ObjectStore struct {
	tx   *Transaction
	name string
}

// IndexOptions configures a new index.
type IndexOptions struct {
	Unique bool
}

// Name returns the object store name.
func (s *ObjectStore) Name() string {
	return s.name
}

// Transaction returns the transaction the handle belongs to.
func (s *ObjectStore) Transaction() *Transaction {
	return s.tx
}

// KeyPath returns the key path, or "" for out-of-line keys.
func (s *ObjectStore) KeyPath() string {
	return s.tx.db.catalog[s.name].KeyPath
}

// AutoIncrement reports whether the store has a key generator.
func (s *ObjectStore) AutoIncrement() bool {
	return s.tx.db.catalog[s.name].AutoIncrement
}

// IndexNames returns the index names in sorted order.
func (s *ObjectStore) IndexNames() []string {
	info := s.tx.db.catalog[s.name]
	names := make([]string, 0, len(info.Indexes))
	for _, idx := range info.Indexes {
		names = append(names, idx.Name)
	}
	slices.Sort(names)
	return names
}

func (s *ObjectStore) info() (store.ObjectStoreInfo, error) {
	info, ok := s.tx.db.catalog[s.name]
	if !ok {
		return store.ObjectStoreInfo{}, newError(ErrCodeInvalidState, "object store %q has been deleted", s.name)
	}
	return info, nil
}

// check validates that a request may be made right now.
func (s *ObjectStore) check(write bool) (store.ObjectStoreInfo, error) {
	info, err := s.info()
	if err != nil {
		return info, err
	}
	if s.tx.Finished() || !s.tx.active {
		return info, newError(ErrCodeTransactionInactive, "transaction is not active")
	}
	if write && s.tx.mode == ModeReadOnly {
		return info, newError(ErrCodeReadOnly, "object store %q is read-only in this transaction", s.name)
	}
	return info, nil
}

// Put stores rec, replacing any record with the same key. The key is nil
// for stores with a key path or a key generator, and given otherwise.
// The request result is the key the record was stored under.
func (s *ObjectStore) Put(rec, key value.Value) (*Request, error) {
	return s.write(rec, key, true)
}

// Add stores rec like Put, but fails with ConstraintError if the key exists.
func (s *ObjectStore) Add(rec, key value.Value) (*Request, error) {
	return s.write(rec, key, false)
}

func (s *ObjectStore) write(rec, key value.Value, overwrite bool) (*Request, error) {
	info, err := s.check(true)
	if err != nil {
		return nil, err
	}

	if info.KeyPath != "" && key != nil {
		return nil, newError(ErrCodeData, "object store %q uses in-line keys; no key may be given", s.name)
	}
	if info.KeyPath == "" && !info.AutoIncrement && key == nil {
		return nil, newError(ErrCodeData, "object store %q has no key path or key generator; a key is required", s.name)
	}
	if key != nil && !value.IsKey(key) {
		return nil, newError(ErrCodeData, "%s is not a valid key", value.Format(key))
	}

	// Records are copied when the request is made.
	rec = value.Clone(rec)

	var inline value.Value
	if info.KeyPath != "" {
		v, ok := value.Lookup(rec, info.KeyPath)
		switch {
		case ok && !value.IsKey(v):
			return nil, newError(ErrCodeData, "key path %q yields %s, which is not a valid key", info.KeyPath, value.Format(v))
		case ok:
			inline = v
		case !info.AutoIncrement:
			return nil, newError(ErrCodeData, "record has no value at key path %q", info.KeyPath)
		default:
			if _, isObj := rec.(value.Object); !isObj {
				return nil, newError(ErrCodeData, "generated key cannot be injected into a non-object record")
			}
		}
	}

	name := s.name
	return s.tx.addRequest(s, func(stx *store.Tx) (any, error) {
		k := key
		if inline != nil {
			k = inline
		}

		if k == nil {
			n, err := stx.GenerateKey(name)
			if err != nil {
				return nil, err
			}
			k = value.Int(n)
			if info.KeyPath != "" {
				if err := value.Inject(rec.(value.Object), info.KeyPath, k); err != nil {
					return nil, &Error{Code: ErrCodeData, Message: "inject generated key", Err: err}
				}
			}
		} else if info.AutoIncrement {
			if n, ok := value.AsNumber(k); ok {
				if err := stx.BumpKey(name, n); err != nil {
					return nil, err
				}
			}
		}

		if err := stx.Put(name, k, rec, overwrite); err != nil {
			return nil, err
		}
		return k, nil
	})
}

// Get fetches the record stored under key. The request result is the
// record, or nil if there is none.
func (s *ObjectStore) Get(key value.Value) (*Request, error) {
	r, err := onlyRange(key)
	if err != nil {
		return nil, err
	}
	return s.GetRange(r)
}

// GetRange fetches the first record whose key lies in r.
func (s *ObjectStore) GetRange(r *keyrange.Range) (*Request, error) {
	if _, err := s.check(false); err != nil {
		return nil, err
	}
	name := s.name
	return s.tx.addRequest(s, func(stx *store.Tx) (any, error) {
		row, ok, err := stx.Get(name, r)
		if err != nil || !ok {
			return nil, err
		}
		return row.Value, nil
	})
}

// GetAll fetches the records whose keys lie in r, in key order. A limit
// of zero or less means no limit. The request result is a []value.Value.
func (s *ObjectStore) GetAll(r *keyrange.Range, limit int) (*Request, error) {
	if _, err := s.check(false); err != nil {
		return nil, err
	}
	name := s.name
	return s.tx.addRequest(s, func(stx *store.Tx) (any, error) {
		rows, err := stx.GetAll(name, r, limit)
		if err != nil {
			return nil, err
		}
		out := make([]value.Value, len(rows))
		for i, row := range rows {
			out[i] = row.Value
		}
		return out, nil
	})
}

// Count counts the records whose keys lie in r. The result is an int64.
func (s *ObjectStore) Count(r *keyrange.Range) (*Request, error) {
	if _, err := s.check(false); err != nil {
		return nil, err
	}
	name := s.name
	return s.tx.addRequest(s, func(stx *store.Tx) (any, error) {
		return stx.Count(name, r)
	})
}

// Delete removes the record stored under key, if any.
func (s *ObjectStore) Delete(key value.Value) (*Request, error) {
	r, err := onlyRange(key)
	if err != nil {
		return nil, err
	}
	return s.DeleteRange(r)
}

// DeleteRange removes every record whose key lies in r.
func (s *ObjectStore) DeleteRange(r *keyrange.Range) (*Request, error) {
	if _, err := s.check(true); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, newError(ErrCodeData, "delete requires a key or key range")
	}
	name := s.name
	return s.tx.addRequest(s, func(stx *store.Tx) (any, error) {
		_, err := stx.Delete(name, r)
		return nil, err
	})
}

// Clear removes every record in the store.
func (s *ObjectStore) Clear() (*Request, error) {
	if _, err := s.check(true); err != nil {
		return nil, err
	}
	name := s.name
	return s.tx.addRequest(s, func(stx *store.Tx) (any, error) {
		return nil, stx.Clear(name)
	})
}

// OpenCursor opens a cursor over the records whose keys lie in r, in key
// order. The request fires once per cursor position; see Cursor.
func (s *ObjectStore) OpenCursor(r *keyrange.Range) (*Request, error) {
	if _, err := s.check(false); err != nil {
		return nil, err
	}
	c := &Cursor{store: s.name, r: r}
	req, err := s.tx.addRequest(s, c.advance)
	if err != nil {
		return nil, err
	}
	c.req = req
	return req, nil
}

// Index returns a handle to one index of the store.
func (s *ObjectStore) Index(name string) (*Index, error) {
	info, err := s.info()
	if err != nil {
		return nil, err
	}
	if s.tx.Finished() {
		return nil, newError(ErrCodeInvalidState, "transaction has finished")
	}
	for _, idx := range info.Indexes {
		if idx.Name == name {
			return &Index{store: s, name: name}, nil
		}
	}
	return nil, newError(ErrCodeNotFound, "index %q does not exist on %q", name, s.name)
}

// CreateIndex creates an index and indexes the existing records. Only
// valid in an active version-change transaction. A unique index that the
// existing records violate fails with ConstraintError.
func (s *ObjectStore) CreateIndex(name, keyPath string, opts IndexOptions) (*Index, error) {
	info, err := s.schemaChange()
	if err != nil {
		return nil, err
	}
	for _, idx := range info.Indexes {
		if idx.Name == name {
			return nil, newError(ErrCodeConstraint, "index %q already exists on %q", name, s.name)
		}
	}
	if !value.ValidKeyPath(keyPath) {
		return nil, newError(ErrCodeData, "invalid key path %q", keyPath)
	}

	idx := store.IndexInfo{Name: name, KeyPath: keyPath, Unique: opts.Unique}
	if err := s.tx.stx.CreateIndex(s.name, idx); err != nil {
		return nil, fromStore(err)
	}
	info.Indexes = append(info.Indexes, idx)
	s.tx.db.catalog[s.name] = info

	slog.Debug("index created",
		"db", s.tx.db.name,
		"store", s.name,
		"index", name,
		"key_path", keyPath,
		"unique", opts.Unique,
	)
	return &Index{store: s, name: name}, nil
}

// DeleteIndex deletes an index. Only valid in an active version-change
// transaction.
func (s *ObjectStore) DeleteIndex(name string) error {
	info, err := s.schemaChange()
	if err != nil {
		return err
	}
	if err := s.tx.stx.DeleteIndex(s.name, name); err != nil {
		return fromStore(err)
	}
	info.Indexes = slices.DeleteFunc(info.Indexes, func(idx store.IndexInfo) bool { return idx.Name == name })
	s.tx.db.catalog[s.name] = info
	return nil
}

func (s *ObjectStore) schemaChange() (store.ObjectStoreInfo, error) {
	if s.tx.mode != ModeVersionChange {
		return store.ObjectStoreInfo{}, newError(ErrCodeInvalidState, "indexes can only change in a version change transaction")
	}
	info, err := s.info()
	if err != nil {
		return info, err
	}
	if s.tx.Finished() || !s.tx.active {
		return info, newError(ErrCodeTransactionInactive, "transaction is not active")
	}
	return info, nil
}

func onlyRange(key value.Value) (*keyrange.Range, error) {
	r, err := keyrange.Only(key)
	if err != nil {
		return nil, &Error{Code: ErrCodeData, Message: "invalid key", Err: err}
	}
	return r, nil
}
