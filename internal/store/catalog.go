package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storekeeper/internal/value"
)

// Tx is one SQLite transaction. All catalog and record operations run on a Tx.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// ObjectStoreInfo describes one object store in the catalog.
// An empty KeyPath means keys are supplied out of line.
type ObjectStoreInfo struct {
	Name          string
	KeyPath       string
	AutoIncrement bool
	Indexes       []IndexInfo
}

// IndexInfo describes one secondary index.
type IndexInfo struct {
	Name    string
	KeyPath string
	Unique  bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// SetVersion writes the caller-visible schema version.
// Takes effect only if the transaction commits.
func (t *Tx) SetVersion(version int64) error {
	if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Catalog returns every object store with its indexes, ordered by name.
// Returns an empty slice (not nil) for an empty database.
func (t *Tx) Catalog() ([]ObjectStoreInfo, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT name, COALESCE(key_path, ''), auto_increment
		FROM object_stores
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query object stores: %w", err)
	}

	stores := []ObjectStoreInfo{}
	byName := map[string]int{}
	for rows.Next() {
		var info ObjectStoreInfo
		if err := rows.Scan(&info.Name, &info.KeyPath, &info.AutoIncrement); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan object store: %w", err)
		}
		byName[info.Name] = len(stores)
		stores = append(stores, info)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate object stores: %w", err)
	}
	rows.Close()

	idxRows, err := t.tx.QueryContext(t.ctx, `
		SELECT store_name, name, key_path, is_unique
		FROM indexes
		ORDER BY store_name ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer idxRows.Close()

	for idxRows.Next() {
		var storeName string
		var idx IndexInfo
		if err := idxRows.Scan(&storeName, &idx.Name, &idx.KeyPath, &idx.Unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		if i, ok := byName[storeName]; ok {
			stores[i].Indexes = append(stores[i].Indexes, idx)
		}
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}

	return stores, nil
}

// CreateObjectStore adds a store to the catalog.
// Returns ErrExists if a store with that name already exists.
func (t *Tx) CreateObjectStore(info ObjectStoreInfo) error {
	var keyPath any
	if info.KeyPath != "" {
		keyPath = info.KeyPath
	}

	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO object_stores (name, key_path, auto_increment)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, info.Name, keyPath, info.AutoIncrement)
	if err != nil {
		return fmt.Errorf("create object store %q: %w", info.Name, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("create object store %q: rows affected: %w", info.Name, err)
	} else if n == 0 {
		return fmt.Errorf("create object store %q: %w", info.Name, ErrExists)
	}

	for _, idx := range info.Indexes {
		if err := t.CreateIndex(info.Name, idx); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObjectStore removes a store with all its records and indexes.
// Returns ErrNotFound if the store does not exist.
func (t *Tx) DeleteObjectStore(name string) error {
	result, err := t.tx.ExecContext(t.ctx, `DELETE FROM object_stores WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete object store %q: %w", name, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("delete object store %q: rows affected: %w", name, err)
	} else if n == 0 {
		return fmt.Errorf("delete object store %q: %w", name, ErrNotFound)
	}
	return nil
}

// CreateIndex adds an index to a store and indexes the existing records.
// Returns ErrExists for a duplicate name, ErrNotFound for a missing store
// and ErrConstraint if a unique index would be violated by existing records.
func (t *Tx) CreateIndex(storeName string, idx IndexInfo) error {
	if err := t.requireStore(storeName); err != nil {
		return fmt.Errorf("create index %q: %w", idx.Name, err)
	}

	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO indexes (store_name, name, key_path, is_unique)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_name, name) DO NOTHING
	`, storeName, idx.Name, idx.KeyPath, idx.Unique)
	if err != nil {
		return fmt.Errorf("create index %q on %q: %w", idx.Name, storeName, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("create index %q on %q: rows affected: %w", idx.Name, storeName, err)
	} else if n == 0 {
		return fmt.Errorf("create index %q on %q: %w", idx.Name, storeName, ErrExists)
	}

	// Collect first; the single connection cannot interleave reads and writes.
	type pending struct {
		primary []byte
		entry   indexEntry
	}
	var entries []pending
	seen := map[string]bool{}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT key, value FROM records WHERE store_name = ? ORDER BY key ASC
	`, storeName)
	if err != nil {
		return fmt.Errorf("create index %q: scan records: %w", idx.Name, err)
	}
	for rows.Next() {
		var primary []byte
		var raw string
		if err := rows.Scan(&primary, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("create index %q: scan record: %w", idx.Name, err)
		}
		rec, err := unmarshalRecord(raw)
		if err != nil {
			rows.Close()
			return fmt.Errorf("create index %q: %w", idx.Name, err)
		}
		entry, ok, err := computeEntry(idx, rec)
		if err != nil {
			rows.Close()
			return fmt.Errorf("create index %q: %w", idx.Name, err)
		}
		if !ok {
			continue
		}
		if idx.Unique {
			if seen[string(entry.key)] {
				rows.Close()
				return fmt.Errorf("create index %q: duplicate key %s: %w", idx.Name, entry.keyJSON, ErrConstraint)
			}
			seen[string(entry.key)] = true
		}
		entries = append(entries, pending{primary: primary, entry: entry})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("create index %q: iterate records: %w", idx.Name, err)
	}
	rows.Close()

	for _, p := range entries {
		if err := t.insertEntry(storeName, p.primary, p.entry); err != nil {
			return fmt.Errorf("create index %q: %w", idx.Name, err)
		}
	}
	return nil
}

// DeleteIndex removes an index and its entries.
// Returns ErrNotFound if the index does not exist.
func (t *Tx) DeleteIndex(storeName, name string) error {
	result, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM indexes WHERE store_name = ? AND name = ?
	`, storeName, name)
	if err != nil {
		return fmt.Errorf("delete index %q on %q: %w", name, storeName, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("delete index %q on %q: rows affected: %w", name, storeName, err)
	} else if n == 0 {
		return fmt.Errorf("delete index %q on %q: %w", name, storeName, ErrNotFound)
	}
	return nil
}

// indexes returns the indexes of one store.
func (t *Tx) indexes(storeName string) ([]IndexInfo, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT name, key_path, is_unique FROM indexes
		WHERE store_name = ?
		ORDER BY name ASC
	`, storeName)
	if err != nil {
		return nil, fmt.Errorf("query indexes of %q: %w", storeName, err)
	}
	defer rows.Close()

	var out []IndexInfo
	for rows.Next() {
		var idx IndexInfo
		if err := rows.Scan(&idx.Name, &idx.KeyPath, &idx.Unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out = append(out, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return out, nil
}

func (t *Tx) requireStore(name string) error {
	var count int
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM object_stores WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return fmt.Errorf("check object store %q: %w", name, err)
	}
	if count == 0 {
		return fmt.Errorf("object store %q: %w", name, ErrNotFound)
	}
	return nil
}

// indexEntry is the computed index key of one record for one index.
type indexEntry struct {
	index   string
	unique  bool
	key     []byte
	keyJSON string
}

// computeEntry evaluates the index key path against rec.
// Records whose key path value is missing or not a valid key are not indexed.
func computeEntry(idx IndexInfo, rec value.Value) (indexEntry, bool, error) {
	v, ok := value.Lookup(rec, idx.KeyPath)
	if !ok || !value.IsKey(v) {
		return indexEntry{}, false, nil
	}
	enc, err := value.EncodeKey(v)
	if err != nil {
		return indexEntry{}, false, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	keyJSON, err := marshalRecord(v)
	if err != nil {
		return indexEntry{}, false, err
	}
	return indexEntry{index: idx.Name, unique: idx.Unique, key: enc, keyJSON: keyJSON}, true, nil
}

func (t *Tx) insertEntry(storeName string, primary []byte, e indexEntry) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO index_entries (store_name, index_name, index_key, index_key_json, primary_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, storeName, e.index, e.key, e.keyJSON, primary)
	if err != nil {
		return fmt.Errorf("insert index entry: %w", err)
	}
	return nil
}
