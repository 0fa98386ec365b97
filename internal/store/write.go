package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/value"
)

// maxGeneratedKey is the largest key a key generator hands out (2^53).
const maxGeneratedKey = 1 << 53

// GenerateKey returns the next key of an auto-increment store and advances
// the generator. Returns ErrConstraint once the generator is exhausted.
func (t *Tx) GenerateKey(storeName string) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT next_key FROM object_stores WHERE name = ?
	`, storeName).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("generate key: object store %q: %w", storeName, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("generate key for %q: %w", storeName, err)
	}
	if next > maxGeneratedKey {
		return 0, fmt.Errorf("generate key for %q: generator exhausted: %w", storeName, ErrConstraint)
	}

	if _, err := t.tx.ExecContext(t.ctx, `
		UPDATE object_stores SET next_key = ? WHERE name = ?
	`, next+1, storeName); err != nil {
		return 0, fmt.Errorf("advance key generator for %q: %w", storeName, err)
	}
	return next, nil
}

// BumpKey moves the key generator past an explicitly supplied numeric key.
// Keys below the current generator value leave it unchanged.
func (t *Tx) BumpKey(storeName string, key float64) error {
	if key < 1 {
		return nil
	}
	next := int64(maxGeneratedKey) + 1
	if key < maxGeneratedKey {
		next = int64(math.Floor(key)) + 1
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		UPDATE object_stores SET next_key = ?
		WHERE name = ? AND next_key < ?
	`, next, storeName, next); err != nil {
		return fmt.Errorf("bump key generator for %q: %w", storeName, err)
	}
	return nil
}

// Put writes rec under key and refreshes its index entries.
//
// With overwrite false an existing record under key is a constraint error
// (add semantics); with overwrite true it is replaced (put semantics).
// A unique index already holding the record's index key for a different
// primary key is always a constraint error.
func (t *Tx) Put(storeName string, key, rec value.Value, overwrite bool) error {
	if err := t.requireStore(storeName); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	encKey, err := value.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("put: %w: %v", ErrInvalidKey, err)
	}
	keyJSON, err := marshalRecord(key)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	recJSON, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	if !overwrite {
		exists, err := t.recordExists(storeName, encKey)
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		if exists {
			return fmt.Errorf("put: key %s already exists in %q: %w", keyJSON, storeName, ErrConstraint)
		}
	}

	indexes, err := t.indexes(storeName)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	var entries []indexEntry
	for _, idx := range indexes {
		entry, ok, err := computeEntry(idx, rec)
		if err != nil {
			return fmt.Errorf("put: index %q: %w", idx.Name, err)
		}
		if !ok {
			continue
		}
		if idx.Unique {
			taken, err := t.uniqueTaken(storeName, idx.Name, entry.key, encKey)
			if err != nil {
				return fmt.Errorf("put: %w", err)
			}
			if taken {
				return fmt.Errorf("put: index %q already holds %s: %w", idx.Name, entry.keyJSON, ErrConstraint)
			}
		}
		entries = append(entries, entry)
	}

	if _, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM index_entries WHERE store_name = ? AND primary_key = ?
	`, storeName, encKey); err != nil {
		return fmt.Errorf("put: clear index entries: %w", err)
	}

	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records (store_name, key, key_json, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_name, key) DO UPDATE SET
			key_json = excluded.key_json,
			value = excluded.value
	`, storeName, encKey, keyJSON, recJSON); err != nil {
		return fmt.Errorf("put: write record: %w", err)
	}

	for _, entry := range entries {
		if err := t.insertEntry(storeName, encKey, entry); err != nil {
			return fmt.Errorf("put: %w", err)
		}
	}
	return nil
}

// Delete removes every record whose key lies in r and returns how many
// were removed. Index entries follow through the foreign key cascade.
// A nil range deletes nothing; use Clear to empty a store.
func (t *Tx) Delete(storeName string, r *keyrange.Range) (int64, error) {
	if r == nil {
		return 0, nil
	}
	if err := t.requireStore(storeName); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	clause, args := rangeClause("key", r)
	result, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM records WHERE store_name = ?`+clause,
		append([]any{storeName}, args...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete from %q: %w", storeName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %q: rows affected: %w", storeName, err)
	}
	return n, nil
}

// Clear removes every record of a store. The key generator is not reset.
func (t *Tx) Clear(storeName string) error {
	if err := t.requireStore(storeName); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE store_name = ?`, storeName); err != nil {
		return fmt.Errorf("clear %q: %w", storeName, err)
	}
	return nil
}

func (t *Tx) recordExists(storeName string, encKey []byte) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT 1 FROM records WHERE store_name = ? AND key = ?
	`, storeName, encKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return true, nil
}

func (t *Tx) uniqueTaken(storeName, indexName string, indexKey, primary []byte) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT 1 FROM index_entries
		WHERE store_name = ? AND index_name = ? AND index_key = ? AND primary_key != ?
		LIMIT 1
	`, storeName, indexName, indexKey, primary).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check unique index %q: %w", indexName, err)
	}
	return true, nil
}
