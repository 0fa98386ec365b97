package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/value"
)

// Row is one record as seen by a read or a cursor step.
// IndexKey and EncodedIndexKey are set only for index reads.
type Row struct {
	Key             value.Value
	EncodedKey      []byte
	Value           value.Value
	IndexKey        value.Value
	EncodedIndexKey []byte
}

// Get returns the first record whose key lies in r.
// The bool is false when no record matches.
func (t *Tx) Get(storeName string, r *keyrange.Range) (Row, bool, error) {
	return t.Seek(storeName, r, nil)
}

// Seek returns the first record in r whose key sorts strictly after the
// encoded key after. A nil after starts at the beginning of r.
func (t *Tx) Seek(storeName string, r *keyrange.Range, after []byte) (Row, bool, error) {
	clause, args := rangeClause("key", r)
	query := `SELECT key, key_json, value FROM records WHERE store_name = ?` + clause
	args = append([]any{storeName}, args...)
	if after != nil {
		query += ` AND key > ?`
		args = append(args, after)
	}
	query += ` ORDER BY key ASC LIMIT 1`

	var row Row
	var keyJSON, raw string
	err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(&row.EncodedKey, &keyJSON, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("seek %q: %w", storeName, err)
	}

	if row.Key, err = unmarshalRecord(keyJSON); err != nil {
		return Row{}, false, fmt.Errorf("seek %q: key: %w", storeName, err)
	}
	if row.Value, err = unmarshalRecord(raw); err != nil {
		return Row{}, false, fmt.Errorf("seek %q: %w", storeName, err)
	}
	return row, true, nil
}

// GetAll returns the records whose keys lie in r in key order.
// A limit of zero or less means no limit.
// Returns an empty slice (not nil) if nothing matches.
func (t *Tx) GetAll(storeName string, r *keyrange.Range, limit int) ([]Row, error) {
	clause, args := rangeClause("key", r)
	query := `SELECT key, key_json, value FROM records WHERE store_name = ?` + clause + ` ORDER BY key ASC`
	args = append([]any{storeName}, args...)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get all from %q: %w", storeName, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var row Row
		var keyJSON, raw string
		if err := rows.Scan(&row.EncodedKey, &keyJSON, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if row.Key, err = unmarshalRecord(keyJSON); err != nil {
			return nil, fmt.Errorf("get all from %q: key: %w", storeName, err)
		}
		if row.Value, err = unmarshalRecord(raw); err != nil {
			return nil, fmt.Errorf("get all from %q: %w", storeName, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Count returns how many records have keys in r.
func (t *Tx) Count(storeName string, r *keyrange.Range) (int64, error) {
	clause, args := rangeClause("key", r)
	var n int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(*) FROM records WHERE store_name = ?`+clause,
		append([]any{storeName}, args...)...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", storeName, err)
	}
	return n, nil
}

// SeekIndex returns the first index entry in r ordered by (index key,
// primary key) that sorts strictly after (afterIndex, afterPrimary),
// joined with its record. A nil afterIndex starts at the beginning of r.
func (t *Tx) SeekIndex(storeName, indexName string, r *keyrange.Range, afterIndex, afterPrimary []byte) (Row, bool, error) {
	clause, args := rangeClause("e.index_key", r)
	query := `
		SELECT e.index_key, e.index_key_json, r.key, r.key_json, r.value
		FROM index_entries e
		JOIN records r ON r.store_name = e.store_name AND r.key = e.primary_key
		WHERE e.store_name = ? AND e.index_name = ?` + clause
	args = append([]any{storeName, indexName}, args...)
	if afterIndex != nil {
		query += ` AND (e.index_key > ? OR (e.index_key = ? AND e.primary_key > ?))`
		args = append(args, afterIndex, afterIndex, afterPrimary)
	}
	query += ` ORDER BY e.index_key ASC, e.primary_key ASC LIMIT 1`

	var row Row
	var indexJSON, keyJSON, raw string
	err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(
		&row.EncodedIndexKey, &indexJSON, &row.EncodedKey, &keyJSON, &raw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("seek index %q on %q: %w", indexName, storeName, err)
	}

	if row.IndexKey, err = unmarshalRecord(indexJSON); err != nil {
		return Row{}, false, fmt.Errorf("seek index %q: index key: %w", indexName, err)
	}
	if row.Key, err = unmarshalRecord(keyJSON); err != nil {
		return Row{}, false, fmt.Errorf("seek index %q: key: %w", indexName, err)
	}
	if row.Value, err = unmarshalRecord(raw); err != nil {
		return Row{}, false, fmt.Errorf("seek index %q: %w", indexName, err)
	}
	return row, true, nil
}

// rangeClause renders r as SQL conditions on col, each prefixed with AND.
// A nil range renders as no condition.
func rangeClause(col string, r *keyrange.Range) (string, []any) {
	var clause string
	var args []any
	if lo := r.EncodedLower(); lo != nil {
		op := ">="
		if r.IsOpenLower() {
			op = ">"
		}
		clause += fmt.Sprintf(" AND %s %s ?", col, op)
		args = append(args, lo)
	}
	if hi := r.EncodedUpper(); hi != nil {
		op := "<="
		if r.IsOpenUpper() {
			op = "<"
		}
		clause += fmt.Sprintf(" AND %s %s ?", col, op)
		args = append(args, hi)
	}
	return clause, args
}
