package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storekeeper/internal/value"
)

// newTestFactory creates a factory over a temporary directory.
func newTestFactory(t *testing.T, opts ...Option) *Factory {
	t.Helper()
	f := NewFactory(t.TempDir(), opts...)
	t.Cleanup(func() { f.Close() })
	return f
}

// openDB opens name at version, running upgrade if an upgrade is needed,
// and flushes the loop until the open request finishes.
func openDB(t *testing.T, f *Factory, name string, version int64, upgrade func(*VersionChangeEvent)) *Database {
	t.Helper()

	var db *Database
	var openErr error
	f.Open(name, version).
		OnUpgradeNeeded(func(ev *VersionChangeEvent) {
			if upgrade != nil {
				upgrade(ev)
			}
		}).
		OnSuccess(func(d *Database) { db = d }).
		OnError(func(err error) { openErr = err })
	f.Flush()

	require.NoError(t, openErr)
	require.NotNil(t, db, "open did not finish")
	return db
}

// createStore returns an upgrade handler that creates one object store.
func createStore(t *testing.T, name string, opts ObjectStoreOptions) func(*VersionChangeEvent) {
	return func(ev *VersionChangeEvent) {
		_, err := ev.Database.CreateObjectStore(name, opts)
		require.NoError(t, err)
	}
}

// objectStore opens a one-store transaction and returns the store handle.
func objectStore(t *testing.T, db *Database, name string, mode Mode) (*Transaction, *ObjectStore) {
	t.Helper()
	tx, err := db.Transaction([]string{name}, mode)
	require.NoError(t, err)
	s, err := tx.ObjectStore(name)
	require.NoError(t, err)
	return tx, s
}

// getRecord reads one record in its own transaction.
func getRecord(t *testing.T, f *Factory, db *Database, storeName string, key value.Value) value.Value {
	t.Helper()
	_, s := objectStore(t, db, storeName, ModeReadOnly)
	req, err := s.Get(key)
	require.NoError(t, err)

	var got value.Value
	done := false
	req.OnSuccess(func(r *Request) {
		got = r.Value()
		done = true
	})
	f.Flush()
	require.True(t, done, "get did not finish")
	return got
}

// collectCursor drains a cursor request and returns the visited keys
// (index keys for index cursors) and primary keys.
func collectCursor(t *testing.T, f *Factory, req *Request) (keys, primaryKeys []value.Value) {
	t.Helper()
	finished := false
	req.OnSuccess(func(r *Request) {
		c := r.Cursor()
		if c == nil {
			finished = true
			return
		}
		keys = append(keys, c.Key())
		primaryKeys = append(primaryKeys, c.PrimaryKey())
		require.NoError(t, c.Continue())
	})
	f.Flush()
	require.True(t, finished, "cursor did not reach the end")
	return keys, primaryKeys
}

func note(id int64, text string) value.Object {
	return value.NewObject(value.O("id", value.Int(id)), value.O("text", value.String(text)))
}
