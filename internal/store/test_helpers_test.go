package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/storekeeper/internal/value"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// inTx runs fn in a transaction and commits it, failing the test on error.
func inTx(t *testing.T, s *Store, fn func(tx *Tx)) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

// createUsers creates a "users" store keyed by id with a unique email index.
func createUsers(t *testing.T, tx *Tx) {
	t.Helper()
	err := tx.CreateObjectStore(ObjectStoreInfo{
		Name:    "users",
		KeyPath: "id",
		Indexes: []IndexInfo{
			{Name: "email", KeyPath: "email", Unique: true},
			{Name: "age", KeyPath: "age"},
		},
	})
	if err != nil {
		t.Fatalf("CreateObjectStore() failed: %v", err)
	}
}

func user(id int64, email string, age int64) value.Object {
	return value.NewObject(
		value.O("id", value.Int(id)),
		value.O("email", value.String(email)),
		value.O("age", value.Int(age)),
	)
}
