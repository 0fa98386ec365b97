package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"catalog_meta", "object_stores", "indexes", "records", "index_entries"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/directory/test.db")
	if err == nil {
		t.Error("Open() with invalid path should fail")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db returned error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestMigrations_RecordCatalogVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	err := s.db.QueryRow(`SELECT value FROM catalog_meta WHERE key = 'catalog_version'`).Scan(&version)
	if err != nil {
		t.Fatalf("read catalog version: %v", err)
	}
	if version != currentCatalogVersion {
		t.Errorf("catalog version = %d, want %d", version, currentCatalogVersion)
	}

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_index_entries_primary'",
	).Scan(&name)
	if err != nil {
		t.Errorf("v1 migration index missing: %v", err)
	}
}

func TestVersion_NewDatabaseIsZero(t *testing.T) {
	s := createTestStore(t)

	v, err := s.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if v != 0 {
		t.Errorf("Version() = %d, want 0", v)
	}
}

func TestSetVersion_OnlyOnCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := tx.SetVersion(3); err != nil {
		t.Fatalf("SetVersion() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	if v, _ := s.Version(ctx); v != 0 {
		t.Errorf("Version() after rollback = %d, want 0", v)
	}

	inTx(t, s, func(tx *Tx) {
		if err := tx.SetVersion(3); err != nil {
			t.Fatalf("SetVersion() failed: %v", err)
		}
	})
	if v, _ := s.Version(ctx); v != 3 {
		t.Errorf("Version() after commit = %d, want 3", v)
	}
}

func TestRollback_AfterCommitIsNoop(t *testing.T) {
	s := createTestStore(t)

	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit returned error: %v", err)
	}
}

func TestExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	ok, err := Exists(path)
	if err != nil || ok {
		t.Fatalf("Exists() before open = %v, %v; want false, nil", ok, err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	ok, err = Exists(path)
	if err != nil || !ok {
		t.Fatalf("Exists() after open = %v, %v; want true, nil", ok, err)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if ok, _ := Exists(path); ok {
		t.Error("database still exists after Remove()")
	}

	if err := Remove(path); err != nil {
		t.Errorf("Remove() of missing database returned error: %v", err)
	}
}

func TestExists_Directory(t *testing.T) {
	if _, err := Exists(t.TempDir()); err == nil {
		t.Error("Exists() on a directory should fail")
	}
}
