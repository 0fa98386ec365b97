package store

import (
	"errors"
	"testing"

	"github.com/roach88/storekeeper/internal/value"
)

func TestCatalog_EmptyDatabase(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		stores, err := tx.Catalog()
		if err != nil {
			t.Fatalf("Catalog() failed: %v", err)
		}
		if stores == nil {
			t.Error("Catalog() returned nil, want empty slice")
		}
		if len(stores) != 0 {
			t.Errorf("Catalog() returned %d stores, want 0", len(stores))
		}
	})
}

func TestCreateObjectStore_AppearsInCatalog(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		createUsers(t, tx)
		if err := tx.CreateObjectStore(ObjectStoreInfo{Name: "notes", AutoIncrement: true}); err != nil {
			t.Fatalf("CreateObjectStore(notes) failed: %v", err)
		}
	})

	inTx(t, s, func(tx *Tx) {
		stores, err := tx.Catalog()
		if err != nil {
			t.Fatalf("Catalog() failed: %v", err)
		}
		if len(stores) != 2 {
			t.Fatalf("Catalog() returned %d stores, want 2", len(stores))
		}

		notes, users := stores[0], stores[1]
		if notes.Name != "notes" || notes.KeyPath != "" || !notes.AutoIncrement {
			t.Errorf("notes = %+v", notes)
		}
		if users.Name != "users" || users.KeyPath != "id" || users.AutoIncrement {
			t.Errorf("users = %+v", users)
		}
		if len(users.Indexes) != 2 {
			t.Fatalf("users has %d indexes, want 2", len(users.Indexes))
		}
		// Indexes are ordered by name.
		if users.Indexes[0].Name != "age" || users.Indexes[1].Name != "email" || !users.Indexes[1].Unique {
			t.Errorf("users indexes = %+v", users.Indexes)
		}
	})
}

func TestCreateObjectStore_Duplicate(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		createUsers(t, tx)
		err := tx.CreateObjectStore(ObjectStoreInfo{Name: "users"})
		if !errors.Is(err, ErrExists) {
			t.Errorf("duplicate CreateObjectStore() error = %v, want ErrExists", err)
		}
	})
}

func TestDeleteObjectStore_CascadesRecords(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		createUsers(t, tx)
		if err := tx.Put("users", value.Int(1), user(1, "a@x", 30), false); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	})

	inTx(t, s, func(tx *Tx) {
		if err := tx.DeleteObjectStore("users"); err != nil {
			t.Fatalf("DeleteObjectStore() failed: %v", err)
		}
	})

	var records, entries int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&records); err != nil {
		t.Fatal(err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM index_entries`).Scan(&entries); err != nil {
		t.Fatal(err)
	}
	if records != 0 || entries != 0 {
		t.Errorf("after delete: %d records, %d index entries; want 0, 0", records, entries)
	}

	inTx(t, s, func(tx *Tx) {
		err := tx.DeleteObjectStore("users")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteObjectStore() error = %v, want ErrNotFound", err)
		}
	})
}

func TestCreateIndex_PopulatesExistingRecords(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		if err := tx.CreateObjectStore(ObjectStoreInfo{Name: "users", KeyPath: "id"}); err != nil {
			t.Fatalf("CreateObjectStore() failed: %v", err)
		}
		for i, email := range []string{"c@x", "a@x", "b@x"} {
			if err := tx.Put("users", value.Int(int64(i+1)), user(int64(i+1), email, 20), false); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}
		}
		if err := tx.CreateIndex("users", IndexInfo{Name: "email", KeyPath: "email", Unique: true}); err != nil {
			t.Fatalf("CreateIndex() failed: %v", err)
		}
	})

	inTx(t, s, func(tx *Tx) {
		row, ok, err := tx.SeekIndex("users", "email", nil, nil, nil)
		if err != nil || !ok {
			t.Fatalf("SeekIndex() = %v, %v", ok, err)
		}
		if row.IndexKey != value.String("a@x") || row.Key != value.Int(2) {
			t.Errorf("first index row = %v/%v, want \"a@x\"/2", row.IndexKey, row.Key)
		}
	})
}

func TestCreateIndex_UniqueViolationOnExistingRecords(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		if err := tx.CreateObjectStore(ObjectStoreInfo{Name: "users", KeyPath: "id"}); err != nil {
			t.Fatalf("CreateObjectStore() failed: %v", err)
		}
		if err := tx.Put("users", value.Int(1), user(1, "same@x", 20), false); err != nil {
			t.Fatal(err)
		}
		if err := tx.Put("users", value.Int(2), user(2, "same@x", 21), false); err != nil {
			t.Fatal(err)
		}

		err := tx.CreateIndex("users", IndexInfo{Name: "email", KeyPath: "email", Unique: true})
		if !errors.Is(err, ErrConstraint) {
			t.Errorf("CreateIndex() error = %v, want ErrConstraint", err)
		}
	})
}

func TestCreateIndex_DuplicateAndMissingStore(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		createUsers(t, tx)

		err := tx.CreateIndex("users", IndexInfo{Name: "email", KeyPath: "email"})
		if !errors.Is(err, ErrExists) {
			t.Errorf("duplicate CreateIndex() error = %v, want ErrExists", err)
		}

		err = tx.CreateIndex("missing", IndexInfo{Name: "x", KeyPath: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("CreateIndex() on missing store error = %v, want ErrNotFound", err)
		}
	})
}

func TestDeleteIndex(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) {
		createUsers(t, tx)
		if err := tx.Put("users", value.Int(1), user(1, "a@x", 30), false); err != nil {
			t.Fatal(err)
		}
		if err := tx.DeleteIndex("users", "email"); err != nil {
			t.Fatalf("DeleteIndex() failed: %v", err)
		}
		if err := tx.DeleteIndex("users", "email"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteIndex() error = %v, want ErrNotFound", err)
		}
		// The unique constraint is gone with the index.
		if err := tx.Put("users", value.Int(2), user(2, "a@x", 31), false); err != nil {
			t.Errorf("Put() after DeleteIndex failed: %v", err)
		}
	})
}
