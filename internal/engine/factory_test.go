package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_NewDatabaseFiresUpgradeNeeded(t *testing.T) {
	f := newTestFactory(t)

	var ev *VersionChangeEvent
	db := openDB(t, f, "app", 1, func(e *VersionChangeEvent) {
		ev = e
		_, err := e.Database.CreateObjectStore("notes", ObjectStoreOptions{KeyPath: "id"})
		require.NoError(t, err)
	})

	require.NotNil(t, ev)
	assert.Equal(t, int64(0), ev.OldVersion)
	assert.Equal(t, int64(1), ev.NewVersion)
	assert.Equal(t, ModeVersionChange, ev.Transaction.Mode())
	assert.Equal(t, int64(1), db.Version())
	assert.Equal(t, []string{"notes"}, db.ObjectStoreNames())
}

func TestOpen_CurrentVersionSkipsUpgrade(t *testing.T) {
	f := newTestFactory(t)

	first := openDB(t, f, "app", 1, createStore(t, "notes", ObjectStoreOptions{}))
	first.Close()

	upgraded := false
	second := openDB(t, f, "app", 1, func(*VersionChangeEvent) { upgraded = true })
	assert.False(t, upgraded)
	assert.Equal(t, []string{"notes"}, second.ObjectStoreNames())

	// Version 0 opens whatever is stored.
	third := openDB(t, f, "app", 0, func(*VersionChangeEvent) { upgraded = true })
	assert.False(t, upgraded)
	assert.Equal(t, int64(1), third.Version())
}

func TestOpen_LowerVersionFails(t *testing.T) {
	f := newTestFactory(t)
	openDB(t, f, "app", 3, nil).Close()

	var openErr error
	f.Open("app", 2).OnError(func(err error) { openErr = err })
	f.Flush()

	assert.Equal(t, ErrCodeVersion, CodeOf(openErr))
}

func TestOpen_NegativeVersionFails(t *testing.T) {
	f := newTestFactory(t)

	req := f.Open("app", -1)
	f.Flush()

	assert.True(t, req.Done())
	assert.Equal(t, ErrCodeData, CodeOf(req.Err()))
}

func TestOpen_AbortedUpgradeRestoresPreviousState(t *testing.T) {
	f := newTestFactory(t)
	openDB(t, f, "app", 1, createStore(t, "a", ObjectStoreOptions{})).Close()

	var openErr error
	var upgradeConn *Database
	f.Open("app", 2).
		OnUpgradeNeeded(func(ev *VersionChangeEvent) {
			upgradeConn = ev.Database
			_, err := ev.Database.CreateObjectStore("b", ObjectStoreOptions{})
			require.NoError(t, err)
			require.NoError(t, ev.Transaction.Abort())
		}).
		OnError(func(err error) { openErr = err })
	f.Flush()

	assert.True(t, IsAbortError(openErr), "open error = %v", openErr)
	require.NotNil(t, upgradeConn)
	assert.True(t, upgradeConn.Closed())
	assert.Equal(t, int64(1), upgradeConn.Version())

	db := openDB(t, f, "app", 0, nil)
	assert.Equal(t, int64(1), db.Version())
	assert.Equal(t, []string{"a"}, db.ObjectStoreNames())
}

func TestOpen_UpgradeBlockedUntilOtherConnectionCloses(t *testing.T) {
	f := newTestFactory(t)
	old := openDB(t, f, "app", 1, createStore(t, "a", ObjectStoreOptions{}))

	var versionChange *VersionChangeEvent
	old.OnVersionChange(func(ev *VersionChangeEvent) { versionChange = ev })

	blocked := false
	var upgraded *Database
	f.Open("app", 2).
		OnBlocked(func(*VersionChangeEvent) { blocked = true }).
		OnSuccess(func(d *Database) { upgraded = d })
	f.Flush()

	require.NotNil(t, versionChange)
	assert.Equal(t, int64(1), versionChange.OldVersion)
	assert.Equal(t, int64(2), versionChange.NewVersion)
	assert.True(t, blocked)
	assert.Nil(t, upgraded, "upgrade must wait for the old connection")

	old.Close()
	f.Flush()

	require.NotNil(t, upgraded)
	assert.Equal(t, int64(2), upgraded.Version())
}

func TestOpen_ConnectionClosingOnVersionChangeDoesNotBlock(t *testing.T) {
	f := newTestFactory(t)
	old := openDB(t, f, "app", 1, nil)
	old.OnVersionChange(func(*VersionChangeEvent) { old.Close() })

	blocked := false
	var upgraded *Database
	f.Open("app", 2).
		OnBlocked(func(*VersionChangeEvent) { blocked = true }).
		OnSuccess(func(d *Database) { upgraded = d })
	f.Flush()

	assert.False(t, blocked)
	require.NotNil(t, upgraded)
}

func TestDeleteDatabase(t *testing.T) {
	f := newTestFactory(t)
	db := openDB(t, f, "gone", 4, createStore(t, "a", ObjectStoreOptions{}))
	db.OnVersionChange(func(*VersionChangeEvent) { db.Close() })

	names, err := f.Databases()
	require.NoError(t, err)
	assert.Contains(t, names, "gone")

	oldVersion := int64(-1)
	f.DeleteDatabase("gone").OnSuccess(func(v int64) { oldVersion = v })
	f.Flush()

	assert.Equal(t, int64(4), oldVersion)
	names, err = f.Databases()
	require.NoError(t, err)
	assert.NotContains(t, names, "gone")

	var ev *VersionChangeEvent
	fresh := openDB(t, f, "gone", 1, func(e *VersionChangeEvent) { ev = e })
	require.NotNil(t, ev)
	assert.Equal(t, int64(0), ev.OldVersion)
	assert.Empty(t, fresh.ObjectStoreNames())
}

func TestDeleteDatabase_Missing(t *testing.T) {
	f := newTestFactory(t)

	oldVersion := int64(-1)
	f.DeleteDatabase("never-opened").OnSuccess(func(v int64) { oldVersion = v })
	f.Flush()

	assert.Equal(t, int64(0), oldVersion)
}

func TestLegacyVersioning_UpgradeAfterOpen(t *testing.T) {
	f := newTestFactory(t, WithLegacyVersioning())

	upgradeNeeded := false
	var db *Database
	f.Open("legacy", 2).
		OnUpgradeNeeded(func(*VersionChangeEvent) { upgradeNeeded = true }).
		OnSuccess(func(d *Database) { db = d })
	f.Flush()

	require.NotNil(t, db)
	assert.False(t, upgradeNeeded, "legacy open must not upgrade")
	assert.Equal(t, int64(0), db.Version())

	var ev *VersionChangeEvent
	completed := false
	db.SetVersion(2).
		OnSuccess(func(e *VersionChangeEvent) {
			ev = e
			_, err := e.Database.CreateObjectStore("s", ObjectStoreOptions{})
			require.NoError(t, err)
		}).
		OnComplete(func() { completed = true })
	f.Flush()

	require.NotNil(t, ev)
	assert.Equal(t, int64(0), ev.OldVersion)
	assert.Equal(t, int64(2), ev.NewVersion)
	assert.True(t, completed)
	assert.Equal(t, int64(2), db.Version())
	assert.Equal(t, []string{"s"}, db.ObjectStoreNames())
}

func TestSetVersion_RequiresLegacyVersioning(t *testing.T) {
	f := newTestFactory(t)
	db := openDB(t, f, "app", 1, nil)

	var setErr error
	db.SetVersion(2).OnError(func(err error) { setErr = err })
	f.Flush()

	assert.Equal(t, ErrCodeInvalidState, CodeOf(setErr))
}

func TestSchemaChangesOutsideVersionChangeFail(t *testing.T) {
	f := newTestFactory(t)
	db := openDB(t, f, "app", 1, createStore(t, "a", ObjectStoreOptions{}))

	_, err := db.CreateObjectStore("b", ObjectStoreOptions{})
	assert.Equal(t, ErrCodeInvalidState, CodeOf(err))

	assert.Equal(t, ErrCodeInvalidState, CodeOf(db.DeleteObjectStore("a")))

	_, s := objectStore(t, db, "a", ModeReadWrite)
	_, err = s.CreateIndex("x", "x", IndexOptions{})
	assert.Equal(t, ErrCodeInvalidState, CodeOf(err))
}

func TestCreateObjectStore_Validation(t *testing.T) {
	f := newTestFactory(t)

	openDB(t, f, "app", 1, func(ev *VersionChangeEvent) {
		_, err := ev.Database.CreateObjectStore("a", ObjectStoreOptions{})
		require.NoError(t, err)

		_, err = ev.Database.CreateObjectStore("a", ObjectStoreOptions{})
		assert.True(t, IsConstraintError(err))

		_, err = ev.Database.CreateObjectStore("b", ObjectStoreOptions{KeyPath: "not a path"})
		assert.Equal(t, ErrCodeData, CodeOf(err))

		assert.True(t, IsNotFoundError(ev.Database.DeleteObjectStore("missing")))
	})
}
