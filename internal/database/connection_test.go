package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/reconcile"
	"github.com/roach88/storekeeper/internal/schema"
	"github.com/roach88/storekeeper/internal/value"
)

func TestOpen_FreshDatabaseSeedsAtInitialVersion(t *testing.T) {
	f := newFactory(t)
	seed := value.NewObject(value.O("id", value.Int(1)), value.O("text", value.String("hi")))

	opened := 0
	var report reconcile.Report
	c := Open(f, "app", 1, schema.Descriptor{
		"notes": {PrimaryKeyPath: "id", AutoGenerateKey: true, Seed: schema.RecordList{seed}},
	},
		WithOpening(func() { opened++ }),
		WithReconciled(func(r reconcile.Report) { report = r }),
	)

	assert.False(t, c.Ready())
	assert.Equal(t, StateOpening, c.State())
	f.Flush()

	require.True(t, c.Ready())
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 1, opened)
	assert.Equal(t, int64(1), c.Version())
	assert.Equal(t, []string{"notes"}, c.Collections())
	assert.Equal(t, []string{"notes"}, report.Created)

	assert.Equal(t, []value.Value{seed}, readAll(t, f, c, "notes"))
}

func TestOpen_ReadyOnlyAfterUpgradeCompletes(t *testing.T) {
	f := newFactory(t)

	var c *Connection
	var readyDuringUpgrade, stateDuringUpgrade = true, StateOpening
	c = Open(f, "app", 1, notes(), WithReconciled(func(reconcile.Report) {
		readyDuringUpgrade = c.Ready()
		stateDuringUpgrade = c.State()
	}))
	f.Flush()

	assert.False(t, readyDuringUpgrade)
	assert.Equal(t, StatePendingUpgrade, stateDuringUpgrade)
	assert.True(t, c.Ready())
}

func TestOpen_Defaults(t *testing.T) {
	f := newFactory(t)

	c := Open(f, "", 0, nil)
	f.Flush()

	require.True(t, c.Ready())
	assert.Equal(t, schema.DefaultName, c.Name())
	assert.Equal(t, int64(1), c.Version())
	assert.Equal(t, []string{"defaultStore"}, c.Collections())

	// The default store is seeded with one empty record keyed by the generator.
	assert.Equal(t, []value.Value{value.NewObject(value.O("id", value.Int(1)))}, readAll(t, f, c, "defaultStore"))
}

func TestOpen_SeedsAreNotDuplicatedOnUpgrade(t *testing.T) {
	f := newFactory(t)
	seed := note(1, "hi", "greeting")

	c := openReady(t, f, 1, notes(seed))
	c.Close()
	f.Flush()

	declared := notes(seed)
	declared["tasks"] = schema.Collection{PrimaryKeyPath: "id"}
	c = openReady(t, f, 2, declared)

	assert.Equal(t, []value.Value{seed}, readAll(t, f, c, "notes"))
	assert.Empty(t, readAll(t, f, c, "tasks"))
}

func TestOpen_NoSeedForCollectionsAddedLater(t *testing.T) {
	f := newFactory(t)
	openReady(t, f, 1, notes()).Close()
	f.Flush()

	declared := notes()
	declared["tags"] = schema.Collection{
		PrimaryKeyPath: "name",
		Seed:           schema.RecordList{value.NewObject(value.O("name", value.String("misc")))},
	}
	c := openReady(t, f, 2, declared)

	assert.Empty(t, readAll(t, f, c, "tags"))
}

func TestOpen_UpgradeReplacesCollections(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes(note(1, "hi", "greeting")))
	c.Close()
	f.Flush()

	c = openReady(t, f, 2, schema.Descriptor{"tasks": {PrimaryKeyPath: "id", AutoGenerateKey: true}})

	assert.Equal(t, []string{"tasks"}, c.Collections())
	assert.Empty(t, readAll(t, f, c, "tasks"))
}

func TestOpen_SameVersionDoesNotReconcile(t *testing.T) {
	f := newFactory(t)
	openReady(t, f, 1, notes()).Close()
	f.Flush()

	reconciled := false
	opened := false
	c := openReady(t, f, 1, schema.Descriptor{"other": {}},
		WithReconciled(func(reconcile.Report) { reconciled = true }),
		WithOpening(func() { opened = true }),
	)

	assert.False(t, reconciled)
	assert.True(t, opened)
	assert.Equal(t, []string{"notes"}, c.Collections())
}

func TestOpen_LowerVersionFails(t *testing.T) {
	f := newFactory(t)
	openReady(t, f, 3, notes()).Close()
	f.Flush()

	var failed error
	c := Open(f, "app", 2, notes(), WithOpenFailed(func(err error) { failed = err }))
	f.Flush()

	assert.False(t, c.Ready())
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, engine.ErrCodeVersion, engine.CodeOf(failed))
	assert.Equal(t, failed, c.Err())
}

func TestOpen_ReconcileFailureAbortsUpgrade(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, schema.Descriptor{"people": {PrimaryKeyPath: "id"}})
	for id := int64(1); id <= 2; id++ {
		_, err := write(t, f, func(cb Callbacks) {
			c.Create("people", value.NewObject(value.O("id", value.Int(id)), value.O("email", value.String("same"))), cb)
		})
		require.NoError(t, err)
	}
	c.Close()
	f.Flush()

	var failed error
	c = Open(f, "app", 2, schema.Descriptor{"people": {
		PrimaryKeyPath: "id",
		Indexes:        schema.IndexList{{Name: "byEmail", KeyPath: "email", Unique: true}},
	}}, WithOpenFailed(func(err error) { failed = err }))
	f.Flush()

	assert.Equal(t, StateFailed, c.State())
	assert.True(t, engine.IsConstraintError(failed), "error = %v", failed)
	assert.True(t, engine.IsAbortError(failed), "error = %v", failed)
	assert.Equal(t, engine.ErrCodeAbort, engine.CodeOf(failed))
	assert.Equal(t, engine.ErrCodeConstraint, engine.CauseOf(failed))
	assert.Contains(t, failed.Error(), `create index "byEmail" on "people"`)
	assert.Equal(t, failed, c.Err())

	// The stored database is untouched.
	c = openReady(t, f, 0, nil)
	assert.Equal(t, int64(1), c.Version())
	info, ok := c.Database().ObjectStoreInfo("people")
	require.True(t, ok)
	assert.Empty(t, info.Indexes)
}

func TestOpen_BlockedUntilOtherConnectionCloses(t *testing.T) {
	f := newFactory(t)
	old := openReady(t, f, 1, notes())

	blocked := false
	c := Open(f, "app", 2, notes(), WithBlocked(func(*engine.VersionChangeEvent) { blocked = true }))
	f.Flush()

	assert.True(t, blocked)
	assert.False(t, c.Ready())
	assert.True(t, old.Ready())

	old.Close()
	f.Flush()

	assert.True(t, c.Ready())
	assert.Equal(t, int64(2), c.Version())
}

func TestOpen_LegacyEngineUpgradesAfterOpen(t *testing.T) {
	f := newFactory(t, engine.WithLegacyVersioning())
	seed := note(1, "hi", "greeting")

	opened := false
	var upgraded *engine.VersionChangeEvent
	var readyAtReconcile = true
	var c *Connection
	c = Open(f, "app", 1, notes(seed),
		WithOpening(func() { opened = true }),
		WithUpgrade(func(ev *engine.VersionChangeEvent) { upgraded = ev }),
		WithReconciled(func(reconcile.Report) {
			readyAtReconcile = c.Ready()
			assert.Equal(t, StateLegacyPostOpenUpgrade, c.State())
		}),
	)
	f.Flush()

	require.True(t, c.Ready())
	assert.False(t, readyAtReconcile)
	assert.False(t, opened, "the opening handler does not fire after a legacy upgrade")
	require.NotNil(t, upgraded)
	assert.Equal(t, int64(0), upgraded.OldVersion)
	assert.Equal(t, int64(1), upgraded.NewVersion)
	assert.Equal(t, int64(1), c.Version())
	assert.Equal(t, []value.Value{seed}, readAll(t, f, c, "notes"))

	c.Close()
	f.Flush()

	// Reopening at the stored version takes the plain path.
	opened = false
	upgraded = nil
	c = openReady(t, f, 1, notes(seed),
		WithOpening(func() { opened = true }),
		WithUpgrade(func(ev *engine.VersionChangeEvent) { upgraded = ev }),
	)
	assert.True(t, opened)
	assert.Nil(t, upgraded)
	assert.Len(t, readAll(t, f, c, "notes"), 1)
}

func TestClose_DuringOpenCancelsIt(t *testing.T) {
	f := newFactory(t)
	opened := false
	c := Open(f, "app", 1, notes(), WithOpening(func() { opened = true }))
	c.Close()
	f.Flush()

	assert.False(t, opened)
	assert.False(t, c.Ready())
	assert.Equal(t, StateClosed, c.State())

	// Nothing holds the database open.
	var deleted bool
	f.DeleteDatabase("app").OnSuccess(func(int64) { deleted = true })
	f.Flush()
	assert.True(t, deleted)
}

func TestClose_StopsOperations(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes())
	c.Close()
	c.Close()

	assert.False(t, c.Ready())
	assert.Equal(t, StateClosed, c.State())

	called := false
	c.Create("notes", note(1, "x", "y"), Callbacks{
		OnSuccess: func(*engine.Request) { called = true },
		OnError:   func(error) { called = true },
	})
	f.Flush()
	assert.False(t, called)
}

func TestDestroy(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 3, notes(note(1, "hi", "greeting")))

	oldVersion := int64(-1)
	c.Destroy().OnSuccess(func(v int64) { oldVersion = v })
	f.Flush()

	assert.Equal(t, int64(3), oldVersion)
	assert.Equal(t, StateClosed, c.State())
	names, err := f.Databases()
	require.NoError(t, err)
	assert.NotContains(t, names, "app")

	// A fresh open starts from scratch and seeds again at version 1.
	c = openReady(t, f, 1, notes(note(1, "hi", "greeting")))
	assert.Len(t, readAll(t, f, c, "notes"), 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending-upgrade", StatePendingUpgrade.String())
	assert.Equal(t, "legacy-post-open-upgrade", StateLegacyPostOpenUpgrade.String())
	assert.Equal(t, "unknown", State(99).String())
}
