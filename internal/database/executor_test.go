package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/schema"
	"github.com/roach88/storekeeper/internal/value"
)

func TestCreateReadRemove(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes())
	rec := value.NewObject(value.O("id", value.Int(2)), value.O("text", value.String("x")))

	key, err := write(t, f, func(cb Callbacks) { c.Create("notes", rec, cb) })
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), key)

	got, ok := read(t, f, c, "notes", value.Int(2))
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, err = write(t, f, func(cb Callbacks) { c.Remove("notes", value.Int(2), cb) })
	require.NoError(t, err)

	got, ok = read(t, f, c, "notes", value.Int(2))
	require.True(t, ok)
	assert.Nil(t, got)
}

func TestCreate_GeneratesKeys(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes())

	key, err := write(t, f, func(cb Callbacks) {
		c.Create("notes", value.NewObject(value.O("text", value.String("a"))), cb)
	})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), key)

	got, _ := read(t, f, c, "notes", value.Int(1))
	assert.Equal(t, value.NewObject(value.O("id", value.Int(1)), value.O("text", value.String("a"))), got)
}

func TestUpdate_Replaces(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes())

	_, err := write(t, f, func(cb Callbacks) { c.Create("notes", note(1, "old", "t"), cb) })
	require.NoError(t, err)
	_, err = write(t, f, func(cb Callbacks) { c.Update("notes", note(1, "new", "t"), cb) })
	require.NoError(t, err)

	assert.Equal(t, []value.Value{note(1, "new", "t")}, readAll(t, f, c, "notes"))
}

func TestEmpty(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes(note(1, "a", "x"), note(2, "b", "y")))
	require.Len(t, readAll(t, f, c, "notes"), 2)

	_, err := write(t, f, func(cb Callbacks) { c.Empty("notes", cb) })
	require.NoError(t, err)

	assert.Empty(t, readAll(t, f, c, "notes"))
}

func TestReadAll_SkipsNegativeKeys(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, schema.Descriptor{"kv": {PrimaryKeyPath: "k"}})

	for _, k := range []value.Value{value.Int(-5), value.Int(0), value.Int(3), value.String("s")} {
		_, err := write(t, f, func(cb Callbacks) { c.Create("kv", value.NewObject(value.O("k", k)), cb) })
		require.NoError(t, err)
	}

	var keys []value.Value
	for _, rec := range readAll(t, f, c, "kv") {
		k, _ := value.Lookup(rec, "k")
		keys = append(keys, k)
	}
	assert.Equal(t, []value.Value{value.Int(0), value.Int(3), value.String("s")}, keys)
}

func TestFind(t *testing.T) {
	f := newFactory(t)
	declared := schema.Descriptor{
		"people": {
			PrimaryKeyPath: "id",
			Indexes: schema.IndexList{
				{Name: "byAge", KeyPath: "age"},
				{Name: "byCity", KeyPath: "city"},
			},
		},
	}
	c := openReady(t, f, 1, declared)

	people := []struct {
		id   int64
		age  int64
		city string
	}{
		{1, 30, "oslo"}, {2, 5, "rome"}, {3, 12, "oslo"}, {4, 7, "lima"}, {5, 10, "rome"},
	}
	for _, p := range people {
		rec := value.NewObject(value.O("id", value.Int(p.id)), value.O("age", value.Int(p.age)), value.O("city", value.String(p.city)))
		_, err := write(t, f, func(cb Callbacks) { c.Create("people", rec, cb) })
		require.NoError(t, err)
	}

	ids := func(collection, index string, term value.Value) []int64 {
		var out []int64
		for _, rec := range steps(t, f, func(cb Callbacks) { c.Find(collection, index, term, cb) }) {
			id, _ := value.Lookup(rec, "id")
			out = append(out, int64(id.(value.Int)))
		}
		return out
	}

	assert.Equal(t, []int64{2, 4, 5}, ids("people", "byAge", value.NewArray(value.Int(0), value.Int(10))))
	assert.Equal(t, []int64{5, 3, 1}, ids("people", "byAge", value.NewArray(value.Int(10), value.Int(0))))
	assert.Equal(t, []int64{4, 5, 3}, ids("people", "byAge", value.NewArray(value.Int(7), value.Int(12))))
	assert.Equal(t, []int64{1, 3}, ids("people", "byCity", value.String("oslo")))
	assert.Nil(t, ids("people", "byCity", value.String("paris")))
}

func TestFind_Errors(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, notes())

	var errs []error
	cb := Callbacks{OnError: func(err error) { errs = append(errs, err) }}

	c.Find("notes", "missing", value.String("x"), cb)
	c.Find("notes", "byTag", value.NewArray(value.Int(9), value.Int(1)), cb)
	f.Flush()

	require.Len(t, errs, 2)
	assert.True(t, engine.IsNotFoundError(errs[0]), "error = %v", errs[0])
	assert.Contains(t, errs[1].Error(), "find term [9,1]")
}

func TestOperationErrorsReachOnError(t *testing.T) {
	f := newFactory(t)
	c := openReady(t, f, 1, schema.Descriptor{
		"users": {
			PrimaryKeyPath: "id",
			Indexes:        schema.IndexList{{Name: "byEmail", KeyPath: "email", Unique: true}},
		},
	})
	user := func(id int64) value.Object {
		return value.NewObject(value.O("id", value.Int(id)), value.O("email", value.String("a@example.com")))
	}

	_, err := write(t, f, func(cb Callbacks) { c.Create("users", user(1), cb) })
	require.NoError(t, err)

	// Asynchronous engine failure.
	_, err = write(t, f, func(cb Callbacks) { c.Create("users", user(2), cb) })
	assert.True(t, engine.IsConstraintError(err), "error = %v", err)

	// Synchronous failures to issue the request.
	_, err = write(t, f, func(cb Callbacks) { c.Read("users", value.Bool(true), cb) })
	assert.Equal(t, engine.ErrCodeData, engine.CodeOf(err))

	_, err = write(t, f, func(cb Callbacks) { c.Create("users", value.NewObject(value.O("email", value.String("b"))), cb) })
	assert.Equal(t, engine.ErrCodeData, engine.CodeOf(err))

	// Without OnError, failures are dropped.
	assert.NotPanics(t, func() {
		c.Create("users", user(3), Callbacks{})
		f.Flush()
	})
}

func TestGate_DropsOperationsSilently(t *testing.T) {
	f := newFactory(t)
	c := Open(f, "app", 1, notes())

	called := 0
	cb := Callbacks{
		OnSuccess: func(*engine.Request) { called++ },
		OnError:   func(error) { called++ },
	}

	// Not ready yet.
	assert.NotPanics(t, func() {
		c.Create("notes", note(1, "x", "y"), cb)
		c.Read("notes", value.Int(1), cb)
		c.ReadAll("notes", cb)
		c.Update("notes", note(1, "x", "y"), cb)
		c.Remove("notes", value.Int(1), cb)
		c.Empty("notes", cb)
		c.Find("notes", "byTag", value.String("y"), cb)
	})
	f.Flush()
	require.True(t, c.Ready())
	assert.Zero(t, called)

	// Nothing was written.
	assert.Empty(t, readAll(t, f, c, "notes"))

	// Undeclared collection.
	c.Read("other", value.Int(1), cb)
	f.Flush()
	assert.Zero(t, called)
}

func TestGate_StrictReportsErrors(t *testing.T) {
	f := newFactory(t)
	c := Open(f, "app", 1, notes(), WithStrictGate())

	var errs []error
	cb := Callbacks{OnError: func(err error) { errs = append(errs, err) }}

	c.Read("notes", value.Int(1), cb)
	f.Flush()
	c.Read("other", value.Int(1), cb)
	f.Flush()

	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[0], ErrNotReady))
	assert.True(t, errors.Is(errs[1], ErrUnknownCollection))
	assert.Contains(t, errs[1].Error(), `"other"`)
}
