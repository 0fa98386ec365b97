package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/schema"
	"github.com/roach88/storekeeper/internal/value"
)

func newFactory(t *testing.T, opts ...engine.Option) *engine.Factory {
	t.Helper()
	f := engine.NewFactory(t.TempDir(), opts...)
	t.Cleanup(func() { f.Close() })
	return f
}

// openReady opens a connection and flushes the loop until it is ready.
func openReady(t *testing.T, f *engine.Factory, version int64, declared schema.Descriptor, opts ...Option) *Connection {
	t.Helper()
	c := Open(f, "app", version, declared, opts...)
	f.Flush()
	require.NoError(t, c.Err())
	require.True(t, c.Ready(), "connection state %s", c.State())
	return c
}

// steps drains a ReadAll or Find walk and returns the visited records.
func steps(t *testing.T, f *engine.Factory, run func(Callbacks)) []value.Value {
	t.Helper()
	out := []value.Value{}
	finished := false
	run(Callbacks{
		OnSuccess: func(r *engine.Request) {
			cur := r.Cursor()
			if cur == nil {
				finished = true
				return
			}
			out = append(out, cur.Value())
			require.NoError(t, cur.Continue())
		},
		OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	f.Flush()
	require.True(t, finished, "walk did not finish")
	return out
}

func readAll(t *testing.T, f *engine.Factory, c *Connection, collection string) []value.Value {
	t.Helper()
	return steps(t, f, func(cb Callbacks) { c.ReadAll(collection, cb) })
}

// read fetches one record; the second result reports whether the request
// succeeded.
func read(t *testing.T, f *engine.Factory, c *Connection, collection string, key value.Value) (value.Value, bool) {
	t.Helper()
	var got value.Value
	ok := false
	c.Read(collection, key, Callbacks{
		OnSuccess: func(r *engine.Request) {
			got = r.Value()
			ok = true
		},
		OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	f.Flush()
	return got, ok
}

// write runs a write operation and returns its error, if any.
func write(t *testing.T, f *engine.Factory, run func(Callbacks)) (value.Value, error) {
	t.Helper()
	var key value.Value
	var opErr error
	done := false
	run(Callbacks{
		OnSuccess: func(r *engine.Request) {
			key = r.Key()
			done = true
		},
		OnError: func(err error) {
			opErr = err
			done = true
		},
	})
	f.Flush()
	require.True(t, done, "operation did not finish")
	return key, opErr
}

func notes(seed ...value.Value) schema.Descriptor {
	return schema.Descriptor{
		"notes": {
			PrimaryKeyPath:  "id",
			AutoGenerateKey: true,
			Indexes:         schema.IndexList{{Name: "byTag", KeyPath: "tag"}},
			Seed:            seed,
		},
	}
}

func note(id int64, text, tag string) value.Object {
	return value.NewObject(
		value.O("id", value.Int(id)),
		value.O("text", value.String(text)),
		value.O("tag", value.String(tag)),
	)
}
