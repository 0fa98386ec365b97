package database

import (
	"fmt"
	"log/slog"

	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/value"
)

// Callbacks receive the outcome of one operation. Either may be nil.
//
// OnSuccess receives the completed engine request: Key() after Create,
// Value() after Read, Cursor() after each ReadAll or Find step. OnError
// receives synchronous failures to issue the operation as well as engine
// failures.
type Callbacks struct {
	OnSuccess func(*engine.Request)
	OnError   func(error)
}

// Create stores record in collection, replacing any record with the same
// key. The request key is the record's key.
func (c *Connection) Create(collection string, record value.Value, cb Callbacks) {
	c.do("create", collection, engine.ModeReadWrite, cb, func(s *engine.ObjectStore) (*engine.Request, error) {
		return s.Put(record, nil)
	})
}

// Update is Create.
func (c *Connection) Update(collection string, record value.Value, cb Callbacks) {
	c.Create(collection, record, cb)
}

// Read fetches the record stored under key. The request value is nil if
// there is none.
func (c *Connection) Read(collection string, key value.Value, cb Callbacks) {
	c.do("read", collection, engine.ModeReadOnly, cb, func(s *engine.ObjectStore) (*engine.Request, error) {
		return s.Get(key)
	})
}

// ReadAll walks the collection in key order from key 0 upward, so records
// with negative numeric keys are not visited. OnSuccess fires once per
// record and a final time with a nil cursor; advance with Cursor.Continue.
func (c *Connection) ReadAll(collection string, cb Callbacks) {
	c.do("readAll", collection, engine.ModeReadOnly, cb, func(s *engine.ObjectStore) (*engine.Request, error) {
		r, err := keyrange.LowerBound(value.Int(0), false)
		if err != nil {
			return nil, err
		}
		return s.OpenCursor(r)
	})
}

// Remove deletes the record stored under key.
func (c *Connection) Remove(collection string, key value.Value, cb Callbacks) {
	c.do("remove", collection, engine.ModeReadWrite, cb, func(s *engine.ObjectStore) (*engine.Request, error) {
		return s.Delete(key)
	})
}

// Empty deletes every record in collection.
func (c *Connection) Empty(collection string, cb Callbacks) {
	c.do("empty", collection, engine.ModeReadWrite, cb, func(s *engine.ObjectStore) (*engine.Request, error) {
		return s.Clear()
	})
}

// Find walks the records whose index key matches term, in index order.
// See BuildRange for the term forms. Steps are delivered as in ReadAll.
func (c *Connection) Find(collection, index string, term value.Value, cb Callbacks) {
	c.do("find", collection, engine.ModeReadOnly, cb, func(s *engine.ObjectStore) (*engine.Request, error) {
		idx, err := s.Index(index)
		if err != nil {
			return nil, err
		}
		r, err := BuildRange(term)
		if err != nil {
			return nil, fmt.Errorf("find term %s: %w", value.Format(term), err)
		}
		return idx.OpenCursor(r)
	})
}

// do runs one operation in its own single-collection transaction.
func (c *Connection) do(op, collection string, mode engine.Mode, cb Callbacks, issue func(*engine.ObjectStore) (*engine.Request, error)) {
	if err := c.admit(collection); err != nil {
		slog.Debug("operation dropped",
			"db", c.name,
			"op", op,
			"collection", collection,
			"reason", err,
		)
		if c.strict {
			deliver(cb, err)
		}
		return
	}

	tx, err := c.db.Transaction([]string{collection}, mode)
	if err != nil {
		c.fail(op, collection, cb, err)
		return
	}
	s, err := tx.ObjectStore(collection)
	if err != nil {
		_ = tx.Abort()
		c.fail(op, collection, cb, err)
		return
	}
	req, err := issue(s)
	if err != nil {
		_ = tx.Abort()
		c.fail(op, collection, cb, err)
		return
	}

	req.OnSuccess(func(r *engine.Request) {
		if cb.OnSuccess != nil {
			cb.OnSuccess(r)
		}
	})
	req.OnError(func(r *engine.Request) {
		c.fail(op, collection, cb, r.Err())
	})
}

func (c *Connection) admit(collection string) error {
	if !c.ready {
		return ErrNotReady
	}
	if !c.schema.Has(collection) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return nil
}

func (c *Connection) fail(op, collection string, cb Callbacks, err error) {
	slog.Debug("operation failed",
		"db", c.name,
		"op", op,
		"collection", collection,
		"error", err,
	)
	deliver(cb, err)
}

func deliver(cb Callbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}
