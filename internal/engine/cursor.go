package engine

import (
	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/store"
	"github.com/roach88/storekeeper/internal/value"
)

// Cursor walks the records of an object store or index in key order.
//
// The request that opened the cursor succeeds once per position, with the
// cursor as its result. Calling Continue from the success handler moves to
// the next position and fires the same request again. Past the last
// position the request succeeds with a nil cursor.
type Cursor struct {
	req   *Request
	store string
	index string
	r     *keyrange.Range

	key        value.Value
	primaryKey value.Value
	value      value.Value

	// Encoded position of the last row returned.
	lastKey     []byte
	lastPrimary []byte

	positioned bool
}

// Key returns the key at the current position: the index key for index
// cursors and the primary key otherwise.
func (c *Cursor) Key() value.Value {
	return c.key
}

// PrimaryKey returns the primary key of the current record.
func (c *Cursor) PrimaryKey() value.Value {
	return c.primaryKey
}

// Value returns the current record.
func (c *Cursor) Value() value.Value {
	return c.value
}

// Request returns the request the cursor reports through.
func (c *Cursor) Request() *Request {
	return c.req
}

// Continue advances the cursor. Only valid once per position and while
// the transaction is active.
func (c *Cursor) Continue() error {
	tx := c.req.tx
	if tx.Finished() || !tx.active {
		return newError(ErrCodeTransactionInactive, "transaction is not active")
	}
	if !c.positioned {
		return newError(ErrCodeInvalidState, "cursor is already advancing or exhausted")
	}

	c.positioned = false
	c.req.done = false
	c.req.result = nil
	tx.pending = append(tx.pending, c.req)
	return nil
}

// advance moves to the next row. It is the cursor request's operation.
func (c *Cursor) advance(stx *store.Tx) (any, error) {
	var row store.Row
	var ok bool
	var err error

	if c.index == "" {
		row, ok, err = stx.Seek(c.store, c.r, c.lastKey)
	} else {
		row, ok, err = stx.SeekIndex(c.store, c.index, c.r, c.lastKey, c.lastPrimary)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		c.key, c.primaryKey, c.value = nil, nil, nil
		return nil, nil
	}

	c.primaryKey = row.Key
	c.value = row.Value
	if c.index == "" {
		c.key = row.Key
		c.lastKey = row.EncodedKey
	} else {
		c.key = row.IndexKey
		c.lastKey = row.EncodedIndexKey
		c.lastPrimary = row.EncodedKey
	}
	c.positioned = true
	return c, nil
}
