package database

import (
	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/reconcile"
)

// Option configures a Connection.
type Option func(*Connection)

// WithOpening sets the handler fired when the connection becomes ready
// through the open request, with or without an upgrade.
func WithOpening(fn func()) Option {
	return func(c *Connection) {
		c.onOpening = fn
	}
}

// WithUpgrade sets the handler fired when the connection becomes ready
// after a legacy post-open upgrade. The opening handler does not fire in
// that case.
func WithUpgrade(fn func(*engine.VersionChangeEvent)) Option {
	return func(c *Connection) {
		c.onUpgrade = fn
	}
}

// WithOpenFailed sets the handler fired when opening or upgrading fails.
func WithOpenFailed(fn func(error)) Option {
	return func(c *Connection) {
		c.onOpenFailed = fn
	}
}

// WithBlocked sets the handler fired while other connections hold up the
// upgrade.
func WithBlocked(fn func(*engine.VersionChangeEvent)) Option {
	return func(c *Connection) {
		c.onBlocked = fn
	}
}

// WithReconciled sets the handler receiving the changes each
// reconciliation made.
func WithReconciled(fn func(reconcile.Report)) Option {
	return func(c *Connection) {
		c.onReconciled = fn
	}
}

// WithStrictGate makes operations issued before the connection is ready,
// or on undeclared collections, fail through OnError with ErrNotReady or
// ErrUnknownCollection instead of being dropped.
func WithStrictGate() Option {
	return func(c *Connection) {
		c.strict = true
	}
}
