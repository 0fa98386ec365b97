package database

import (
	"errors"
	"log/slog"

	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/reconcile"
	"github.com/roach88/storekeeper/internal/schema"
)

var (
	// ErrNotReady is reported by operations issued before the connection
	// is ready, when the strict gate is enabled.
	ErrNotReady = errors.New("database: connection is not ready")

	// ErrUnknownCollection is reported by operations on undeclared
	// collections, when the strict gate is enabled.
	ErrUnknownCollection = errors.New("database: collection is not declared")
)

// Connection is a schema-aware handle on one named database. It opens the
// database at the declared version, reconciles the stored collections with
// the declared schema whenever the version increases, and then serves
// operations on the declared collections.
//
// A Connection is driven by its factory's loop: create it and call its
// methods from the loop goroutine (inside a callback or a posted task) or
// before the loop starts.
type Connection struct {
	f       *engine.Factory
	name    string
	version int64
	schema  schema.Descriptor

	db    *engine.Database
	state State
	ready bool
	err   error

	strict       bool
	onOpening    func()
	onUpgrade    func(*engine.VersionChangeEvent)
	onOpenFailed func(error)
	onBlocked    func(*engine.VersionChangeEvent)
	onReconciled func(reconcile.Report)
}

// Open starts opening name at version and returns immediately; the
// connection becomes ready once the open handshake, including any
// reconciliation, has completed. An empty name means schema.DefaultName,
// a version of 0 means schema.InitialVersion and a nil descriptor means
// schema.Default().
func Open(f *engine.Factory, name string, version int64, declared schema.Descriptor, opts ...Option) *Connection {
	if name == "" {
		name = schema.DefaultName
	}
	if version == 0 {
		version = schema.InitialVersion
	}
	if declared == nil {
		declared = schema.Default()
	}

	c := &Connection{
		f:       f,
		name:    name,
		version: version,
		schema:  declared,
		state:   StateOpening,
	}
	for _, opt := range opts {
		opt(c)
	}

	slog.Info("opening database", "db", name, "version", version)
	f.Open(name, version).
		OnUpgradeNeeded(c.handleUpgradeNeeded).
		OnSuccess(c.handleOpened).
		OnError(c.handleOpenError).
		OnBlocked(c.handleBlocked)
	return c
}

func (c *Connection) handleUpgradeNeeded(ev *engine.VersionChangeEvent) {
	c.db = ev.Database
	if c.state == StateClosed {
		_ = ev.Transaction.Abort()
		return
	}
	c.ready = false
	c.state = StatePendingUpgrade
	c.reconcile(ev)
}

func (c *Connection) handleOpened(db *engine.Database) {
	c.db = db
	db.OnVersionChange(func(ev *engine.VersionChangeEvent) {
		slog.Info("database version change requested elsewhere",
			"db", c.name,
			"old_version", ev.OldVersion,
			"new_version", ev.NewVersion,
		)
	})
	if c.state == StateClosed {
		db.Close()
		return
	}

	if db.Version() != c.version {
		c.legacyUpgrade(db)
		return
	}

	c.ready = true
	c.state = StateReady
	slog.Info("database opened", "db", c.name, "version", db.Version())
	if c.onOpening != nil {
		c.onOpening()
	}
}

// legacyUpgrade upgrades a connection that opened below the declared
// version through the set-version request.
func (c *Connection) legacyUpgrade(db *engine.Database) {
	c.ready = false
	c.state = StateLegacyPostOpenUpgrade
	slog.Info("database upgrade after open",
		"db", c.name,
		"old_version", db.Version(),
		"new_version", c.version,
	)

	var event *engine.VersionChangeEvent
	db.SetVersion(c.version).
		OnSuccess(func(ev *engine.VersionChangeEvent) {
			event = ev
			c.reconcile(ev)
		}).
		OnComplete(func() {
			if c.state == StateClosed {
				return
			}
			c.ready = true
			c.state = StateReady
			slog.Info("database upgraded", "db", c.name, "version", db.Version())
			if c.onUpgrade != nil {
				c.onUpgrade(event)
			}
		}).
		OnError(c.handleOpenError).
		OnBlocked(c.handleBlocked)
}

func (c *Connection) reconcile(ev *engine.VersionChangeEvent) {
	slog.Info("upgrading database",
		"db", c.name,
		"old_version", ev.OldVersion,
		"new_version", ev.NewVersion,
	)
	report, err := reconcile.Reconcile(reconcile.EngineTarget(ev.Transaction), c.schema, c.version == schema.InitialVersion)
	if err != nil {
		slog.Error("schema reconciliation failed", "db", c.name, "error", err)
		_ = ev.Transaction.AbortWith(err)
		return
	}
	slog.Debug("schema reconciled",
		"db", c.name,
		"created", report.Created,
		"indexes", report.Indexes,
		"deleted", report.Deleted,
	)
	if c.onReconciled != nil {
		c.onReconciled(report)
	}
}

func (c *Connection) handleOpenError(err error) {
	c.ready = false
	c.err = err
	if c.state == StateClosed {
		return
	}
	c.state = StateFailed
	slog.Error("database open failed", "db", c.name, "error", err)
	if c.onOpenFailed != nil {
		c.onOpenFailed(err)
	}
}

func (c *Connection) handleBlocked(ev *engine.VersionChangeEvent) {
	slog.Warn("database upgrade blocked by open connections",
		"db", c.name,
		"old_version", ev.OldVersion,
		"new_version", ev.NewVersion,
	)
	if c.onBlocked != nil {
		c.onBlocked(ev)
	}
}

// Name returns the database name.
func (c *Connection) Name() string {
	return c.name
}

// Schema returns the declared collections.
func (c *Connection) Schema() schema.Descriptor {
	return c.schema
}

// Ready reports whether operations are accepted.
func (c *Connection) Ready() bool {
	return c.ready
}

// State returns the migration state.
func (c *Connection) State() State {
	return c.state
}

// Err returns the failure that moved the connection to StateFailed.
func (c *Connection) Err() error {
	return c.err
}

// Version returns the version of the open database, or 0 before it opened.
func (c *Connection) Version() int64 {
	if c.db == nil {
		return 0
	}
	return c.db.Version()
}

// Collections returns the collections present in the open database.
func (c *Connection) Collections() []string {
	if c.db == nil {
		return nil
	}
	return c.db.ObjectStoreNames()
}

// Database returns the underlying engine connection, or nil before the
// database opened.
func (c *Connection) Database() *engine.Database {
	return c.db
}

// Close releases the engine connection once its running transactions
// finish. Closing during the open handshake cancels it.
func (c *Connection) Close() {
	if c.state == StateClosed {
		return
	}
	c.ready = false
	c.state = StateClosed
	if c.db != nil {
		c.db.Close()
	}
	slog.Debug("connection closed", "db", c.name)
}

// Destroy closes the connection and deletes the database. The returned
// request reports when the deletion finished.
func (c *Connection) Destroy() *engine.DeleteRequest {
	c.Close()
	slog.Info("deleting database", "db", c.name)
	return c.f.DeleteDatabase(c.name).
		OnError(func(err error) {
			slog.Error("database delete failed", "db", c.name, "error", err)
		})
}
