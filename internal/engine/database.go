package engine

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/storekeeper/internal/store"
	"github.com/roach88/storekeeper/internal/value"
)

// Database is one open connection to a named database.
type Database struct {
	f       *Factory
	ds      *dbState
	id      string
	name    string
	version int64

	// catalog caches the object stores and indexes of the database.
	// It changes only inside this connection's version-change transaction.
	catalog map[string]store.ObjectStoreInfo

	txCount      int
	upgradeTx    *Transaction
	closePending bool
	closed       bool

	onVersionChange func(*VersionChangeEvent)
}

// ObjectStoreOptions configures a new object store.
type ObjectStoreOptions struct {
	// KeyPath names the record property holding the key. Empty means keys
	// are passed alongside records.
	KeyPath string

	// AutoIncrement gives the store a key generator.
	AutoIncrement bool
}

// ID returns the connection ID.
func (db *Database) ID() string {
	return db.id
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// Version returns the database version as seen by this connection.
func (db *Database) Version() int64 {
	return db.version
}

// ObjectStoreNames returns the object store names in sorted order.
func (db *Database) ObjectStoreNames() []string {
	names := make([]string, 0, len(db.catalog))
	for name := range db.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObjectStoreInfo returns the catalog entry of one object store.
func (db *Database) ObjectStoreInfo(name string) (store.ObjectStoreInfo, bool) {
	info, ok := db.catalog[name]
	return info, ok
}

// OnVersionChange sets the handler fired when another connection wants to
// change the version or delete the database. The usual response is Close.
func (db *Database) OnVersionChange(fn func(*VersionChangeEvent)) {
	db.onVersionChange = fn
}

func (db *Database) fireVersionChange(ev *VersionChangeEvent) {
	if db.onVersionChange != nil {
		db.onVersionChange(ev)
	}
}

// Transaction starts a transaction over the named object stores.
func (db *Database) Transaction(names []string, mode Mode) (*Transaction, error) {
	if db.closePending {
		return nil, newError(ErrCodeInvalidState, "connection %s is closed", db.id)
	}
	if db.upgradeTx != nil {
		return nil, newError(ErrCodeInvalidState, "a version change is running on connection %s", db.id)
	}
	if mode != ModeReadOnly && mode != ModeReadWrite {
		return nil, newError(ErrCodeInvalidState, "invalid transaction mode %s", mode)
	}
	if len(names) == 0 {
		return nil, newError(ErrCodeInvalidState, "transaction scope is empty")
	}

	scope := slices.Clone(names)
	slices.Sort(scope)
	scope = slices.Compact(scope)
	for _, name := range scope {
		if _, ok := db.catalog[name]; !ok {
			return nil, newError(ErrCodeNotFound, "object store %q does not exist", name)
		}
	}

	tx := db.f.newTransaction(db, scope, mode)
	db.ds.txQueue = append(db.ds.txQueue, tx)
	db.f.kick(db.ds)
	return tx, nil
}

// CreateObjectStore creates an object store. Only valid while this
// connection's version-change transaction is active.
func (db *Database) CreateObjectStore(name string, opts ObjectStoreOptions) (*ObjectStore, error) {
	tx, err := db.versionChangeTx()
	if err != nil {
		return nil, err
	}
	if _, ok := db.catalog[name]; ok {
		return nil, newError(ErrCodeConstraint, "object store %q already exists", name)
	}
	if !value.ValidKeyPath(opts.KeyPath) {
		return nil, newError(ErrCodeData, "invalid key path %q", opts.KeyPath)
	}

	info := store.ObjectStoreInfo{
		Name:          name,
		KeyPath:       opts.KeyPath,
		AutoIncrement: opts.AutoIncrement,
	}
	if err := tx.stx.CreateObjectStore(info); err != nil {
		return nil, fromStore(err)
	}
	db.catalog[name] = info

	slog.Debug("object store created",
		"db", db.name,
		"store", name,
		"key_path", opts.KeyPath,
		"auto_increment", opts.AutoIncrement,
	)
	return &ObjectStore{tx: tx, name: name}, nil
}

// DeleteObjectStore deletes an object store with all its records. Only
// valid while this connection's version-change transaction is active.
func (db *Database) DeleteObjectStore(name string) error {
	tx, err := db.versionChangeTx()
	if err != nil {
		return err
	}
	if _, ok := db.catalog[name]; !ok {
		return newError(ErrCodeNotFound, "object store %q does not exist", name)
	}
	if err := tx.stx.DeleteObjectStore(name); err != nil {
		return fromStore(err)
	}
	delete(db.catalog, name)

	slog.Debug("object store deleted", "db", db.name, "store", name)
	return nil
}

func (db *Database) versionChangeTx() (*Transaction, error) {
	tx := db.upgradeTx
	if tx == nil || tx.Finished() {
		return nil, newError(ErrCodeInvalidState, "no version change is running on connection %s", db.id)
	}
	if !tx.active {
		return nil, newError(ErrCodeTransactionInactive, "version change transaction is not active")
	}
	return tx, nil
}

// SetVersion upgrades the database to version through a version-change
// transaction delivered to the returned request. Only available on a
// factory created with WithLegacyVersioning.
func (db *Database) SetVersion(version int64) *VersionRequest {
	req := &VersionRequest{conn: db, version: version}
	if !db.f.legacy {
		db.f.enqueue(func() {
			req.fail(newError(ErrCodeInvalidState, "SetVersion requires legacy versioning"))
		})
		return req
	}

	db.f.enqueue(func() {
		db.ds.ops = append(db.ds.ops, &pendingOp{kind: opSetVersion, setVersion: req})
		db.f.processOps(db.ds)
	})
	return req
}

// Close closes the connection once its transactions have finished.
// Closing twice is a no-op.
func (db *Database) Close() {
	if db.closePending {
		return
	}
	db.closePending = true
	db.maybeFinalize()
}

// Closed reports whether Close was called.
func (db *Database) Closed() bool {
	return db.closePending
}

func (db *Database) maybeFinalize() {
	if !db.closePending || db.closed || db.txCount > 0 {
		return
	}
	db.closed = true
	db.ds.conns = slices.DeleteFunc(db.ds.conns, func(c *Database) bool { return c == db })

	slog.Debug("database closed", "db", db.name, "conn", db.id)
	db.f.kick(db.ds)
}

func cloneCatalog(catalog map[string]store.ObjectStoreInfo) map[string]store.ObjectStoreInfo {
	out := make(map[string]store.ObjectStoreInfo, len(catalog))
	for name, info := range catalog {
		info.Indexes = slices.Clone(info.Indexes)
		out[name] = info
	}
	return out
}
