package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/storekeeper/internal/store"
)

// Factory opens and deletes databases that live as SQLite files under one
// directory, and runs the task loop that delivers every engine callback.
//
// Thread-safety model:
//   - Post(), Close(): safe from any goroutine
//   - Run() / Flush(): drive the loop; use one of them from one goroutine
//   - everything else (Open, DeleteDatabase, Database, Transaction and
//     their handler setters): call from the loop goroutine, i.e. from inside
//     a callback or a posted task, or before the loop starts
//
// INVARIANTS:
//   - at most one transaction per database is running at a time
//   - open, delete and set-version requests for one database are handled
//     strictly in the order they were made
type Factory struct {
	dir    string
	legacy bool
	ids    IDGenerator
	txs    serials
	queue  *taskQueue

	// mu is held while a task runs so Close never races the loop.
	mu     sync.Mutex
	dbs    map[string]*dbState
	active []*Transaction
}

// Option configures a Factory.
type Option func(*Factory)

// WithLegacyVersioning makes Open report success without upgrading.
// Callers then upgrade through Database.SetVersion, the way early engines did.
func WithLegacyVersioning() Option {
	return func(f *Factory) {
		f.legacy = true
	}
}

// WithIDGenerator sets the generator for connection IDs.
//
// Default: UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(f *Factory) {
		f.ids = gen
	}
}

// NewFactory creates a Factory storing databases under dir.
// The directory is created on first open.
func NewFactory(dir string, opts ...Option) *Factory {
	f := &Factory{
		dir:   dir,
		ids:   UUIDv7Generator{},
		queue: newTaskQueue(),
		dbs:   make(map[string]*dbState),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Legacy reports whether the factory uses legacy versioning.
func (f *Factory) Legacy() bool {
	return f.legacy
}

// Dir returns the directory holding the database files.
func (f *Factory) Dir() string {
	return f.dir
}

// Post schedules fn to run on the loop goroutine.
// Returns false if the factory is closed.
func (f *Factory) Post(fn func()) bool {
	return f.queue.Enqueue(fn)
}

// enqueue schedules engine-internal follow-up work. After Close the work is
// dropped along with everything else still queued.
func (f *Factory) enqueue(fn func()) {
	f.queue.Enqueue(fn)
}

// Run processes tasks until ctx is cancelled or the factory is closed.
func (f *Factory) Run(ctx context.Context) error {
	slog.Debug("engine loop starting", "dir", f.dir)

	for {
		t, ok := f.queue.TryDequeue()
		if ok {
			f.runTask(t)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("engine loop stopping: context cancelled")
			return ctx.Err()

		case <-f.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which makes this case fire immediately.
			if f.queue.Closed() && f.queue.Len() == 0 {
				slog.Debug("engine loop stopping: factory closed")
				return nil
			}
		}
	}
}

// Flush runs queued tasks on the calling goroutine until none are left,
// including tasks scheduled by the tasks it runs. Must not be used while
// Run is active.
func (f *Factory) Flush() {
	for {
		t, ok := f.queue.TryDequeue()
		if !ok {
			return
		}
		f.runTask(t)
	}
}

func (f *Factory) runTask(t task) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t()

	// Transactions only accept requests during the task that created
	// them or that is delivering one of their callbacks.
	for _, tx := range f.active {
		tx.active = false
	}
	f.active = f.active[:0]
}

func (f *Factory) markActive(tx *Transaction) {
	tx.active = true
	f.active = append(f.active, tx)
}

// Close stops the loop and closes every database file.
// Queued tasks are discarded. Must not be called from inside a task.
func (f *Factory) Close() error {
	f.queue.Close()

	f.mu.Lock()
	defer f.mu.Unlock()

	var result *multierror.Error
	for name, ds := range f.dbs {
		if ds.store == nil {
			continue
		}
		if err := ds.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %q: %w", name, err))
		}
		ds.store = nil
	}
	return result.ErrorOrNil()
}

// Open requests a connection to the named database at version.
// A version of 0 opens the stored version (1 for a new database).
func (f *Factory) Open(name string, version int64) *OpenRequest {
	req := &OpenRequest{name: name, version: version}
	if version < 0 {
		f.enqueue(func() {
			req.fail(newError(ErrCodeData, "version must not be negative, got %d", version))
		})
		return req
	}

	f.enqueue(func() {
		ds := f.state(name)
		ds.ops = append(ds.ops, &pendingOp{kind: opOpen, open: req})
		f.processOps(ds)
	})
	return req
}

// DeleteDatabase requests deletion of the named database. Deleting a
// database that does not exist succeeds with old version 0.
func (f *Factory) DeleteDatabase(name string) *DeleteRequest {
	req := &DeleteRequest{name: name}
	f.enqueue(func() {
		ds := f.state(name)
		ds.ops = append(ds.ops, &pendingOp{kind: opDelete, del: req})
		f.processOps(ds)
	})
	return req
}

// Databases lists the databases present under the factory directory.
func (f *Factory) Databases() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list databases: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dbFileSuffix) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), dbFileSuffix))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

const dbFileSuffix = ".db"

func (f *Factory) path(name string) string {
	return filepath.Join(f.dir, url.PathEscape(name)+dbFileSuffix)
}

// dbState is the engine-side state of one named database, shared by all
// connections to it.
type dbState struct {
	name  string
	path  string
	store *store.Store

	conns []*Database

	ops    []*pendingOp
	opBusy bool

	txQueue []*Transaction
	running *Transaction
}

type opKind int

const (
	opOpen opKind = iota + 1
	opDelete
	opSetVersion
)

// pendingOp is an open, delete or set-version request waiting its turn.
type pendingOp struct {
	kind       opKind
	open       *OpenRequest
	del        *DeleteRequest
	setVersion *VersionRequest

	// notified is set once other connections were asked to close.
	notified bool
}

func (op *pendingOp) fireBlocked(ev *VersionChangeEvent) {
	switch op.kind {
	case opOpen:
		op.open.fireBlocked(ev)
	case opDelete:
		op.del.fireBlocked(ev)
	case opSetVersion:
		op.setVersion.fireBlocked(ev)
	}
}

type opResult int

const (
	opDone opResult = iota + 1
	opWaiting
	opRunning
)

func (f *Factory) state(name string) *dbState {
	ds, ok := f.dbs[name]
	if !ok {
		ds = &dbState{name: name, path: f.path(name)}
		f.dbs[name] = ds
	}
	return ds
}

// kick schedules another look at the transaction queue and the op queue.
func (f *Factory) kick(ds *dbState) {
	f.enqueue(func() {
		f.scheduleTx(ds)
		f.processOps(ds)
	})
}

// processOps runs queued ops in order until one has to wait.
func (f *Factory) processOps(ds *dbState) {
	for !ds.opBusy && len(ds.ops) > 0 {
		op := ds.ops[0]

		var res opResult
		switch op.kind {
		case opOpen:
			res = f.runOpen(ds, op)
		case opDelete:
			res = f.runDelete(ds, op)
		case opSetVersion:
			res = f.runSetVersion(ds, op)
		}

		switch res {
		case opWaiting:
			return
		case opRunning:
			ds.opBusy = true
			return
		default:
			ds.ops = ds.ops[1:]
		}
	}
	f.releaseStore(ds)
}

// finishOp completes the op at the head of the queue that was running.
func (f *Factory) finishOp(ds *dbState) {
	ds.opBusy = false
	if len(ds.ops) > 0 {
		ds.ops = ds.ops[1:]
	}
	f.kick(ds)
}

func (f *Factory) runOpen(ds *dbState, op *pendingOp) opResult {
	req := op.open

	if err := f.ensureStore(ds); err != nil {
		req.fail(fromStore(err))
		return opDone
	}
	current, err := ds.store.Version(context.Background())
	if err != nil {
		req.fail(fromStore(err))
		return opDone
	}

	target := req.version
	if target == 0 {
		target = max(current, 1)
	}
	if target < current {
		req.fail(newError(ErrCodeVersion, "requested version %d is less than stored version %d of %q", target, current, ds.name))
		return opDone
	}

	upgrade := target > current && !f.legacy
	if upgrade && f.blocked(ds, nil, op, current, target) {
		return opWaiting
	}

	conn, err := f.newConnection(ds, current)
	if err != nil {
		req.fail(fromStore(err))
		return opDone
	}
	ds.conns = append(ds.conns, conn)

	if !upgrade {
		slog.Debug("database opened",
			"db", ds.name,
			"conn", conn.id,
			"version", current,
		)
		req.succeed(conn)
		return opDone
	}

	slog.Info("database upgrade needed",
		"db", ds.name,
		"conn", conn.id,
		"old_version", current,
		"new_version", target,
	)
	f.startVersionChange(ds, conn, current, target, versionHooks{
		start: func(ev *VersionChangeEvent) {
			req.tx = ev.Transaction
			req.fireUpgradeNeeded(ev)
		},
		complete: func() {
			req.tx = nil
			req.succeed(conn)
			f.finishOp(ds)
		},
		abort: func(err error) {
			req.tx = nil
			conn.Close()
			req.fail(err)
			f.finishOp(ds)
		},
	})
	return opRunning
}

func (f *Factory) runDelete(ds *dbState, op *pendingOp) opResult {
	req := op.del

	var oldVersion int64
	if ds.store == nil {
		exists, err := store.Exists(ds.path)
		if err != nil {
			req.fail(fromStore(err))
			return opDone
		}
		if exists {
			if err := f.ensureStore(ds); err != nil {
				req.fail(fromStore(err))
				return opDone
			}
		}
	}
	if ds.store != nil {
		v, err := ds.store.Version(context.Background())
		if err != nil {
			req.fail(fromStore(err))
			return opDone
		}
		oldVersion = v
	}

	if f.blocked(ds, nil, op, oldVersion, 0) {
		return opWaiting
	}

	if ds.store != nil {
		if err := ds.store.Close(); err != nil {
			req.fail(fromStore(err))
			return opDone
		}
		ds.store = nil
	}
	if err := store.Remove(ds.path); err != nil {
		req.fail(fromStore(err))
		return opDone
	}

	slog.Info("database deleted", "db", ds.name, "old_version", oldVersion)
	req.succeed(oldVersion)
	return opDone
}

func (f *Factory) runSetVersion(ds *dbState, op *pendingOp) opResult {
	req := op.setVersion
	conn := req.conn

	if conn.closePending {
		req.fail(newError(ErrCodeInvalidState, "connection %s is closed", conn.id))
		return opDone
	}
	old := conn.version
	if req.version < old {
		req.fail(newError(ErrCodeVersion, "requested version %d is less than current version %d", req.version, old))
		return opDone
	}
	if f.blocked(ds, conn, op, old, req.version) {
		return opWaiting
	}

	slog.Info("database set version",
		"db", ds.name,
		"conn", conn.id,
		"old_version", old,
		"new_version", req.version,
	)
	f.startVersionChange(ds, conn, old, req.version, versionHooks{
		start: req.fireSuccess,
		complete: func() {
			req.fireComplete()
			f.finishOp(ds)
		},
		abort: func(err error) {
			req.fail(err)
			f.finishOp(ds)
		},
	})
	return opRunning
}

// blocked reports whether connections other than self keep op waiting.
// The first time, the other connections get a version-change notification
// and, if any of them stays open, op gets a blocked notification.
func (f *Factory) blocked(ds *dbState, self *Database, op *pendingOp, oldVersion, newVersion int64) bool {
	others := otherConns(ds, self)
	if len(others) == 0 {
		return false
	}

	if !op.notified {
		op.notified = true
		ev := &VersionChangeEvent{OldVersion: oldVersion, NewVersion: newVersion}
		for _, c := range others {
			if !c.closePending {
				c.fireVersionChange(ev)
			}
		}
		for _, c := range otherConns(ds, self) {
			if !c.closePending {
				slog.Debug("request blocked by open connection",
					"db", ds.name,
					"conn", c.id,
				)
				op.fireBlocked(ev)
				break
			}
		}
	}

	return len(otherConns(ds, self)) > 0
}

func otherConns(ds *dbState, self *Database) []*Database {
	var out []*Database
	for _, c := range ds.conns {
		if c != self {
			out = append(out, c)
		}
	}
	return out
}

func (f *Factory) ensureStore(ds *dbState) error {
	if ds.store != nil {
		return nil
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	s, err := store.Open(ds.path)
	if err != nil {
		return err
	}
	ds.store = s
	return nil
}

// releaseStore closes the database file once nothing uses it.
func (f *Factory) releaseStore(ds *dbState) {
	if ds.store == nil || len(ds.conns) > 0 || len(ds.ops) > 0 || ds.running != nil || len(ds.txQueue) > 0 {
		return
	}
	if err := ds.store.Close(); err != nil {
		slog.Warn("failed to close database file",
			"db", ds.name,
			"error", err,
		)
	}
	ds.store = nil
}

func (f *Factory) newConnection(ds *dbState, version int64) (*Database, error) {
	stx, err := ds.store.Begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer stx.Rollback()

	infos, err := stx.Catalog()
	if err != nil {
		return nil, err
	}

	catalog := make(map[string]store.ObjectStoreInfo, len(infos))
	for _, info := range infos {
		catalog[info.Name] = info
	}

	return &Database{
		f:       f,
		ds:      ds,
		id:      f.ids.Generate(),
		name:    ds.name,
		version: version,
		catalog: catalog,
	}, nil
}

// versionHooks are the engine-internal continuations of a version change.
type versionHooks struct {
	start    func(*VersionChangeEvent)
	complete func()
	abort    func(error)
}

// startVersionChange queues a version-change transaction on conn. When it
// starts, in a later task, it writes the new version and fires hooks.start
// with the transaction active.
func (f *Factory) startVersionChange(ds *dbState, conn *Database, oldVersion, newVersion int64, hooks versionHooks) {
	tx := f.newTransaction(conn, conn.ObjectStoreNames(), ModeVersionChange)
	tx.complete = hooks.complete
	tx.abortHook = hooks.abort
	tx.start = func() {
		if err := tx.stx.SetVersion(newVersion); err != nil {
			f.abort(tx, fromStore(err))
			return
		}
		tx.snapshot = cloneCatalog(conn.catalog)
		tx.oldVersion = oldVersion
		conn.version = newVersion
		conn.upgradeTx = tx

		hooks.start(&VersionChangeEvent{
			OldVersion:  oldVersion,
			NewVersion:  newVersion,
			Database:    conn,
			Transaction: tx,
		})
	}
	ds.txQueue = append(ds.txQueue, tx)
	f.kick(ds)
}
