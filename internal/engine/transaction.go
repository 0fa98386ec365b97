package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/storekeeper/internal/store"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	// ModeReadOnly transactions may only read.
	ModeReadOnly Mode = iota + 1
	// ModeReadWrite transactions may read and write records.
	ModeReadWrite
	// ModeVersionChange transactions may also change object stores and
	// indexes. Only the engine creates them.
	ModeVersionChange
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "readonly"
	case ModeReadWrite:
		return "readwrite"
	case ModeVersionChange:
		return "versionchange"
	default:
		return "unknown"
	}
}

type txState int

const (
	txPending txState = iota
	txRunning
	txCommitted
	txAborted
)

// Transaction groups requests against a set of object stores.
//
// A transaction accepts requests only while active: during the task that
// created it and while one of its request callbacks runs. It runs its
// requests in order, one per loop task, and commits once a step finds no
// pending request. A failed request aborts the transaction.
type Transaction struct {
	f      *Factory
	db     *Database
	serial int64
	mode   Mode
	scope  []string

	state   txState
	active  bool
	stx     *store.Tx
	pending []*Request
	err     error

	onComplete func()
	onAbort    func(error)

	// Engine-internal hooks, run after the caller's handlers.
	start     func()
	complete  func()
	abortHook func(error)

	// Catalog and version to restore if a version change aborts.
	snapshot   map[string]store.ObjectStoreInfo
	oldVersion int64
}

// Mode returns the access mode.
func (tx *Transaction) Mode() Mode {
	return tx.mode
}

// Database returns the connection the transaction belongs to.
func (tx *Transaction) Database() *Database {
	return tx.db
}

// Scope returns the names of the object stores the transaction covers.
func (tx *Transaction) Scope() []string {
	return slices.Clone(tx.scope)
}

// Err returns the abort reason once the transaction has aborted.
func (tx *Transaction) Err() error {
	return tx.err
}

// Finished reports whether the transaction committed or aborted.
func (tx *Transaction) Finished() bool {
	return tx.state == txCommitted || tx.state == txAborted
}

// OnComplete sets the handler fired after a successful commit.
func (tx *Transaction) OnComplete(fn func()) *Transaction {
	tx.onComplete = fn
	return tx
}

// OnAbort sets the handler fired when the transaction aborts.
func (tx *Transaction) OnAbort(fn func(error)) *Transaction {
	tx.onAbort = fn
	return tx
}

// ObjectStore returns a handle to one object store in the transaction's scope.
func (tx *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	if tx.Finished() {
		return nil, newError(ErrCodeInvalidState, "transaction has finished")
	}
	if tx.mode != ModeVersionChange && !slices.Contains(tx.scope, name) {
		return nil, newError(ErrCodeNotFound, "object store %q is not in the transaction scope", name)
	}
	if _, ok := tx.db.catalog[name]; !ok {
		return nil, newError(ErrCodeNotFound, "object store %q does not exist", name)
	}
	return &ObjectStore{tx: tx, name: name}, nil
}

// Abort rolls the transaction back. Pending requests fail with AbortError.
func (tx *Transaction) Abort() error {
	if tx.Finished() {
		return newError(ErrCodeInvalidState, "transaction has finished")
	}
	tx.f.abort(tx, nil)
	return nil
}

// AbortWith rolls the transaction back like Abort, recording cause as the
// reason. The AbortError delivered to pending requests and abort handlers
// wraps cause.
func (tx *Transaction) AbortWith(cause error) error {
	if tx.Finished() {
		return newError(ErrCodeInvalidState, "transaction has finished")
	}
	tx.f.abort(tx, cause)
	return nil
}

func (f *Factory) newTransaction(db *Database, scope []string, mode Mode) *Transaction {
	tx := &Transaction{
		f:      f,
		db:     db,
		serial: f.txs.next(),
		mode:   mode,
		scope:  scope,
	}
	db.txCount++
	f.markActive(tx)
	return tx
}

// addRequest queues op on tx. Returns TransactionInactiveError if tx is
// not accepting requests.
func (tx *Transaction) addRequest(source any, op func(*store.Tx) (any, error)) (*Request, error) {
	if tx.Finished() || !tx.active {
		return nil, newError(ErrCodeTransactionInactive, "transaction is not active")
	}
	req := &Request{tx: tx, source: source, op: op}
	tx.pending = append(tx.pending, req)
	return req, nil
}

// scheduleTx starts the next queued transaction if none is running.
func (f *Factory) scheduleTx(ds *dbState) {
	for ds.running == nil && len(ds.txQueue) > 0 {
		tx := ds.txQueue[0]
		ds.txQueue = ds.txQueue[1:]
		if tx.state != txPending {
			continue
		}

		ds.running = tx
		tx.state = txRunning

		stx, err := ds.store.Begin(context.Background())
		if err != nil {
			f.abort(tx, fromStore(err))
			continue
		}
		tx.stx = stx

		slog.Debug("transaction started",
			"db", ds.name,
			"conn", tx.db.id,
			"tx", tx.serial,
			"mode", tx.mode.String(),
		)

		if tx.start != nil {
			f.markActive(tx)
			tx.start()
		}
		if tx.state == txRunning {
			f.enqueue(func() { f.step(tx) })
		}
	}
}

// step runs the next pending request, or commits if there is none.
func (f *Factory) step(tx *Transaction) {
	if tx.state != txRunning {
		return
	}
	if len(tx.pending) == 0 {
		f.commit(tx)
		return
	}

	req := tx.pending[0]
	tx.pending[0] = nil
	tx.pending = tx.pending[1:]

	result, err := req.op(tx.stx)
	req.done = true
	if err != nil {
		req.err = fromStore(err)
		f.markActive(tx)
		req.fireError()
		f.abort(tx, req.err)
		return
	}

	req.result = result
	f.markActive(tx)
	req.fireSuccess()

	if tx.state == txRunning {
		f.enqueue(func() { f.step(tx) })
	}
}

func (f *Factory) commit(tx *Transaction) {
	if err := tx.stx.Commit(); err != nil {
		f.abort(tx, fromStore(err))
		return
	}

	ds := tx.db.ds
	tx.state = txCommitted
	ds.running = nil
	f.detach(tx)

	slog.Debug("transaction committed",
		"db", ds.name,
		"conn", tx.db.id,
		"tx", tx.serial,
	)

	if tx.onComplete != nil {
		tx.onComplete()
	}
	if tx.complete != nil {
		tx.complete()
	}

	tx.db.maybeFinalize()
	f.kick(ds)
}

// abort rolls tx back, fails its pending requests and fires the abort
// handlers. A nil cause means the caller asked for the abort.
func (f *Factory) abort(tx *Transaction, cause error) {
	if tx.Finished() {
		return
	}

	ds := tx.db.ds
	wasRunning := tx.state == txRunning
	tx.state = txAborted
	tx.err = abortError(cause)

	if tx.stx != nil {
		if err := tx.stx.Rollback(); err != nil {
			slog.Warn("transaction rollback failed",
				"db", ds.name,
				"tx", tx.serial,
				"error", err,
			)
		}
	}

	if wasRunning {
		ds.running = nil
	} else {
		ds.txQueue = slices.DeleteFunc(ds.txQueue, func(t *Transaction) bool { return t == tx })
	}

	if tx.mode == ModeVersionChange && tx.snapshot != nil {
		tx.db.catalog = tx.snapshot
		tx.db.version = tx.oldVersion
	}
	f.detach(tx)

	slog.Debug("transaction aborted",
		"db", ds.name,
		"conn", tx.db.id,
		"tx", tx.serial,
		"error", tx.err,
	)

	pending := tx.pending
	tx.pending = nil
	for _, req := range pending {
		req.done = true
		req.err = abortError(cause)
		req.fireError()
	}

	if tx.onAbort != nil {
		tx.onAbort(tx.err)
	}
	if tx.abortHook != nil {
		tx.abortHook(tx.err)
	}

	tx.db.maybeFinalize()
	f.kick(ds)
}

// detach releases the connection's hold on a finished transaction.
func (f *Factory) detach(tx *Transaction) {
	tx.db.txCount--
	if tx.db.upgradeTx == tx {
		tx.db.upgradeTx = nil
	}
}
