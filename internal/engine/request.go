package engine

import (
	"github.com/roach88/storekeeper/internal/store"
	"github.com/roach88/storekeeper/internal/value"
)

// Request is one asynchronous operation inside a transaction. Its handlers
// fire on the loop goroutine with the transaction active, so they may
// issue further requests on the same transaction.
type Request struct {
	tx     *Transaction
	source any
	op     func(*store.Tx) (any, error)

	done   bool
	result any
	err    error

	onSuccess func(*Request)
	onError   func(*Request)
}

// OnSuccess sets the success handler.
func (r *Request) OnSuccess(fn func(*Request)) *Request {
	r.onSuccess = fn
	return r
}

// OnError sets the error handler. After it returns the transaction aborts.
func (r *Request) OnError(fn func(*Request)) *Request {
	r.onError = fn
	return r
}

// Transaction returns the transaction the request belongs to.
func (r *Request) Transaction() *Transaction {
	return r.tx
}

// Source returns the *ObjectStore or *Index the request was made on.
func (r *Request) Source() any {
	return r.source
}

// Done reports whether the request has a result or an error.
func (r *Request) Done() bool {
	return r.done
}

// Err returns the request error, if it failed.
func (r *Request) Err() error {
	return r.err
}

// Result returns the raw request result.
func (r *Request) Result() any {
	return r.result
}

// Key returns the result of Put or Add.
func (r *Request) Key() value.Value {
	k, _ := r.result.(value.Value)
	return k
}

// Value returns the result of Get, or nil if no record matched.
func (r *Request) Value() value.Value {
	v, _ := r.result.(value.Value)
	return v
}

// Values returns the result of GetAll.
func (r *Request) Values() []value.Value {
	v, _ := r.result.([]value.Value)
	return v
}

// Count returns the result of Count.
func (r *Request) Count() int64 {
	n, _ := r.result.(int64)
	return n
}

// Cursor returns the cursor at its current position, or nil once the
// cursor is exhausted.
func (r *Request) Cursor() *Cursor {
	c, _ := r.result.(*Cursor)
	return c
}

func (r *Request) fireSuccess() {
	if r.onSuccess != nil {
		r.onSuccess(r)
	}
}

func (r *Request) fireError() {
	if r.onError != nil {
		r.onError(r)
	}
}

// VersionChangeEvent describes a version change. Database and Transaction
// are set only for the event that carries out the change.
type VersionChangeEvent struct {
	OldVersion  int64
	NewVersion  int64
	Database    *Database
	Transaction *Transaction
}

// OpenRequest is the pending result of Factory.Open. Exactly one of the
// success and error handlers fires; upgrade-needed fires before success
// when the requested version is higher than the stored one.
type OpenRequest struct {
	name    string
	version int64

	done bool
	db   *Database
	err  error
	tx   *Transaction

	onUpgradeNeeded func(*VersionChangeEvent)
	onSuccess       func(*Database)
	onError         func(error)
	onBlocked       func(*VersionChangeEvent)
}

// OnUpgradeNeeded sets the handler that performs schema changes. The
// event's transaction is the version-change transaction.
func (r *OpenRequest) OnUpgradeNeeded(fn func(*VersionChangeEvent)) *OpenRequest {
	r.onUpgradeNeeded = fn
	return r
}

// OnSuccess sets the handler receiving the open connection.
func (r *OpenRequest) OnSuccess(fn func(*Database)) *OpenRequest {
	r.onSuccess = fn
	return r
}

// OnError sets the failure handler.
func (r *OpenRequest) OnError(fn func(error)) *OpenRequest {
	r.onError = fn
	return r
}

// OnBlocked sets the handler fired when other open connections delay the
// upgrade.
func (r *OpenRequest) OnBlocked(fn func(*VersionChangeEvent)) *OpenRequest {
	r.onBlocked = fn
	return r
}

// Name returns the requested database name.
func (r *OpenRequest) Name() string {
	return r.name
}

// Done reports whether the request succeeded or failed.
func (r *OpenRequest) Done() bool {
	return r.done
}

// Result returns the connection once the request succeeded.
func (r *OpenRequest) Result() *Database {
	return r.db
}

// Err returns the failure, if any.
func (r *OpenRequest) Err() error {
	return r.err
}

// Transaction returns the version-change transaction while an upgrade runs.
func (r *OpenRequest) Transaction() *Transaction {
	return r.tx
}

func (r *OpenRequest) fireUpgradeNeeded(ev *VersionChangeEvent) {
	if r.onUpgradeNeeded != nil {
		r.onUpgradeNeeded(ev)
	}
}

func (r *OpenRequest) fireBlocked(ev *VersionChangeEvent) {
	if r.onBlocked != nil {
		r.onBlocked(ev)
	}
}

func (r *OpenRequest) succeed(db *Database) {
	r.done = true
	r.db = db
	if r.onSuccess != nil {
		r.onSuccess(db)
	}
}

func (r *OpenRequest) fail(err error) {
	r.done = true
	r.err = err
	if r.onError != nil {
		r.onError(err)
	}
}

// DeleteRequest is the pending result of Factory.DeleteDatabase.
type DeleteRequest struct {
	name string

	done       bool
	oldVersion int64
	err        error

	onSuccess func(oldVersion int64)
	onError   func(error)
	onBlocked func(*VersionChangeEvent)
}

// OnSuccess sets the handler receiving the version the database had.
func (r *DeleteRequest) OnSuccess(fn func(oldVersion int64)) *DeleteRequest {
	r.onSuccess = fn
	return r
}

// OnError sets the failure handler.
func (r *DeleteRequest) OnError(fn func(error)) *DeleteRequest {
	r.onError = fn
	return r
}

// OnBlocked sets the handler fired when open connections delay the delete.
func (r *DeleteRequest) OnBlocked(fn func(*VersionChangeEvent)) *DeleteRequest {
	r.onBlocked = fn
	return r
}

// Done reports whether the request succeeded or failed.
func (r *DeleteRequest) Done() bool {
	return r.done
}

// Err returns the failure, if any.
func (r *DeleteRequest) Err() error {
	return r.err
}

func (r *DeleteRequest) fireBlocked(ev *VersionChangeEvent) {
	if r.onBlocked != nil {
		r.onBlocked(ev)
	}
}

func (r *DeleteRequest) succeed(oldVersion int64) {
	r.done = true
	r.oldVersion = oldVersion
	if r.onSuccess != nil {
		r.onSuccess(oldVersion)
	}
}

func (r *DeleteRequest) fail(err error) {
	r.done = true
	r.err = err
	if r.onError != nil {
		r.onError(err)
	}
}

// VersionRequest is the pending result of Database.SetVersion. Success
// fires with the version-change transaction active; complete fires after
// that transaction commits.
type VersionRequest struct {
	conn    *Database
	version int64

	done bool
	err  error

	onSuccess  func(*VersionChangeEvent)
	onComplete func()
	onError    func(error)
	onBlocked  func(*VersionChangeEvent)
}

// OnSuccess sets the handler that performs schema changes.
func (r *VersionRequest) OnSuccess(fn func(*VersionChangeEvent)) *VersionRequest {
	r.onSuccess = fn
	return r
}

// OnComplete sets the handler fired once the version change committed.
func (r *VersionRequest) OnComplete(fn func()) *VersionRequest {
	r.onComplete = fn
	return r
}

// OnError sets the failure handler.
func (r *VersionRequest) OnError(fn func(error)) *VersionRequest {
	r.onError = fn
	return r
}

// OnBlocked sets the handler fired when other connections delay the change.
func (r *VersionRequest) OnBlocked(fn func(*VersionChangeEvent)) *VersionRequest {
	r.onBlocked = fn
	return r
}

// Done reports whether the version change committed or failed.
func (r *VersionRequest) Done() bool {
	return r.done
}

// Err returns the failure, if any.
func (r *VersionRequest) Err() error {
	return r.err
}

func (r *VersionRequest) fireSuccess(ev *VersionChangeEvent) {
	if r.onSuccess != nil {
		r.onSuccess(ev)
	}
}

func (r *VersionRequest) fireComplete() {
	r.done = true
	if r.onComplete != nil {
		r.onComplete()
	}
}

func (r *VersionRequest) fireBlocked(ev *VersionChangeEvent) {
	if r.onBlocked != nil {
		r.onBlocked(ev)
	}
}

func (r *VersionRequest) fail(err error) {
	r.done = true
	r.err = err
	if r.onError != nil {
		r.onError(err)
	}
}
