package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/storekeeper/internal/store"
)

// Error is a failure reported by the engine, either returned synchronously
// from a method call or delivered to an error handler.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors. The names follow the DOM exception
// names used by browser object stores so callers can match on familiar terms.
type ErrorCode string

const (
	// ErrCodeConstraint indicates a duplicate key, name or unique index value.
	ErrCodeConstraint ErrorCode = "ConstraintError"

	// ErrCodeNotFound indicates a missing object store or index.
	ErrCodeNotFound ErrorCode = "NotFoundError"

	// ErrCodeVersion indicates a request for a version lower than the stored one.
	ErrCodeVersion ErrorCode = "VersionError"

	// ErrCodeInvalidState indicates a call on a closed connection, a finished
	// transaction, or a schema change outside a version-change transaction.
	ErrCodeInvalidState ErrorCode = "InvalidStateError"

	// ErrCodeTransactionInactive indicates a request made while its
	// transaction was not accepting requests.
	ErrCodeTransactionInactive ErrorCode = "TransactionInactiveError"

	// ErrCodeData indicates an invalid key, key path or record.
	ErrCodeData ErrorCode = "DataError"

	// ErrCodeAbort indicates the transaction was aborted.
	ErrCodeAbort ErrorCode = "AbortError"

	// ErrCodeReadOnly indicates a write in a read-only transaction.
	ErrCodeReadOnly ErrorCode = "ReadOnlyError"

	// ErrCodeUnknown indicates a storage failure.
	ErrCodeUnknown ErrorCode = "UnknownError"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// CauseOf returns the code of the innermost *Error in err's tree, the
// failure that set off any aborts wrapped around it, or "" if none.
func CauseOf(err error) ErrorCode {
	var code ErrorCode
	visit(err, func(e *Error) bool {
		code = e.Code
		return false
	})
	return code
}

// HasCode reports whether any *Error in err's tree carries code. Joined
// errors are searched branch by branch.
func HasCode(err error, code ErrorCode) bool {
	return visit(err, func(e *Error) bool { return e.Code == code })
}

// visit calls fn on every *Error in err's tree, depth first, until fn
// returns true.
func visit(err error, fn func(*Error) bool) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && fn(e) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return visit(u.Unwrap(), fn)
	case interface{ Unwrap() []error }:
		for _, branch := range u.Unwrap() {
			if visit(branch, fn) {
				return true
			}
		}
	}
	return false
}

// IsConstraintError returns true if a ConstraintError is anywhere in err's tree.
func IsConstraintError(err error) bool {
	return HasCode(err, ErrCodeConstraint)
}

// IsNotFoundError returns true if a NotFoundError is anywhere in err's tree.
func IsNotFoundError(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsAbortError returns true if an AbortError is anywhere in err's tree.
func IsAbortError(err error) bool {
	return HasCode(err, ErrCodeAbort)
}

// fromStore maps a store-layer error onto an engine error.
func fromStore(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	code := ErrCodeUnknown
	switch {
	case errors.Is(err, store.ErrConstraint), errors.Is(err, store.ErrExists):
		code = ErrCodeConstraint
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, store.ErrInvalidKey):
		code = ErrCodeData
	}
	return &Error{Code: code, Message: "storage operation failed", Err: err}
}

// abortError wraps the reason a transaction was aborted.
func abortError(cause error) *Error {
	if cause == nil {
		return newError(ErrCodeAbort, "transaction aborted")
	}
	return &Error{Code: ErrCodeAbort, Message: "transaction aborted", Err: cause}
}
