package store

import "errors"

// Sentinel errors returned by Tx methods. Wrapped with context; match with errors.Is.
var (
	// ErrNotFound means a referenced object store or index does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists means an object store or index with that name already exists.
	ErrExists = errors.New("already exists")

	// ErrConstraint means a write would violate a primary key or unique index.
	ErrConstraint = errors.New("constraint violation")

	// ErrInvalidKey means a value could not be used as a key.
	ErrInvalidKey = errors.New("invalid key")
)
