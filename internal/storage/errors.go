// Package storage defines the persistence-layer interfaces that the
// resolver, sweeper, store manager, and recall engine depend on, plus the
// small set of typed errors every storage backend must surface instead of
// leaking raw driver errors.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors returned by every Store implementation. Callers test
// against these with errors.Is; a backend-specific driver error is never
// exposed directly.
var (
	// ErrNotFound means a lookup by id found no row. Read paths convert
	// this into a null object rather than propagating it as a failure.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidID means a caller-supplied id was empty or malformed.
	ErrInvalidID = errors.New("storage: invalid id")

	// ErrConflict means a write violated a uniqueness or cardinality
	// constraint the caller did not already account for.
	ErrConflict = errors.New("storage: conflict")

	// ErrBusy means the underlying connection could not acquire the write
	// lock within the configured busy-timeout, even after retry.
	ErrBusy = errors.New("storage: busy")

	// ErrSchemaMismatch means the database's recorded schema version does
	// not match the version this binary expects. It is always fatal.
	ErrSchemaMismatch = errors.New("storage: schema mismatch")

	// ErrDimensionMismatch means an embedding was supplied with a length
	// other than the store's configured vector dimension.
	ErrDimensionMismatch = errors.New("storage: vector dimension mismatch")
)

// wrapDBError normalizes a raw *sql driver error into one of the sentinel
// errors above, tagging it with the operation name for diagnostics.
// Mirrors the teacher's wrapDBError/classify pattern: sql.ErrNoRows always
// becomes ErrNotFound, everything else is wrapped but left distinguishable
// via errors.Is/errors.As.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapDBError exports wrapDBError for use by sub-packages (sqlite backend)
// that live outside this package but share its error taxonomy.
func WrapDBError(op string, err error) error { return wrapDBError(op, err) }
