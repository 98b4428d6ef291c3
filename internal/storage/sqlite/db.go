// Package sqlite implements storage.Store over an embedded SQLite file
// using the pure-Go ncruces/go-sqlite3 driver (no cgo, wazero-backed),
// optionally with the sqlite-vec extension for native vector k-NN.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/storage"
)

// Options configures one Store's connection and feature set.
type Options struct {
	// Path is the sqlite file path. ":memory:" is accepted for tests but
	// loses WAL's multi-process guarantees.
	Path string
	// BusyTimeout is the minimum lock-wait before ErrBusy, per the
	// persistence layer's ≥5s requirement.
	BusyTimeout time.Duration
	// VectorMode forces native or fallback vector storage; VectorModeAuto
	// probes for the vec0 module at open time.
	VectorMode config.VectorMode
	VectorDim  int
}

// DB is one opened, migrated sqlite-backed store.
type DB struct {
	conn       *sql.DB
	vectorMode string
	dim        int
	lexical    *lexicalIndex
	vector     vectorBackend
}

var _ storage.Store = (*DB)(nil)

// Open opens (creating if absent) the sqlite file at opts.Path, applies
// WAL/synchronous/busy-timeout/foreign_keys pragmas via DSN query
// parameters, runs pending migrations, and resolves the vector backend.
// Schema mismatch detected during migration is fatal and returned
// unwrapped so the caller can recommend the health-check reporter.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.VectorDim <= 0 {
		opts.VectorDim = 384
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_txlock=immediate",
		opts.Path, opts.BusyTimeout.Milliseconds(),
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", opts.Path, err)
	}
	conn.SetMaxOpenConns(1) // one writer per process handle; WAL gives cross-process concurrency

	if err := runMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	mode, vb, err := openVectorBackend(ctx, conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}

	lex, err := newLexicalIndex(opts.Path)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, vectorMode: mode, dim: opts.VectorDim, lexical: lex, vector: vb}, nil
}

// Close releases the underlying connection pool and lexical indices.
func (d *DB) Close() error {
	if err := d.lexical.close(); err != nil {
		d.conn.Close()
		return err
	}
	return d.conn.Close()
}

// Checkpoint runs a truncating WAL checkpoint, bounding WAL file growth
// per the persistence layer's operational requirements.
func (d *DB) Checkpoint(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	if err != nil {
		return storage.WrapDBError("checkpoint", err)
	}
	return nil
}

// sqlTx adapts *sql.Tx to the storage.Tx interface.
type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// beginBusyMaxElapsed bounds how long Begin retries a busy write lock
// before giving up and surfacing storage.ErrBusy.
const beginBusyMaxElapsed = 5 * time.Second

func newBeginBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = beginBusyMaxElapsed
	return bo
}

// isBusyError reports whether err is SQLite's SQLITE_BUSY / "database is
// locked" condition, the only case Begin retries.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// Begin opens a new write transaction. The DSN's _txlock=immediate makes
// every BeginTx issue SQLite's BEGIN IMMEDIATE under the hood, so the
// write lock is acquired up front rather than upgraded lazily mid-
// transaction. A transient SQLITE_BUSY from a concurrent writer is
// retried with exponential backoff, mirroring the teacher's dolt store's
// withRetry/isRetryableError pattern (internal/storage/dolt/store.go).
func (d *DB) Begin(ctx context.Context) (storage.Tx, error) {
	var tx *sql.Tx
	retryErr := backoff.Retry(func() error {
		var beginErr error
		tx, beginErr = d.conn.BeginTx(ctx, nil)
		if beginErr == nil {
			return nil
		}
		if isBusyError(beginErr) {
			return beginErr
		}
		return backoff.Permanent(beginErr)
	}, backoff.WithContext(newBeginBackoff(), ctx))
	if retryErr != nil {
		if isBusyError(retryErr) {
			return nil, fmt.Errorf("sqlite: begin: %w", storage.ErrBusy)
		}
		return nil, storage.WrapDBError("begin", retryErr)
	}
	return &sqlTx{tx: tx}, nil
}

func txOf(tx storage.Tx) (*sql.Tx, error) {
	t, ok := tx.(*sqlTx)
	if !ok || t.tx == nil {
		return nil, fmt.Errorf("sqlite: tx not opened by this store")
	}
	return t.tx, nil
}

// txOrConn returns tx's underlying *sql.Tx when tx is non-nil, otherwise
// the store's plain pool connection. Used by read methods that are called
// both from inside an in-flight write transaction (where they must see
// that transaction's own uncommitted writes) and from plain read paths
// (where no transaction is open at all).
func (d *DB) txOrConn(tx storage.Tx) (querier, error) {
	if tx == nil {
		return d.conn, nil
	}
	return txOf(tx)
}
