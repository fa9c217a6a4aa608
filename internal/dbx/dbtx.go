// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// and helpers to run functions inside a transaction.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RollbackDecider is implemented by errors that know whether the transaction
// they abort must discard its writes.
type RollbackDecider interface {
	RollbackRequired() bool
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// WithTxPolicy is WithTx with a per-error disposition. When fn fails with an
// error whose RollbackRequired reports false, the transaction is still
// committed and the error is returned to the caller. Every other error,
// including ones that do not implement RollbackDecider, rolls back.
//
// A failed commit is returned instead of fn's error: the writes it was
// meant to keep did not persist.
func WithTxPolicy(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			if !committed {
				_ = tx.Rollback()
			}
			panic(p)
		}
	}()

	fnErr := fn(ctx, tx)
	if fnErr != nil && ShouldRollback(fnErr) {
		_ = tx.Rollback()
		return fnErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true

	return fnErr
}

// ShouldRollback reports the disposition of err under WithTxPolicy.
func ShouldRollback(err error) bool {
	if err == nil {
		return false
	}
	var d RollbackDecider
	if errors.As(err, &d) {
		return d.RollbackRequired()
	}
	return true
}
