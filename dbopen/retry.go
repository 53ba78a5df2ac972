package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// busyAttempts is how many times a BUSY statement is tried before giving up.
const busyAttempts = 3

// IsBusy reports whether err indicates an SQLite BUSY condition: SQLITE_BUSY,
// "database is locked", or "database table is locked".
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withBusyRetry runs op up to busyAttempts times, sleeping 100/200/300 ms
// between BUSY failures. Any other error returns immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		err = op()
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt == busyAttempts {
			break
		}
		t := time.NewTimer(time.Duration(100*attempt) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: context cancelled during retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return err
}

// RunTx runs fn inside a transaction, retrying the whole transaction on
// SQLITE_BUSY. An error from fn rolls back and is returned unwrapped, so
// callers can match it with errors.Is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes one statement with BUSY retry.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withBusyRetry(ctx, func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
