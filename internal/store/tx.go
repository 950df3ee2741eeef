package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"folio/internal/logging"
	"folio/internal/services"
)

// TxFn executes within a database transaction. Returning an error rolls the
// transaction back; returning nil commits it.
type TxFn func(ctx context.Context, tx *sql.Tx) error

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// IsBusy reports whether err is SQLite's lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// RetryOnBusy runs op, retrying with exponential backoff while it fails with
// SQLITE_BUSY. Other errors are returned immediately.
func RetryOnBusy(ctx context.Context, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = busyRetryInitialBackoff
	policy.MaxInterval = busyRetryMaxBackoff
	policy.MaxElapsedTime = 0

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, backoff.WithContext(backoff.WithMaxRetries(policy, busyRetryAttempts-1), ctx))
	if err != nil && ctx.Err() != nil && lastErr != nil && IsBusy(lastErr) {
		return ctx.Err()
	}
	return err
}

// RunInTransaction executes fn within a transaction. The transaction is
// rolled back when fn returns an error or panics (the panic is re-raised).
// Begin and commit failures are tagged with services.ErrTransaction.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logging.WithContext(ctx, slog.Default())

	var tx *sql.Tx
	if beginErr := RetryOnBusy(ctx, func() error {
		var e error
		tx, e = db.BeginTx(ctx, nil)
		return e
	}); beginErr != nil {
		return services.Wrap(services.ErrTransaction, "", "begin", "", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to roll back transaction after panic", logging.String("rollback_error", rbErr.Error()), logging.Any("panic", p))
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("roll back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrTransaction, "", "commit", "", err)
	}
	return nil
}

// RunInTransaction executes fn in a transaction on this database.
func (d *DB) RunInTransaction(ctx context.Context, fn TxFn) error {
	return RunInTransaction(ctx, d.db, fn)
}
