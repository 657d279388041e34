// Package pgxutil bridges database/sql pools to native pgx connections and transactions.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// DefaultTxAttempts bounds how often WithPgxTx reruns a transaction that lost a serialization race.
const DefaultTxAttempts = 3

// SQLTxConfig groups parameters for WithSQLTx.
type SQLTxConfig struct {
	Opts *sql.TxOptions
	Fn   func(*sql.Tx) error
}

// TxConfig groups parameters for WithPgxTx.
type TxConfig struct {
	Opts *sql.TxOptions
	Fn   func(pgx.Tx) error
	// Attempts caps reruns after serialization failures or deadlocks. Zero means DefaultTxAttempts.
	// Fn must be safe to rerun.
	Attempts int
}

// WithSQLTx runs the given function within a database/sql transaction.
func WithSQLTx(ctx context.Context, db *sql.DB, cfg SQLTxConfig) (err error) {
	tx, err := db.BeginTx(ctx, cfg.Opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()
	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func txOptions(opts *sql.TxOptions) pgx.TxOptions {
	var out pgx.TxOptions
	if opts == nil {
		return out
	}
	switch opts.Isolation {
	case sql.LevelSerializable, sql.LevelLinearizable:
		out.IsoLevel = pgx.Serializable
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		out.IsoLevel = pgx.RepeatableRead
	case sql.LevelReadCommitted, sql.LevelWriteCommitted:
		out.IsoLevel = pgx.ReadCommitted
	case sql.LevelReadUncommitted:
		out.IsoLevel = pgx.ReadUncommitted
	}
	if opts.ReadOnly {
		out.AccessMode = pgx.ReadOnly
	}
	return out
}

// WithPgxConn acquires a *pgx.Conn via the stdlib bridge and executes fn with it.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		return fn(std.Conn())
	})
}

// WithPgxTx runs fn in a pgx transaction. Concurrent callbacks and the coordinator lock the
// same investigation row, so a transaction aborted by a serialization failure or deadlock is
// rerun up to cfg.Attempts times.
func WithPgxTx(ctx context.Context, db *sql.DB, cfg TxConfig) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}
	var err error
	for attempt := range attempts {
		err = WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
			return runTx(ctx, conn, cfg)
		})
		if err == nil || !Retryable(err) || attempt == attempts-1 {
			return err
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 10 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

func runTx(ctx context.Context, conn *pgx.Conn, cfg TxConfig) error {
	tx, err := conn.BeginTx(ctx, txOptions(cfg.Opts))
	if err != nil {
		return fmt.Errorf("begin pgx tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pgx tx: %w", err)
	}
	return nil
}

// Retryable reports whether err is a transient conflict that a rerun of the transaction can resolve.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

// CollectOne runs query on conn and scans exactly one row into T by column name.
// It returns pgx.ErrNoRows when the query matches nothing.
func CollectOne[T any](ctx context.Context, conn *pgx.Conn, query string, args ...any) (T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
}

// CollectAll runs query on conn and scans every row into T by column name.
func CollectAll[T any](ctx context.Context, conn *pgx.Conn, query string, args ...any) ([]T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}
