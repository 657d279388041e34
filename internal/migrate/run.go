// Package migrate applies the embedded investigation schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serializes migration runs across replicas that start at the same time.
const lockKey int64 = 0x696e7673

// Options configures Run.
type Options struct {
	Logger *slog.Logger
}

// Migration is one embedded migration file.
type Migration struct {
	Version string
	File    string
}

// Available lists the embedded migrations in apply order.
func Available() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), File: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending lists the embedded migrations that have not been recorded in schema_migrations.
func Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	all, err := Available()
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, m := range all {
		applied, err := isApplied(ctx, db, m)
		if err != nil {
			return nil, err
		}
		if !applied {
			out = append(out, m)
		}
	}
	return out, nil
}

// Run applies every pending migration, each in its own transaction. Concurrent callers
// wait on a session advisory lock, so running it from several replicas is safe.
func Run(ctx context.Context, db *sql.DB, opts Options) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockKey); unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("release migration lock: %w", unlockErr))
		}
	}()

	pending, err := Pending(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range pending {
		logger.InfoContext(ctx, "applying migration", "version", m.Version)
		if err = apply(ctx, conn, m); err != nil {
			return err
		}
	}
	return nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, m Migration) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.File, err)
	}
	return exists, nil
}

func apply(ctx context.Context, conn *sql.Conn, m Migration) error {
	body, err := migrationsFS.ReadFile("migrations/" + m.File)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.File, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", m.File, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.File, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.File, err)
	}
	return nil
}
