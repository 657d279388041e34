// Package testutil provides Postgres and Redis harnesses for integration tests of the job store
// and the progress relay. Tests skip when the infrastructure is missing unless TEST_REQUIRE_DB,
// TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/target/mmk-investigations/internal/migrate"
)

// investigationTables lists store tables children first.
var investigationTables = []string{"investigation_reports", "investigation_executions", "investigations"}

// TestDBConfig holds the connection settings for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The default port 55432 matches the local
// docker compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "investigator"),
		Password: envOr("TEST_DB_PASSWORD", "investigator"),
		DBName:   envOr("TEST_DB_NAME", "investigations"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}
}

// DSN returns the connection URL, optionally pinned to a search_path.
func (c TestDBConfig) DSN(searchPath string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set each test gets
// its own schema, dropped afterwards; otherwise the shared database is wiped before and after.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	fn(SetupAutoDB(t))
}

// SetupAutoDB returns a migrated database whose cleanup is registered on t.
func SetupAutoDB(t testing.TB) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()
	admin := openDB(t, cfg.DSN(""))

	if !envBool("TEST_DB_EPHEMERAL") {
		migrateDB(t, admin)
		wipe(t, admin)
		t.Cleanup(func() {
			wipe(t, admin)
			closeLogged(t, "test db", admin)
		})
		return admin
	}

	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeLogged(t, "admin db", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db := openDB(t, cfg.DSN(schema+",public"))
	t.Cleanup(func() {
		closeLogged(t, "schema db", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		closeLogged(t, "admin db", admin)
	})
	t.Logf("using ephemeral schema %s", schema)
	migrateDB(t, db)
	return db
}

// openDB connects and pings, skipping the test when the database is unreachable.
func openDB(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		skipOrFail(t, requireDB(), "test database not available: %v", err)
	}
	db.SetMaxOpenConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		closeLogged(t, "test db", db)
		skipOrFail(t, requireDB(), "test database not available: %v", err)
	}
	return db
}

func migrateDB(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db, migrate.Options{}); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
}

func wipe(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range investigationTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean table %s: %v", table, err)
		}
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strings.ReplaceAll(time.Now().Format("150405.000000"), ".", "")
	}
	return "t_" + hex.EncodeToString(b)
}

func skipOrFail(t testing.TB, required bool, format string, args ...any) {
	t.Helper()
	if required {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

func closeLogged(t testing.TB, name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", name, err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
