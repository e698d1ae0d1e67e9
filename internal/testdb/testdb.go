// Package testdb opens migrated SQLite databases for package tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/rpattn/revstore/internal/db"
	"github.com/rpattn/revstore/internal/uow"
)

// Config returns a SQLite config pointing into a per-test directory.
func Config(t testing.TB) db.Config {
	t.Helper()
	return db.Config{
		Driver: db.DialectSQLite,
		Path:   filepath.Join(t.TempDir(), "revstore.db"),
	}
}

// Open migrates a fresh SQLite database and connects to it. The connection
// is closed when the test finishes.
func Open(t testing.TB) *db.Connection {
	t.Helper()

	ctx := context.Background()
	cfg := Config(t)
	log := zaptest.NewLogger(t)

	if err := db.RunMigrations(ctx, cfg, log); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	conn, err := db.Open(ctx, cfg, log)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return conn
}

// Units returns a unit-of-work manager over conn.
func Units(t testing.TB, conn *db.Connection) *uow.Manager {
	t.Helper()
	return uow.NewManager(conn.DB, uow.WithLogger(zaptest.NewLogger(t)))
}
