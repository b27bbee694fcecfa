// Package testutil provides a migrated sqlite database for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/curaious/bizops/internal/migrations"
)

// NewDB opens a fresh sqlite file under t.TempDir() and applies every migration.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "bizops.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	// sqlite allows a single writer; one connection keeps concurrent tests honest
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migrations.NewMigrator(db)
	require.NoError(t, err)
	require.NoError(t, m.Up(0))

	return db
}
