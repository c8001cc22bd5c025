// Package testutil provides shared helpers for tests that need a real
// mailbox database. Each test gets its own SQLite file under t.TempDir with
// all migrations applied, so tests never share or leak state.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" driver
	"github.com/pressly/goose/v3"

	"github.com/waymark-app/waymark/migrations"
)

// NewMailboxDB opens a throwaway SQLite database with the mailbox schema
// migrated up. The file lives in the test's temp dir and the handle is
// closed automatically when the test (and all its subtests) finish.
func NewMailboxDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mailbox.db")
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("testutil.NewMailboxDB: open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		t.Fatalf("testutil.NewMailboxDB: create goose provider: %v", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		t.Fatalf("testutil.NewMailboxDB: run migrations: %v", err)
	}

	return db
}

// MailboxPath returns a path for a fresh mailbox file in the test's temp
// dir, for code paths that open the database themselves (mailbox.Open).
func MailboxPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mailbox.db")
}
