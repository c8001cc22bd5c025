package mailbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/pressly/goose/v3"

	"github.com/waymark-app/waymark/migrations"
)

// SQLiteStore persists mailbox entries in a SQLite file shared by every
// process in the application's group. SQLite's own file locking arbitrates
// concurrent access; the set-once-then-clear write discipline keeps each
// write a single statement.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the mailbox database at path and applies
// any pending schema migrations. The busy timeout makes a writer wait out a
// briefly held lock from the other process instead of failing immediately.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mailbox.Open: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("mailbox.Open: open: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mailbox.Open: create goose provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("mailbox.Open: run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Set writes or overwrites one entry.
func (s *SQLiteStore) Set(ctx context.Context, e Entry) error {
	const q = `INSERT INTO mailbox (key, value, set_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, set_at = excluded.set_at`
	if _, err := s.db.ExecContext(ctx, q, string(e.Key), e.Value, e.SetAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("mailbox.SQLiteStore.Set: %w", err)
	}
	return nil
}

// Get reads one entry; the second return is false when the slot is empty.
func (s *SQLiteStore) Get(ctx context.Context, k Key) (Entry, bool, error) {
	const q = `SELECT value, set_at FROM mailbox WHERE key = ?`
	var (
		value string
		setAt string
	)
	err := s.db.QueryRowContext(ctx, q, string(k)).Scan(&value, &setAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("mailbox.SQLiteStore.Get: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, setAt)
	if err != nil {
		return Entry{}, false, fmt.Errorf("mailbox.SQLiteStore.Get: parse set_at: %w", err)
	}
	return Entry{Key: k, Value: value, SetAt: at}, true, nil
}

// Clear removes the given slots. Clearing an absent slot is a no-op, so a
// reconciliation pass can clear everything it read without re-checking.
func (s *SQLiteStore) Clear(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mailbox.SQLiteStore.Clear: begin: %w", err)
	}
	defer tx.Rollback()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM mailbox WHERE key = ?`, string(k)); err != nil {
			return fmt.Errorf("mailbox.SQLiteStore.Clear: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mailbox.SQLiteStore.Clear: commit: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
