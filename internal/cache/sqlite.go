package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLite persists entries in a single table guarded by a file lock for
// cross-process writers.
type SQLite struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenSQLite(path, lockPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, payload BLOB NOT NULL, fetched_at TEXT NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}
	return &SQLite{db: db, lock: flock.New(lockPath)}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored entry. Rows whose timestamp cannot be parsed are
// reported as absent.
func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool, error) {
	var payload []byte
	var fetched string
	err := s.db.QueryRowContext(ctx, "SELECT payload, fetched_at FROM cache_entries WHERE key = ?", key).Scan(&payload, &fetched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache read: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return Entry{}, false, nil
	}
	return Entry{Key: key, Value: payload, FetchedAt: at}, true, nil
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte, fetchedAt time.Time) error {
	locked, err := s.lock.TryLockContext(ctx, 5*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload=excluded.payload,
			fetched_at=excluded.fetched_at
	`, key, value, fetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
