package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLite stores one row per turn. Writers are serialized in-process by mu
// and across processes by the file lock.
type SQLite struct {
	mu   sync.Mutex
	db   *sql.DB
	lock *flock.Flock
}

func OpenSQLite(path, lockPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create conversation store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create conversation lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS conversations (
			user_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			user_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (user_id, seq)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init conversation schema: %w", err)
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

func (s *SQLite) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, 5*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock conversation store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock conversation store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *SQLite) Register(ctx context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO conversations (user_id, created_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING",
			userID, time.Now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("register conversation: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Append(ctx context.Context, userID string, turns ...model.Turn) ([]model.Turn, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	err := s.withLock(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin append: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conversations (user_id, created_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING",
			userID, time.Now().UTC().Unix()); err != nil {
			return fmt.Errorf("register conversation: %w", err)
		}
		var next int64
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM turns WHERE user_id = ?", userID).Scan(&next); err != nil {
			return fmt.Errorf("read turn sequence: %w", err)
		}
		for _, turn := range turns {
			next++
			payload, err := json.Marshal(turn)
			if err != nil {
				return fmt.Errorf("marshal turn: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO turns (user_id, seq, role, created_at, payload) VALUES (?, ?, ?, ?, ?)",
				userID, next, string(turn.Role), turn.At.UTC().Unix(), payload); err != nil {
				return fmt.Errorf("append turn: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, userID)
}

func (s *SQLite) Reset(ctx context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("reset conversation: %w", err)
		}
		return nil
	})
}

// Read skips rows whose payload cannot be decoded.
func (s *SQLite) Read(ctx context.Context, userID string) ([]model.Turn, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM turns WHERE user_id = ? ORDER BY seq ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	defer rows.Close()

	turns := make([]model.Turn, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		var turn model.Turn
		if err := json.Unmarshal(payload, &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}
