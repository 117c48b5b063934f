package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements ThreadStore using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
	retry   shared.RetryPolicy
}

var _ ThreadStore = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed thread store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS threads (
		thread_id TEXT PRIMARY KEY,
		pending_action TEXT,
		snapshot TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at);
	CREATE INDEX IF NOT EXISTS idx_threads_pending ON threads(pending_action);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get retrieves the latest snapshot for a thread.
func (s *SQLiteStore) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}

	var snapshot string
	err := shared.RetryOnConflict(ctx, s.retry, "get_thread", func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT snapshot FROM threads WHERE thread_id = ?`, threadID,
		).Scan(&snapshot)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread row: %w", err)
	}

	return decodeThread(threadID, []byte(snapshot))
}

// Put creates or overwrites the snapshot for a thread.
func (s *SQLiteStore) Put(ctx context.Context, thread *domain.Thread) error {
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}

	var pending interface{}
	if thread.PendingAction != nil {
		pending = thread.PendingAction.Name
	}

	query := `
	INSERT INTO threads (thread_id, pending_action, snapshot, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(thread_id) DO UPDATE SET
		pending_action = excluded.pending_action,
		snapshot = excluded.snapshot,
		updated_at = excluded.updated_at`

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = shared.RetryOnConflict(ctx, s.retry, "put_thread", func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			thread.ID, pending, string(data),
			thread.CreatedAt.Unix(), thread.UpdatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
