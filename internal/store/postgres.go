package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements ThreadStore with a JSONB snapshot column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ ThreadStore = (*PostgresStore)(nil)

// NewPostgres connects to databaseURL and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			pending_action TEXT,
			snapshot JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_threads_pending ON threads(pending_action);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get returns the stored snapshot.
func (s *PostgresStore) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM threads WHERE thread_id = $1`, threadID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	return decodeThread(threadID, data)
}

// Put upserts the snapshot for thread.ID.
func (s *PostgresStore) Put(ctx context.Context, thread *domain.Thread) error {
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}
	var pending *string
	if thread.PendingAction != nil {
		pending = &thread.PendingAction.Name
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO threads (thread_id, pending_action, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE SET
			pending_action = EXCLUDED.pending_action,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`,
		thread.ID, pending, data, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
