package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/retention-agent/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var threadsBucket = []byte("threads")

// BoltStore implements ThreadStore on a single bbolt file.
type BoltStore struct {
	db *bolt.DB
}

var _ ThreadStore = (*BoltStore)(nil)

// NewBolt opens (or creates) the bbolt database at path.
func NewBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(threadsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create threads bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get returns the stored snapshot.
func (s *BoltStore) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(threadsBucket).Get([]byte(threadID))
		if v == nil {
			return ErrThreadNotFound
		}
		// v is only valid inside the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeThread(threadID, data)
}

// Put overwrites the snapshot for thread.ID.
func (s *BoltStore) Put(ctx context.Context, thread *domain.Thread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(threadsBucket).Put([]byte(thread.ID), data)
	})
	if err != nil {
		return fmt.Errorf("put thread %s: %w", thread.ID, err)
	}
	return nil
}

// Ping checks that the database can serve a read transaction.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(threadsBucket) == nil {
			return fmt.Errorf("threads bucket missing")
		}
		return nil
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
