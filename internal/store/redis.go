package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements ThreadStore with one string key per thread.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ThreadStore = (*RedisStore)(nil)

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if prefix == "" {
		prefix = "retention:thread"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + ":" + threadID
}

// Get returns the stored snapshot.
func (s *RedisStore) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return decodeThread(threadID, data)
}

// Put overwrites the snapshot. Keys never expire.
func (s *RedisStore) Put(ctx context.Context, thread *domain.Thread) error {
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(thread.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("set thread: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
