// Package store provides thread snapshot persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/retention-agent/internal/domain"
)

// ErrThreadNotFound is returned by Get when no snapshot exists for the id.
var ErrThreadNotFound = errors.New("thread not found")

// ErrInvalidThreadID is returned for blank thread ids.
var ErrInvalidThreadID = errors.New("thread id is required")

// ThreadStore is a durable mapping from thread id to the latest thread snapshot.
// Put has full-snapshot overwrite semantics. Implementations must be safe for
// concurrent use across different thread ids.
type ThreadStore interface {
	// Get returns the latest snapshot or ErrThreadNotFound.
	Get(ctx context.Context, threadID string) (*domain.Thread, error)

	// Put replaces the stored snapshot for thread.ID.
	Put(ctx context.Context, thread *domain.Thread) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

func encodeThread(thread *domain.Thread) ([]byte, error) {
	if thread == nil || thread.ID == "" {
		return nil, ErrInvalidThreadID
	}
	data, err := json.Marshal(thread)
	if err != nil {
		return nil, fmt.Errorf("encode thread %s: %w", thread.ID, err)
	}
	return data, nil
}

func decodeThread(threadID string, data []byte) (*domain.Thread, error) {
	var thread domain.Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	return &thread, nil
}
