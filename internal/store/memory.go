package store

import (
	"context"
	"sync"

	"github.com/ashureev/retention-agent/internal/domain"
)

// MemoryStore keeps snapshots in process memory. Snapshots are deep-copied on
// the way in and out so callers never share mutable state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*domain.Thread
}

var _ ThreadStore = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*domain.Thread)}
}

// Get returns a copy of the stored snapshot.
func (s *MemoryStore) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return thread.Clone(), nil
}

// Put stores a copy of the snapshot.
func (s *MemoryStore) Put(ctx context.Context, thread *domain.Thread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if thread == nil || thread.ID == "" {
		return ErrInvalidThreadID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = thread.Clone()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
