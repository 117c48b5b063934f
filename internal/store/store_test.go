package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleThread(id string) *domain.Thread {
	thread := domain.NewThread(id, fixedTime)
	thread.Append(
		domain.Message{Role: domain.RoleUser, Content: "Check retention for Customer 101"},
		domain.Message{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
			ID:        "call_1",
			Name:      "send_retention_email",
			Arguments: map[string]any{"customer_id": "101", "offer": map[string]any{"discount": 0.2}},
		}}},
	)
	action := thread.Messages[1].ToolCalls[0].Action()
	thread.PendingAction = &action
	return thread
}

func openers(t *testing.T) map[string]func(t *testing.T) ThreadStore {
	t.Helper()
	out := map[string]func(t *testing.T) ThreadStore{
		"memory": func(t *testing.T) ThreadStore { return NewMemory() },
		"sqlite": func(t *testing.T) ThreadStore {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "threads.db"))
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) ThreadStore {
			s, err := NewBolt(filepath.Join(t.TempDir(), "threads.bolt"))
			require.NoError(t, err)
			return s
		},
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		out["postgres"] = func(t *testing.T) ThreadStore {
			s, err := NewPostgres(context.Background(), url)
			require.NoError(t, err)
			return s
		}
	}
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		out["redis"] = func(t *testing.T) ThreadStore {
			s, err := NewRedis(context.Background(), addr, "", fmt.Sprintf("test:%d", time.Now().UnixNano()))
			require.NoError(t, err)
			return s
		}
	}
	return out
}

func TestThreadStoreContract(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })

			require.NoError(t, s.Ping(ctx))

			_, err := s.Get(ctx, "missing-"+name)
			require.ErrorIs(t, err, ErrThreadNotFound)

			want := sampleThread("thread-" + name)
			require.NoError(t, s.Put(ctx, want))

			first, err := s.Get(ctx, want.ID)
			require.NoError(t, err)
			second, err := s.Get(ctx, want.ID)
			require.NoError(t, err)
			assert.Equal(t, first, second, "consecutive reads must be identical")
			assert.Equal(t, want, first)

			// Full overwrite.
			want.PendingAction = nil
			want.Append(domain.Message{Role: domain.RoleAssistant, Content: "done"})
			want.UpdatedAt = fixedTime.Add(time.Minute)
			require.NoError(t, s.Put(ctx, want))

			got, err := s.Get(ctx, want.ID)
			require.NoError(t, err)
			assert.Nil(t, got.PendingAction)
			assert.Len(t, got.Messages, 3)
			assert.Equal(t, domain.ThreadStatusReady, got.Status(nil))
		})
	}
}

func TestThreadStoreRejectsBlankID(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })

			_, err := s.Get(context.Background(), "")
			assert.ErrorIs(t, err, ErrInvalidThreadID)
			assert.ErrorIs(t, s.Put(context.Background(), &domain.Thread{}), ErrInvalidThreadID)
		})
	}
}

func TestMemoryStoreIsolatesSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	thread := sampleThread("t1")
	require.NoError(t, s.Put(ctx, thread))

	thread.PendingAction.Arguments["customer_id"] = "999"
	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "101", got.PendingAction.Arguments["customer_id"])

	got.Messages[0].Content = "mutated"
	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Check retention for Customer 101", again.Messages[0].Content)
}

func TestSQLiteStoreConcurrentThreads(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread := sampleThread(fmt.Sprintf("thread-%d", i))
			for j := 0; j < 5; j++ {
				thread.Append(domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("msg %d", j)})
				assert.NoError(t, s.Put(ctx, thread))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		got, err := s.Get(ctx, fmt.Sprintf("thread-%d", i))
		require.NoError(t, err)
		assert.Len(t, got.Messages, 7)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Options{SQLitePath: filepath.Join(dir, "default.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: "BOLT", BoltPath: filepath.Join(dir, "b.bolt")})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Driver: "cassandra"})
	assert.Error(t, err)
}
