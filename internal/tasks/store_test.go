package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok, "unknown task is pending, not an error")

	require.NoError(t, s.Put(ctx, "task-1", Result{State: StateSuccess, Value: "Indexed 3 PDF files successfully."}))

	got, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateSuccess, got.State)
	assert.Equal(t, "Indexed 3 PDF files successfully.", got.Value)

	// read-many: result stays until TTL
	_, ok, err = s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreTTLEviction(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "task-1", Result{State: StateFailure, Value: "boom"}))

	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok, "expired result must be evicted")
}

func TestMemoryStoreZeroTTLKeepsResults(t *testing.T) {
	s := NewMemoryStore(0)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "task-1", Result{State: StateSuccess}))
	now = now.Add(24 * time.Hour)
	_, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, ttl), mr
}

func TestRedisStorePutGet(t *testing.T) {
	s, _ := setupRedisStore(t, time.Minute)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "task-1", Result{State: StateSuccess, Value: "done"}))

	got, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Result{State: StateSuccess, Value: "done"}, got)
}

func TestRedisStoreTTLEviction(t *testing.T) {
	s, mr := setupRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "task-1", Result{State: StateSuccess, Value: "done"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
