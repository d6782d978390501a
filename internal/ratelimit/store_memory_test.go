package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryWindowStore_IncrCountsWithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryWindowStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	count, remaining, err := store.Incr(ctx, "rl:check_phone:+15551230001", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, remaining)

	count, _, err = store.Incr(ctx, "rl:check_phone:+15551230001", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestInMemoryWindowStore_WindowTTLFixedAtCreation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryWindowStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	_, _, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(40 * time.Second)
	count, remaining, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "later increments do not extend the window")
	assert.Equal(t, 20*time.Second, remaining)
}

func TestInMemoryWindowStore_ExpiredWindowRestarts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryWindowStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := store.Incr(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	now = now.Add(61 * time.Second)
	count, remaining, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a lapsed window starts from scratch")
	assert.Equal(t, time.Minute, remaining)
}
