package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestLimiter(t *testing.T, now *time.Time) *Limiter {
	t.Helper()
	clock := func() time.Time { return *now }
	store := NewInMemoryWindowStore(WithMemoryClock(clock))
	return New(store, DefaultOperations(), discardLogger(), WithClock(clock))
}

func TestLimiter_AllowWithinBudget(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		result, err := limiter.Allow(ctx, OpCheckPhone, "+15551230001")
		require.NoError(t, err, "request %d should be allowed", i)
		assert.True(t, result.Allowed)
		assert.Equal(t, 10-i, result.Remaining)
	}
}

func TestLimiter_RejectsOverBudget(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
		require.NoError(t, err)
	}

	result, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
	require.Error(t, err)

	var limited *LimitExceededError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, OpSendEmailOTP, limited.Operation)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Positive(t, result.RetryAfter)
	assert.LessOrEqual(t, result.RetryAfter, int((5 * time.Minute).Seconds()))
}

func TestLimiter_WindowResets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
		require.NoError(t, err)
	}
	_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
	require.Error(t, err)

	now = now.Add(5*time.Minute + time.Second)

	result, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)
}

func TestLimiter_IndependentIdentifiers(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
		require.NoError(t, err)
	}
	_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
	require.Error(t, err)

	_, err = limiter.Allow(ctx, OpSendEmailOTP, "b@x.com")
	require.NoError(t, err, "a different identifier has its own window")
}

func TestLimiter_IndependentOperations(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
		require.NoError(t, err)
	}
	_, err := limiter.Allow(ctx, OpSendEmailOTP, "a@x.com")
	require.Error(t, err)

	_, err = limiter.Allow(ctx, OpCheckEmail, "a@x.com")
	require.NoError(t, err, "budgets are per operation, not per identifier")
}

func TestLimiter_UnknownOperationPanics(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)

	assert.Panics(t, func() {
		_, _ = limiter.Allow(context.Background(), "verify_email", "a@x.com")
	})
}

func TestLimiter_StoreError(t *testing.T) {
	clock := func() time.Time { return time.Now() }
	limiter := New(failingStore{}, DefaultOperations(), discardLogger(), WithClock(clock))

	_, err := limiter.Allow(context.Background(), OpCheckPhone, "+15551230001")
	require.Error(t, err)

	var limited *LimitExceededError
	assert.False(t, errors.As(err, &limited), "store failures are not rate-limit rejections")
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestSanitizeKeySegment(t *testing.T) {
	assert.Equal(t, "+15551230001", SanitizeKeySegment("+15551230001"))
	assert.Equal(t, "a_b@x.com", SanitizeKeySegment("a:b@x.com"))
}
