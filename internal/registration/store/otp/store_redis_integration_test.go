//go:build integration

package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/pkg/testutil/containers"
)

func TestRedisStore_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	t.Run("valid code is consumed", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisStore(rc.Client)

		code, err := store.Generate(ctx, "a@x.com")
		require.NoError(t, err)
		require.Len(t, code, CodeLength)

		outcome, err := store.Verify(ctx, "a@x.com", code)
		require.NoError(t, err)
		assert.Equal(t, OutcomeValid, outcome)

		outcome, err = store.Verify(ctx, "a@x.com", code)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, outcome)
	})

	t.Run("attempt budget exhausts", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisStore(rc.Client)

		code, err := store.Generate(ctx, "a@x.com")
		require.NoError(t, err)

		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		for i := 0; i < DefaultMaxAttempts-1; i++ {
			outcome, err := store.Verify(ctx, "a@x.com", wrong)
			require.NoError(t, err)
			assert.Equal(t, OutcomeMismatch, outcome)
		}

		outcome, err := store.Verify(ctx, "a@x.com", wrong)
		require.NoError(t, err)
		assert.Equal(t, OutcomeExhausted, outcome)

		outcome, err = store.Verify(ctx, "a@x.com", code)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, outcome)
	})

	t.Run("mismatch keeps the ttl", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisStore(rc.Client, WithRedisTTL(time.Minute))

		code, err := store.Generate(ctx, "a@x.com")
		require.NoError(t, err)

		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}
		_, err = store.Verify(ctx, "a@x.com", wrong)
		require.NoError(t, err)

		ttl := rc.Client.TTL(ctx, "otp:email:a@x.com").Val()
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("ttl expires the code", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisStore(rc.Client, WithRedisTTL(time.Second))

		code, err := store.Generate(ctx, "a@x.com")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			outcome, err := store.Verify(ctx, "a@x.com", code)
			return err == nil && outcome == OutcomeNotFound
		}, 3*time.Second, 100*time.Millisecond)
	})
}
