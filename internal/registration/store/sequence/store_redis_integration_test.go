//go:build integration

package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/registration/models"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/testutil/containers"
)

func TestRedisStore_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)
	ctx := context.Background()

	t.Run("put and get round trip", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		state := &models.SequenceState{
			PhoneNumber: "+15551230001",
			Step:        models.StepEmailChecked,
			Email:       "a@x.com",
			UpdatedAt:   time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, store.Put(ctx, state, time.Minute))

		got, err := store.Get(ctx, "+15551230001")
		require.NoError(t, err)
		assert.Equal(t, models.StepEmailChecked, got.Step)
		assert.Equal(t, "a@x.com", got.Email)
	})

	t.Run("missing phone", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		_, err := store.Get(ctx, "+15559990000")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("email index follows put and clear", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		state := &models.SequenceState{
			PhoneNumber: "+15551230001",
			Step:        models.StepOTPSent,
			Email:       "a@x.com",
		}
		require.NoError(t, store.Put(ctx, state, time.Minute))

		phone, err := store.PhoneByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "+15551230001", phone)

		require.NoError(t, store.Clear(ctx, "+15551230001"))

		_, err = store.Get(ctx, "+15551230001")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = store.PhoneByEmail(ctx, "a@x.com")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("ttl expires the record", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		state := &models.SequenceState{
			PhoneNumber: "+15551230001",
			Step:        models.StepPhoneChecked,
		}
		require.NoError(t, store.Put(ctx, state, time.Second))

		require.Eventually(t, func() bool {
			_, err := store.Get(ctx, "+15551230001")
			return err != nil
		}, 3*time.Second, 100*time.Millisecond, "the record should expire")
	})
}
