package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/registration/models"
	"onboard/pkg/platform/sentinel"
)

func TestInMemoryStore_PutGetRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	state := &models.SequenceState{
		PhoneNumber: "+15551230001",
		Step:        models.StepPhoneChecked,
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, state, time.Hour))

	got, err := store.Get(ctx, "+15551230001")
	require.NoError(t, err)
	assert.Equal(t, models.StepPhoneChecked, got.Step)
	assert.Equal(t, "+15551230001", got.PhoneNumber)
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Get(context.Background(), "+15559990000")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ExpiryObeysClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	state := &models.SequenceState{
		PhoneNumber: "+15551230001",
		Step:        models.StepEmailChecked,
		Email:       "a@x.com",
	}
	require.NoError(t, store.Put(ctx, state, time.Hour))

	now = now.Add(59 * time.Minute)
	_, err := store.Get(ctx, "+15551230001")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "+15551230001")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "an expired record reads as absent")

	_, err = store.PhoneByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "the email index must not resurrect expired state")
}

func TestInMemoryStore_EmailIndex(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	state := &models.SequenceState{
		PhoneNumber: "+15551230001",
		Step:        models.StepEmailChecked,
		Email:       "a@x.com",
	}
	require.NoError(t, store.Put(ctx, state, time.Hour))

	phone, err := store.PhoneByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "+15551230001", phone)

	_, err = store.PhoneByEmail(ctx, "other@x.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ClearRemovesStateAndIndex(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	state := &models.SequenceState{
		PhoneNumber: "+15551230001",
		Step:        models.StepOTPSent,
		Email:       "a@x.com",
	}
	require.NoError(t, store.Put(ctx, state, time.Hour))
	require.NoError(t, store.Clear(ctx, "+15551230001"))

	_, err := store.Get(ctx, "+15551230001")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.PhoneByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_PutOverwrites(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := &models.SequenceState{PhoneNumber: "+15551230001", Step: models.StepPhoneChecked}
	require.NoError(t, store.Put(ctx, first, time.Hour))

	second := &models.SequenceState{PhoneNumber: "+15551230001", Step: models.StepEmailChecked, Email: "a@x.com"}
	require.NoError(t, store.Put(ctx, second, time.Hour))

	got, err := store.Get(ctx, "+15551230001")
	require.NoError(t, err)
	assert.Equal(t, models.StepEmailChecked, got.Step)
	assert.Equal(t, "a@x.com", got.Email)
}
