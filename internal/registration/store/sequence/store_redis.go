package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"onboard/internal/registration/models"
	"onboard/pkg/platform/sentinel"
)

const (
	phoneKeyPrefix = "seq:phone:"
	emailKeyPrefix = "seq:email:"
)

// RedisStore is the production Store. Expiry is delegated to Redis TTLs, so
// no sweeper is needed; SET is last-write-wins, which is the contract for
// racing duplicate deliveries on the same phone.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed sequence store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*models.SequenceState, error) {
	raw, err := s.client.Get(ctx, phoneKeyPrefix+phone).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence state: %w", err)
	}

	var state models.SequenceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode sequence state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, state *models.SequenceState, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode sequence state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, phoneKeyPrefix+state.PhoneNumber, raw, ttl)
	if state.Email != "" {
		pipe.Set(ctx, emailKeyPrefix+state.Email, state.PhoneNumber, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put sequence state: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, phone string) error {
	keys := []string{phoneKeyPrefix + phone}
	if state, err := s.Get(ctx, phone); err == nil && state.Email != "" {
		keys = append(keys, emailKeyPrefix+state.Email)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear sequence state: %w", err)
	}
	return nil
}

func (s *RedisStore) PhoneByEmail(ctx context.Context, email string) (string, error) {
	phone, err := s.client.Get(ctx, emailKeyPrefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get sequence email index: %w", err)
	}
	return phone, nil
}
