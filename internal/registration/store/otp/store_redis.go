package otp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp:email:"

// RedisStore is the production Store. Expiry rides on the Redis TTL; the
// attempt counter update is a read-modify-write with KeepTTL, which is
// sufficient here since sequencing already serializes callers per email.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxAttempts int
}

type RedisOption func(*RedisStore)

// WithRedisTTL overrides the code lifetime.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore constructs a Redis-backed OTP store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:      client,
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Generate(ctx context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(Record{Code: code, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encode otp record: %w", err)
	}
	if err := s.client.Set(ctx, otpKeyPrefix+email, raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store otp record: %w", err)
	}
	return code, nil
}

func (s *RedisStore) Verify(ctx context.Context, email, code string) (Outcome, error) {
	key := otpKeyPrefix + email

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("get otp record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", fmt.Errorf("decode otp record: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) == 1 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return "", fmt.Errorf("delete otp record: %w", err)
		}
		return OutcomeValid, nil
	}

	record.Attempts++
	if record.Attempts >= s.maxAttempts {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return "", fmt.Errorf("delete otp record: %w", err)
		}
		return OutcomeExhausted, nil
	}

	updated, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode otp record: %w", err)
	}
	if err := s.client.Set(ctx, key, updated, redis.KeepTTL).Err(); err != nil {
		return "", fmt.Errorf("update otp record: %w", err)
	}
	return OutcomeMismatch, nil
}
