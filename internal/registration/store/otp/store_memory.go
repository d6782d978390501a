package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// InMemoryStore implements Store for single-instance deployments and tests.
type InMemoryStore struct {
	mu          sync.Mutex
	records     map[string]Record
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

type MemoryOption func(*InMemoryStore)

// WithClock overrides the store's time source for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// WithTTL overrides the code lifetime.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		s.ttl = ttl
	}
}

// NewInMemoryStore creates an empty in-memory OTP store.
func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		records:     make(map[string]Record),
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Generate(_ context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = Record{Code: code, CreatedAt: s.now()}
	return code, nil
}

func (s *InMemoryStore) Verify(_ context.Context, email, code string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[email]
	if !ok || s.now().Sub(record.CreatedAt) >= s.ttl {
		delete(s.records, email)
		return OutcomeNotFound, nil
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) == 1 {
		delete(s.records, email)
		return OutcomeValid, nil
	}

	record.Attempts++
	if record.Attempts >= s.maxAttempts {
		delete(s.records, email)
		return OutcomeExhausted, nil
	}
	s.records[email] = record
	return OutcomeMismatch, nil
}
