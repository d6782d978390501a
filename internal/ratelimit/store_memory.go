package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryWindowStore implements WindowStore for single-instance deployments
// and tests. The mutex makes each increment a single read-modify-write, the
// same guarantee the Redis implementation gets from INCR.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	count   int64
	resetAt time.Time
}

type MemoryOption func(*InMemoryWindowStore)

// WithMemoryClock overrides the store's time source for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryWindowStore) {
		s.now = now
	}
}

// NewInMemoryWindowStore creates an empty in-memory window store.
func NewInMemoryWindowStore(opts ...MemoryOption) *InMemoryWindowStore {
	s := &InMemoryWindowStore{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr increments the counter for key, starting a new window when none is
// active. Expired windows are replaced in place instead of swept.
func (s *InMemoryWindowStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}
