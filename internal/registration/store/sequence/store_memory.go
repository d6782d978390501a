package sequence

import (
	"context"
	"sync"
	"time"

	"onboard/internal/registration/models"
	"onboard/pkg/platform/sentinel"
)

// InMemoryStore implements Store for single-instance deployments and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	states  map[string]memoryEntry
	byEmail map[string]string
	now     func() time.Time
}

type memoryEntry struct {
	state     models.SequenceState
	expiresAt time.Time
}

type MemoryOption func(*InMemoryStore)

// WithClock overrides the store's time source for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// NewInMemoryStore creates an empty in-memory sequence store.
func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		states:  make(map[string]memoryEntry),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, phone string) (*models.SequenceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.states[phone]
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	state := entry.state
	return &state, nil
}

func (s *InMemoryStore) Put(_ context.Context, state *models.SequenceState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.PhoneNumber] = memoryEntry{
		state:     *state,
		expiresAt: s.now().Add(ttl),
	}
	if state.Email != "" {
		s.byEmail[state.Email] = state.PhoneNumber
	}
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.states[phone]; ok && entry.state.Email != "" {
		delete(s.byEmail, entry.state.Email)
	}
	delete(s.states, phone)
	return nil
}

func (s *InMemoryStore) PhoneByEmail(_ context.Context, email string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phone, ok := s.byEmail[email]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	// The index may outlive the state entry if TTLs drift; treat a dangling
	// index the same as a missing one.
	entry, ok := s.states[phone]
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", sentinel.ErrNotFound
	}
	return phone, nil
}
