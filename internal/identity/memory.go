package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"onboard/pkg/platform/sentinel"
)

// InMemoryGateway implements Gateway against a process-local map. It backs
// tests and lets the server run without a provider configured; it is not a
// production identity store.
type InMemoryGateway struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewInMemoryGateway creates an empty in-memory gateway.
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{users: make(map[string]User)}
}

func (g *InMemoryGateway) FindByPhone(_ context.Context, phone string) (*User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, user := range g.users {
		if user.Username == phone || user.Attr(AttrPhoneNumber) == phone {
			found := user
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (g *InMemoryGateway) FindByEmail(_ context.Context, email string) (*User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, user := range g.users {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (g *InMemoryGateway) FindByID(_ context.Context, id string) (*User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if user, ok := g.users[id]; ok {
		found := user
		return &found, nil
	}
	return nil, sentinel.ErrNotFound
}

func (g *InMemoryGateway) Create(_ context.Context, user *User) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.users {
		if existing.Username == user.Username || (user.Email != "" && existing.Email == user.Email) {
			return "", sentinel.ErrConflict
		}
	}

	created := *user
	created.ID = uuid.NewString()
	g.users[created.ID] = created
	return created.ID, nil
}

func (g *InMemoryGateway) Update(_ context.Context, user *User) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	g.users[user.ID] = *user
	return nil
}
