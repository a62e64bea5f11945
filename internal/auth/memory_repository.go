package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type externalKey struct {
	provider   Provider
	externalID string
}

// InMemoryRepository stores users and sessions in process maps. It is the default
// backend and what the tests run against.
type InMemoryRepository struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]User
	byExternal map[externalKey]uuid.UUID
	sessions   map[string]Session
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:      make(map[uuid.UUID]User),
		byExternal: make(map[externalKey]uuid.UUID),
		sessions:   make(map[string]Session),
	}
}

// FindUserByExternalID looks up a user by provider and provider subject.
func (r *InMemoryRepository) FindUserByExternalID(_ context.Context, provider Provider, externalID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalKey{provider, externalID}]
	if !ok {
		return nil, nil
	}
	user := r.users[id]
	return &user, nil
}

// FindUserByEmail looks up a user by normalized email.
func (r *InMemoryRepository) FindUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *User
	for _, user := range r.users {
		if user.Email != email {
			continue
		}
		u := user
		if u.HasPassword() {
			return &u, nil
		}
		if found == nil {
			found = &u
		}
	}
	return found, nil
}

// CreateUser stores a new user.
func (r *InMemoryRepository) CreateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := externalKey{user.Provider, user.ExternalID}
	if _, exists := r.byExternal[key]; exists {
		if user.Provider == ProviderPassword {
			return User{}, ErrEmailExists
		}
		return User{}, errDuplicateIdentity
	}

	user.PasswordHash = append([]byte(nil), user.PasswordHash...)
	r.users[user.ID] = user
	r.byExternal[key] = user.ID
	return user, nil
}

// UpdateUserLogin refreshes profile fields and the last login time.
func (r *InMemoryRepository) UpdateUserLogin(_ context.Context, id uuid.UUID, email, displayName string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return errUserNotFound
	}
	user.Email = email
	user.DisplayName = displayName
	user.LastLoginAt = at
	user.UpdatedAt = at
	r.users[id] = user
	return nil
}

// CreateSession stores a session under its token hash.
func (r *InMemoryRepository) CreateSession(_ context.Context, session Session, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[tokenHash]; exists {
		return errDuplicateSession
	}
	r.sessions[tokenHash] = session
	return nil
}

// FindSessionByTokenHash returns a copy of the stored session, expired or not.
func (r *InMemoryRepository) FindSessionByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// DeleteSessionByTokenHash removes a session. Unknown hashes are ignored.
func (r *InMemoryRepository) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before now.
func (r *InMemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for hash, session := range r.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(r.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

var _ Repository = (*InMemoryRepository)(nil)
