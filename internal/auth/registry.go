package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Registry maps external identities to internal user records.
type Registry struct {
	repo UserRepository
	now  func() time.Time
}

// NewRegistry creates a Registry backed by repo.
func NewRegistry(repo UserRepository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ResolveOrCreate returns the user bound to a federated identity, creating it on
// first sight. Returning users get their email and display name refreshed.
func (r *Registry) ResolveOrCreate(ctx context.Context, identity VerifiedIdentity) (*User, error) {
	if identity.ExternalID == "" {
		return nil, fmt.Errorf("resolve identity: %w", ErrNoPayload)
	}
	email := NormalizeEmail(identity.Email)

	existing, err := r.repo.FindUserByExternalID(ctx, identity.Provider, identity.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return r.refresh(ctx, existing, email, identity.DisplayName)
	}

	now := r.now()
	created, err := r.repo.CreateUser(ctx, User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: identity.DisplayName,
		Provider:    identity.Provider,
		ExternalID:  identity.ExternalID,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	})
	if errors.Is(err, errDuplicateIdentity) {
		// Lost a race with a concurrent first login for the same subject.
		existing, err = r.repo.FindUserByExternalID(ctx, identity.Provider, identity.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create user: %w", errDuplicateIdentity)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

func (r *Registry) refresh(ctx context.Context, user *User, email, displayName string) (*User, error) {
	if email == "" {
		email = user.Email
	}
	if displayName == "" {
		displayName = user.DisplayName
	}
	now := r.now()
	if err := r.repo.UpdateUserLogin(ctx, user.ID, email, displayName, now); err != nil {
		return nil, fmt.Errorf("update user login: %w", err)
	}
	user.Email = email
	user.DisplayName = displayName
	user.LastLoginAt = now
	user.UpdatedAt = now
	return user, nil
}

// Create registers a password account. Email must not be taken by any account.
func (r *Registry) Create(ctx context.Context, email string, passwordHash []byte, displayName string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || len(passwordHash) == 0 {
		return nil, ErrMissingCredential
	}

	existing, err := r.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	now := r.now()
	created, err := r.repo.CreateUser(ctx, User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: passwordHash,
		Provider:     ProviderPassword,
		ExternalID:   email,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

// FindByEmail returns the account registered under email, or nil.
func (r *Registry) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	user, err := r.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
