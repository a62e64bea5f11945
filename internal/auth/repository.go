package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists registry accounts.
type UserRepository interface {
	FindUserByExternalID(ctx context.Context, provider Provider, externalID string) (*User, error)
	// FindUserByEmail returns an account with the given normalized email, preferring
	// one that has a password credential. It returns nil, nil when none exists.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	// CreateUser inserts user. It returns ErrEmailExists when a password account
	// with the same email already exists.
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUserLogin(ctx context.Context, id uuid.UUID, email, displayName string, at time.Time) error
}

// SessionRepository persists sessions keyed by token hash.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session, tokenHash string) error
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Repository is implemented by storage backends that hold both users and sessions.
type Repository interface {
	UserRepository
	SessionRepository
}
