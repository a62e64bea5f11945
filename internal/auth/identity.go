package auth

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies where an identity assertion came from.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderApple    Provider = "apple"
	ProviderPassword Provider = "password"
)

// VerifiedIdentity is the normalized result of a successful credential check.
type VerifiedIdentity struct {
	Provider    Provider
	ExternalID  string
	Email       string
	DisplayName string
}

// User represents an account known to the identity registry.
type User struct {
	ID           uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash []byte
	Provider     Provider
	ExternalID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

// Session represents a live server-side session. The raw token is never stored;
// repositories key sessions by the token's SHA-256 hash.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Provider    Provider
	Email       string
	DisplayName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UserAgent   string
	IPAddress   string
}

// Identity is what an authenticated request resolves to.
type Identity struct {
	UserID      uuid.UUID `json:"id"`
	Provider    Provider  `json:"provider"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func identityFromSession(s *Session) *Identity {
	return &Identity{
		UserID:      s.UserID,
		Provider:    s.Provider,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		ExpiresAt:   s.ExpiresAt,
	}
}

// GoogleClaims contains the relevant claims from a Google ID token.
type GoogleClaims struct {
	Sub           string   `json:"sub"`
	Audience      []string `json:"-"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}
