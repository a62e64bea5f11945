package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a session lives when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

const tokenMintAttempts = 3

// NewSession describes the session to create.
type NewSession struct {
	UserID      uuid.UUID
	Provider    Provider
	Email       string
	DisplayName string
	// TTL overrides the store default when positive.
	TTL       time.Duration
	UserAgent string
	IPAddress string
}

// SessionStore mints opaque session tokens and resolves them back to sessions.
// Expired sessions are treated as absent and purged when looked up.
type SessionStore struct {
	repo    SessionRepository
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionMetrics records session activity on m.
func WithSessionMetrics(m Metrics) SessionStoreOption {
	return func(s *SessionStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSessionStore creates a SessionStore over repo.
func NewSessionStore(repo SessionRepository, ttl time.Duration, opts ...SessionStoreOption) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &SessionStore{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the default session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create stores a new session and returns its token.
func (s *SessionStore) Create(ctx context.Context, ns NewSession) (string, error) {
	ttl := ns.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	session := Session{
		ID:          uuid.New(),
		UserID:      ns.UserID,
		Provider:    ns.Provider,
		Email:       ns.Email,
		DisplayName: ns.DisplayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UserAgent:   truncateString(ns.UserAgent, 512),
		IPAddress:   truncateString(ns.IPAddress, 45),
	}

	for attempt := 0; attempt < tokenMintAttempts; attempt++ {
		token, err := generateToken()
		if err != nil {
			return "", fmt.Errorf("generate session token: %w", err)
		}

		err = s.repo.CreateSession(ctx, session, hashToken(token))
		if errors.Is(err, errDuplicateSession) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}

		s.metrics.SessionCreated(ns.Provider)
		return token, nil
	}
	return "", fmt.Errorf("create session: %w", errDuplicateSession)
}

// Lookup returns the live session for token, or nil when the token is unknown
// or expired.
func (s *SessionStore) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		s.metrics.SessionLookup("missing")
		return nil, nil
	}

	tokenHash := hashToken(token)
	session, err := s.repo.FindSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		s.metrics.SessionLookup("error")
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		s.metrics.SessionLookup("missing")
		return nil, nil
	}

	if !s.now().Before(session.ExpiresAt) {
		_ = s.repo.DeleteSessionByTokenHash(ctx, tokenHash)
		s.metrics.SessionLookup("expired")
		return nil, nil
	}

	s.metrics.SessionLookup("hit")
	return session, nil
}

// Invalidate removes the session for token. Unknown tokens are not an error.
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteSessionByTokenHash(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep removes every expired session and returns how many were deleted.
func (s *SessionStore) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	s.metrics.SessionsSwept(removed)
	return removed, nil
}

// generateToken returns 256 bits of randomness, URL-safe encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken returns the SHA-256 hash of the token as a hex string.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// truncateString truncates a string to the given max length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
