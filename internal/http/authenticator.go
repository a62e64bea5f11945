package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"loginway/internal/auth"
)

// SessionResolver resolves a session token to an identity.
type SessionResolver interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// RequestAuthenticator is the single gate for identity-requiring routes.
type RequestAuthenticator struct {
	binder   *Binder
	sessions SessionResolver
	logger   *slog.Logger
}

// NewRequestAuthenticator creates a RequestAuthenticator.
func NewRequestAuthenticator(binder *Binder, sessions SessionResolver, logger *slog.Logger) *RequestAuthenticator {
	return &RequestAuthenticator{binder: binder, sessions: sessions, logger: logger}
}

// Authenticate extracts the session token from r and resolves it. Missing,
// unknown and expired tokens all yield false; store failures are logged and
// treated the same way.
func (a *RequestAuthenticator) Authenticate(r *http.Request) (*auth.Identity, bool) {
	token, carrier := a.binder.Extract(r)
	if token == "" {
		return nil, false
	}

	identity, err := a.sessions.Authenticate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			a.logger.Error("session lookup failed", "carrier", carrier, "error", err)
		}
		return nil, false
	}
	return identity, identity != nil
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext returns the identity stored by RequireSession, or nil.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityContextKey).(*auth.Identity)
	return identity
}

// RequireSession rejects requests without a live session and stores the
// resolved identity in the request context.
func (a *RequestAuthenticator) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := a.Authenticate(r)
		if !ok {
			unauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
