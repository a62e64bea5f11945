package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// GoogleTokenVerifier verifies Google ID tokens for a client platform.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken, platform string) (VerifiedIdentity, error)
}

// AppleTokenVerifier verifies Sign in with Apple identity tokens.
type AppleTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (VerifiedIdentity, error)
}

// ClientInfo is request metadata recorded on new sessions.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// Login is the result of a successful login or signup.
type Login struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

// Service provides authentication business logic: it runs a credential
// through its verifier, resolves the account and opens a session.
type Service struct {
	registry  *Registry
	sessions  *SessionStore
	passwords *PasswordVerifier
	hasher    PasswordHasher
	google    GoogleTokenVerifier
	apple     AppleTokenVerifier
	metrics   Metrics
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithGoogle enables Google logins.
func WithGoogle(v GoogleTokenVerifier) ServiceOption {
	return func(s *Service) { s.google = v }
}

// WithApple enables Apple logins.
func WithApple(v AppleTokenVerifier) ServiceOption {
	return func(s *Service) { s.apple = v }
}

// WithMetrics records login activity on m.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new auth Service.
func NewService(registry *Registry, sessions *SessionStore, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	passwords, err := NewPasswordVerifier(registry, hasher)
	if err != nil {
		return nil, err
	}

	s := &Service{
		registry:  registry,
		sessions:  sessions,
		passwords: passwords,
		hasher:    hasher,
		metrics:   noopMetrics{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sessions exposes the underlying session store.
func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// LoginWithGoogle verifies a Google ID token issued for platform and opens a session.
func (s *Service) LoginWithGoogle(ctx context.Context, rawIDToken, platform string, client ClientInfo) (*Login, error) {
	if s.google == nil {
		return nil, s.loginFailed(ProviderGoogle, fmt.Errorf("%w: google sign-in is not configured", ErrMissingAudience))
	}
	identity, err := s.google.Verify(ctx, rawIDToken, platform)
	if err != nil {
		return nil, s.loginFailed(ProviderGoogle, err)
	}
	return s.federatedLogin(ctx, identity, client)
}

// LoginWithApple verifies an Apple identity token and opens a session.
func (s *Service) LoginWithApple(ctx context.Context, rawIDToken string, client ClientInfo) (*Login, error) {
	if s.apple == nil {
		return nil, s.loginFailed(ProviderApple, fmt.Errorf("%w: apple sign-in is not configured", ErrMissingAudience))
	}
	identity, err := s.apple.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, s.loginFailed(ProviderApple, err)
	}
	return s.federatedLogin(ctx, identity, client)
}

// LoginWithPassword checks email and password and opens a session.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string, client ClientInfo) (*Login, error) {
	user, _, err := s.passwords.Verify(ctx, email, password)
	if err != nil {
		return nil, s.loginFailed(ProviderPassword, err)
	}
	return s.openSession(ctx, user, ProviderPassword, client)
}

// SignUp registers a password account and opens a session for it.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string, client ClientInfo) (*Login, error) {
	if NormalizeEmail(email) == "" || password == "" {
		return nil, ErrMissingCredential
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.registry.Create(ctx, email, hash, displayName)
	if err != nil {
		if !errors.Is(err, ErrEmailExists) {
			s.logger.Error("signup failed", "error", err)
		}
		return nil, err
	}

	s.logger.Info("account created", "user_id", user.ID, "provider", ProviderPassword)
	return s.openSession(ctx, user, ProviderPassword, client)
}

// Authenticate resolves a session token to an identity. It returns
// ErrUnauthenticated when the token is empty, unknown or expired.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	session, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrUnauthenticated
	}
	return identityFromSession(session), nil
}

// Logout invalidates the session for token. It is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Invalidate(ctx, token); err != nil {
		return err
	}
	s.metrics.Logout()
	return nil
}

// RunSessionCleanup deletes expired sessions every interval until ctx is done.
func (s *Service) RunSessionCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.sessions.Sweep(ctx)
			if err != nil {
				s.logger.Error("session cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("expired sessions removed", "count", removed)
			}
		}
	}
}

func (s *Service) federatedLogin(ctx context.Context, identity VerifiedIdentity, client ClientInfo) (*Login, error) {
	user, err := s.registry.ResolveOrCreate(ctx, identity)
	if err != nil {
		s.metrics.LoginAttempt(identity.Provider, "error")
		s.logger.Error("resolve identity failed", "provider", identity.Provider, "error", err)
		return nil, err
	}
	return s.openSession(ctx, user, identity.Provider, client)
}

func (s *Service) openSession(ctx context.Context, user *User, provider Provider, client ClientInfo) (*Login, error) {
	token, err := s.sessions.Create(ctx, NewSession{
		UserID:      user.ID,
		Provider:    provider,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		UserAgent:   client.UserAgent,
		IPAddress:   client.IPAddress,
	})
	if err != nil {
		s.metrics.LoginAttempt(provider, "error")
		s.logger.Error("session creation failed", "provider", provider, "error", err)
		return nil, err
	}

	s.metrics.LoginAttempt(provider, "success")
	s.logger.Info("login successful", "user_id", user.ID, "provider", provider)
	return &Login{
		Token:     token,
		User:      user,
		ExpiresAt: s.sessions.now().Add(s.sessions.TTL()),
	}, nil
}

func (s *Service) loginFailed(provider Provider, err error) error {
	outcome := "rejected"
	switch {
	case errors.Is(err, ErrMissingAudience):
		outcome = "misconfigured"
		s.logger.Error("login misconfigured", "provider", provider, "error", err)
	case errors.Is(err, ErrVerificationTimeout):
		outcome = "timeout"
		s.logger.Warn("login verification timed out", "provider", provider)
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrNoPayload), IsCredentialFailure(err):
		s.logger.Warn("login rejected", "provider", provider, "error", err)
	default:
		outcome = "error"
		s.logger.Error("login failed", "provider", provider, "error", err)
	}
	s.metrics.LoginAttempt(provider, outcome)
	return err
}
