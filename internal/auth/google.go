package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleIssuer is the OIDC issuer for Google identity tokens.
const GoogleIssuer = "https://accounts.google.com"

// Client platforms that carry their own Google audience.
const (
	PlatformWeb = "web"
	PlatformIOS = "ios"
)

// DefaultVerifyTimeout bounds calls to an identity provider.
const DefaultVerifyTimeout = 10 * time.Second

// TokenValidator checks a raw Google ID token's signature and standard claims
// for the given audience and returns its claims.
type TokenValidator interface {
	Validate(ctx context.Context, rawIDToken, audience string) (*GoogleClaims, error)
}

// OIDCTokenValidator validates ID tokens with go-oidc, keeping one verifier
// per audience.
type OIDCTokenValidator struct {
	newVerifier func(*oidc.Config) *oidc.IDTokenVerifier

	mu        sync.Mutex
	verifiers map[string]*oidc.IDTokenVerifier
}

// NewOIDCTokenValidator discovers issuer's configuration and key set.
func NewOIDCTokenValidator(ctx context.Context, issuer string) (*OIDCTokenValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &OIDCTokenValidator{
		newVerifier: provider.Verifier,
		verifiers:   make(map[string]*oidc.IDTokenVerifier),
	}, nil
}

// NewStaticOIDCTokenValidator validates against a fixed key set without discovery.
func NewStaticOIDCTokenValidator(issuer string, keySet oidc.KeySet) *OIDCTokenValidator {
	return &OIDCTokenValidator{
		newVerifier: func(cfg *oidc.Config) *oidc.IDTokenVerifier {
			return oidc.NewVerifier(issuer, keySet, cfg)
		},
		verifiers: make(map[string]*oidc.IDTokenVerifier),
	}
}

// Validate implements TokenValidator.
func (v *OIDCTokenValidator) Validate(ctx context.Context, rawIDToken, audience string) (*GoogleClaims, error) {
	idToken, err := v.verifier(audience).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims GoogleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	claims.Audience = idToken.Audience
	if claims.Sub == "" {
		claims.Sub = idToken.Subject
	}
	return &claims, nil
}

func (v *OIDCTokenValidator) verifier(audience string) *oidc.IDTokenVerifier {
	v.mu.Lock()
	defer v.mu.Unlock()

	if verifier, ok := v.verifiers[audience]; ok {
		return verifier
	}
	verifier := v.newVerifier(&oidc.Config{ClientID: audience})
	v.verifiers[audience] = verifier
	return verifier
}

// GoogleConfig holds the Google client identifiers this server accepts.
type GoogleConfig struct {
	IOSClientID  string
	WebClientID  string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// GoogleVerifier turns Google ID tokens into verified identities. When a client
// secret and redirect URL are configured it also drives the web code flow.
type GoogleVerifier struct {
	validator TokenValidator
	audiences map[string]string
	timeout   time.Duration
	config    *oauth2.Config
}

// NewGoogleVerifier creates a GoogleVerifier.
func NewGoogleVerifier(validator TokenValidator, cfg GoogleConfig) *GoogleVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}

	g := &GoogleVerifier{
		validator: validator,
		audiences: map[string]string{
			PlatformIOS: strings.TrimSpace(cfg.IOSClientID),
			PlatformWeb: strings.TrimSpace(cfg.WebClientID),
		},
		timeout: timeout,
	}

	if g.audiences[PlatformWeb] != "" && cfg.ClientSecret != "" && cfg.RedirectURL != "" {
		g.config = &oauth2.Config{
			ClientID:     g.audiences[PlatformWeb],
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		}
	}
	return g
}

// NormalizePlatform lowercases platform and defaults it to web.
func NormalizePlatform(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return PlatformWeb
	}
	return platform
}

// Verify validates rawIDToken for the audience configured for platform.
func (g *GoogleVerifier) Verify(ctx context.Context, rawIDToken, platform string) (VerifiedIdentity, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return VerifiedIdentity{}, ErrMissingCredential
	}

	platform = NormalizePlatform(platform)
	audience := g.audiences[platform]
	if audience == "" {
		return VerifiedIdentity{}, fmt.Errorf("%w: platform %q", ErrMissingAudience, platform)
	}

	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	claims, err := g.validator.Validate(vctx, rawIDToken, audience)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return VerifiedIdentity{}, fmt.Errorf("%w: %v", ErrVerificationTimeout, err)
		}
		return VerifiedIdentity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims == nil || claims.Sub == "" {
		return VerifiedIdentity{}, ErrNoPayload
	}

	// The validator already checks audience; this guards against validators
	// configured to skip that check.
	if !slices.Contains(claims.Audience, audience) {
		return VerifiedIdentity{}, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	return VerifiedIdentity{
		Provider:    ProviderGoogle,
		ExternalID:  claims.Sub,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// WebFlowEnabled reports whether AuthURL and Exchange can be used.
func (g *GoogleVerifier) WebFlowEnabled() bool {
	return g.config != nil
}

// AuthURL generates the Google OAuth consent URL with the given state.
func (g *GoogleVerifier) AuthURL(state string) string {
	return g.config.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange trades an authorization code for the raw ID token it carries.
// The token still has to go through Verify.
func (g *GoogleVerifier) Exchange(ctx context.Context, code string) (string, error) {
	if g.config == nil {
		return "", fmt.Errorf("%w: web sign-in is not configured", ErrMissingAudience)
	}

	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	token, err := g.config.Exchange(vctx, code)
	if err != nil {
		if errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrVerificationTimeout, err)
		}
		return "", fmt.Errorf("token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", ErrNoPayload
	}
	return rawIDToken, nil
}

// GenerateState generates a cryptographically secure random state string.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
