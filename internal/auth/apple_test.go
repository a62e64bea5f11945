package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

func signAppleToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func appleTokenClaims(audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   AppleIssuer,
		"aud":   audience,
		"sub":   "001234.abcdef.1234",
		"email": "relay@privaterelay.appleid.com",
		"iat":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
	}
}

func TestUnverifiedAppleVerifierDecodesClaims(t *testing.T) {
	verifier := NewUnverifiedAppleVerifier()
	if verifier.Verified() {
		t.Fatal("expected unverified mode")
	}

	// Any signature is accepted in this mode.
	raw := signAppleToken(t, newRSAKey(t), "unknown", appleTokenClaims("com.example.app"))

	identity, err := verifier.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.Provider != ProviderApple || identity.ExternalID != "001234.abcdef.1234" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if identity.Email != "relay@privaterelay.appleid.com" {
		t.Fatalf("unexpected email: %q", identity.Email)
	}
}

func TestUnverifiedAppleVerifierRejectsMalformedTokens(t *testing.T) {
	verifier := NewUnverifiedAppleVerifier()
	ctx := context.Background()

	if _, err := verifier.Verify(ctx, ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := verifier.Verify(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	claims := appleTokenClaims("com.example.app")
	delete(claims, "sub")
	raw := signAppleToken(t, newRSAKey(t), "k", claims)
	if _, err := verifier.Verify(ctx, raw); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}

func newGivenAppleVerifier(t *testing.T, key *rsa.PrivateKey, audience string) *AppleVerifier {
	t.Helper()
	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"apple-key": keyfunc.NewGivenCustom(&key.PublicKey, keyfunc.GivenKeyOptions{Algorithm: "RS256"}),
	})
	return NewAppleVerifier(jwks.Keyfunc, audience)
}

func TestAppleVerifierWithKeySet(t *testing.T) {
	key := newRSAKey(t)
	verifier := newGivenAppleVerifier(t, key, "com.example.app")
	ctx := context.Background()

	if !verifier.Verified() {
		t.Fatal("expected verified mode")
	}

	raw := signAppleToken(t, key, "apple-key", appleTokenClaims("com.example.app"))
	identity, err := verifier.Verify(ctx, raw)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.ExternalID != "001234.abcdef.1234" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	cases := map[string]string{
		"foreign signature": signAppleToken(t, newRSAKey(t), "apple-key", appleTokenClaims("com.example.app")),
		"unknown kid":       signAppleToken(t, key, "other-key", appleTokenClaims("com.example.app")),
		"wrong audience":    signAppleToken(t, key, "apple-key", appleTokenClaims("com.other.app")),
	}

	wrongIssuer := appleTokenClaims("com.example.app")
	wrongIssuer["iss"] = "https://evil.example"
	cases["wrong issuer"] = signAppleToken(t, key, "apple-key", wrongIssuer)

	expired := appleTokenClaims("com.example.app")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	cases["expired"] = signAppleToken(t, key, "apple-key", expired)

	noExpiry := appleTokenClaims("com.example.app")
	delete(noExpiry, "exp")
	cases["no expiry"] = signAppleToken(t, key, "apple-key", noExpiry)

	for name, raw := range cases {
		if _, err := verifier.Verify(ctx, raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestAppleVerifierRejectsUnexpectedAlgorithm(t *testing.T) {
	key := newRSAKey(t)
	verifier := newGivenAppleVerifier(t, key, "com.example.app")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, appleTokenClaims("com.example.app"))
	token.Header["kid"] = "apple-key"
	raw, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	_, err = verifier.Verify(context.Background(), raw)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Fatalf("unexpected error text: %v", err)
	}
}
