package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestPasswordVerifier(t *testing.T) (*PasswordVerifier, *Registry, PasswordHasher) {
	t.Helper()
	registry := NewRegistry(NewInMemoryRepository())
	hasher := NewBcryptHasher(bcrypt.MinCost)
	verifier, err := NewPasswordVerifier(registry, hasher)
	if err != nil {
		t.Fatalf("NewPasswordVerifier returned error: %v", err)
	}
	return verifier, registry, hasher
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	if h := NewBcryptHasher(0); h.Cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost for 0, got %d", h.Cost)
	}
	if h := NewBcryptHasher(bcrypt.MaxCost + 1); h.Cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost for out-of-range value, got %d", h.Cost)
	}
	if h := NewBcryptHasher(bcrypt.MinCost); h.Cost != bcrypt.MinCost {
		t.Fatalf("expected min cost to be kept, got %d", h.Cost)
	}
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("p1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if bytes.Equal(hash, []byte("p1")) {
		t.Fatal("expected hash to differ from plaintext")
	}
	if err := hasher.Compare(hash, "p1"); err != nil {
		t.Fatalf("Compare with correct password returned error: %v", err)
	}
	if err := hasher.Compare(hash, "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if _, err := hasher.Hash(""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential for empty password, got %v", err)
	}
}

func TestPasswordVerifierOutcomes(t *testing.T) {
	verifier, registry, hasher := newTestPasswordVerifier(t)
	ctx := context.Background()

	hash, err := hasher.Hash("p1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	created, err := registry.Create(ctx, "a@x.com", hash, "Alice")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	user, identity, err := verifier.Verify(ctx, "A@x.com", "p1")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}
	if identity.Provider != ProviderPassword || identity.ExternalID != "a@x.com" || identity.DisplayName != "Alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, _, err := verifier.Verify(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if _, _, err := verifier.Verify(ctx, "nobody@x.com", "p1"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if _, _, err := verifier.Verify(ctx, "", "p1"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, _, err := verifier.Verify(ctx, "a@x.com", ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestPasswordVerifierRejectsFederatedOnlyAccount(t *testing.T) {
	verifier, registry, _ := newTestPasswordVerifier(t)
	ctx := context.Background()

	if _, err := registry.ResolveOrCreate(ctx, VerifiedIdentity{
		Provider: ProviderGoogle, ExternalID: "sub", Email: "g@x.com",
	}); err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}

	_, _, err := verifier.Verify(ctx, "g@x.com", "anything")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for account without password, got %v", err)
	}
	if !IsCredentialFailure(err) {
		t.Fatal("expected IsCredentialFailure to report true")
	}
}
