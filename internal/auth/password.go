package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the one-way function guarding password accounts.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Compare(hash []byte, password string) error
}

// BcryptHasher hashes passwords with bcrypt at the configured cost.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher, falling back to bcrypt.DefaultCost for
// out-of-range costs.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash generates a password hash.
func (h BcryptHasher) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrMissingCredential
	}
	return bcrypt.GenerateFromPassword([]byte(password), h.Cost)
}

// Compare validates that password matches hash.
func (h BcryptHasher) Compare(hash []byte, password string) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrBadCredentials
		}
		return fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return nil
}

// PasswordVerifier checks email and password pairs against the registry.
type PasswordVerifier struct {
	registry  *Registry
	hasher    PasswordHasher
	dummyHash []byte
}

// NewPasswordVerifier creates a PasswordVerifier.
func NewPasswordVerifier(registry *Registry, hasher PasswordHasher) (*PasswordVerifier, error) {
	filler := make([]byte, 24)
	if _, err := rand.Read(filler); err != nil {
		return nil, fmt.Errorf("generate filler password: %w", err)
	}
	dummy, err := hasher.Hash(string(filler))
	if err != nil {
		return nil, fmt.Errorf("hash filler password: %w", err)
	}
	return &PasswordVerifier{registry: registry, hasher: hasher, dummyHash: dummy}, nil
}

// Verify returns the account for email when password matches. Unknown accounts
// still pay for a hash comparison so both failures take similar time.
func (v *PasswordVerifier) Verify(ctx context.Context, email, password string) (*User, VerifiedIdentity, error) {
	if NormalizeEmail(email) == "" || password == "" {
		return nil, VerifiedIdentity{}, ErrMissingCredential
	}

	user, err := v.registry.FindByEmail(ctx, email)
	if err != nil {
		return nil, VerifiedIdentity{}, err
	}
	if user == nil {
		_ = v.hasher.Compare(v.dummyHash, password)
		return nil, VerifiedIdentity{}, ErrUnknownAccount
	}
	if !user.HasPassword() {
		_ = v.hasher.Compare(v.dummyHash, password)
		return nil, VerifiedIdentity{}, ErrBadCredentials
	}
	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, VerifiedIdentity{}, err
	}

	return user, VerifiedIdentity{
		Provider:    ProviderPassword,
		ExternalID:  user.ExternalID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}, nil
}
