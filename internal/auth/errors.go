package auth

import "errors"

var (
	// ErrMissingCredential is returned when a required token, email or password is empty.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidToken is returned when an identity provider token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingAudience means no expected audience is configured for the requested platform.
	ErrMissingAudience = errors.New("missing audience configuration")
	// ErrNoPayload means verification succeeded but produced no claims.
	ErrNoPayload = errors.New("verified token has no payload")
	// ErrVerificationTimeout means the identity provider did not answer in time.
	ErrVerificationTimeout = errors.New("verification timed out")
	// ErrUnknownAccount means no account exists for the supplied email.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrBadCredentials means the password did not match the stored hash.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrEmailExists is returned by signup when the email is already registered.
	ErrEmailExists = errors.New("email already exists")
	// ErrUnauthenticated means the request carries no live session.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// IsCredentialFailure reports whether err is a password failure. Callers use it to
// present unknown accounts and wrong passwords identically.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrUnknownAccount) || errors.Is(err, ErrBadCredentials)
}

var (
	errDuplicateIdentity = errors.New("identity already registered")
	errDuplicateSession  = errors.New("session token collision")
	errUserNotFound      = errors.New("user not found")
)
