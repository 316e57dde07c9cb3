// Package common defines shared constants and errors used across the server
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
)

// Kind is the closed set of failures the auth core reports to its callers.
type Kind int

const (
	KindInternal Kind = iota
	KindDuplicateIdentity
	KindInvalidCredentials
	KindInvalidOrExpiredToken
	KindInvalidOrExpiredRefreshToken
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateIdentity:
		return "User already exists"
	case KindInvalidCredentials:
		return "Invalid credentials"
	case KindInvalidOrExpiredToken:
		return "Invalid or expired token"
	case KindInvalidOrExpiredRefreshToken:
		return "Invalid or expired refresh token"
	case KindNotFound:
		return "User not found"
	default:
		return "Internal server error"
	}
}

// AuthError is returned by the auth core. Its message depends only on Kind.
// The detail is kept for server-side logs and is intentionally not reachable
// through errors.Unwrap, so callers cannot tell an expired token from a
// forged or revoked one.
type AuthError struct {
	Kind   Kind
	detail error
}

// NewAuthError builds an AuthError of the given kind carrying detail for logs.
func NewAuthError(kind Kind, detail error) *AuthError {
	return &AuthError{Kind: kind, detail: detail}
}

func (e *AuthError) Error() string {
	return e.Kind.String()
}

// Detail returns the internal cause. Log it, never send it to a client.
func (e *AuthError) Detail() error {
	return e.detail
}

// Is matches any AuthError of the same kind, so the sentinels below work
// with errors.Is regardless of the attached detail.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Auth core sentinels.
var (
	ErrDuplicateIdentity            = &AuthError{Kind: KindDuplicateIdentity}
	ErrInvalidCredentials           = &AuthError{Kind: KindInvalidCredentials}
	ErrInvalidOrExpiredToken        = &AuthError{Kind: KindInvalidOrExpiredToken}
	ErrInvalidOrExpiredRefreshToken = &AuthError{Kind: KindInvalidOrExpiredRefreshToken}
	ErrUserNotFound                 = &AuthError{Kind: KindNotFound}
	ErrAuthInternal                 = &AuthError{Kind: KindInternal}
)

// KindOf reports the Kind of err, or KindInternal when err is not an AuthError.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// DetailOf returns the logging detail attached to err, or err itself.
func DetailOf(err error) error {
	var ae *AuthError
	if errors.As(err, &ae) && ae.detail != nil {
		return ae.detail
	}
	return err
}
