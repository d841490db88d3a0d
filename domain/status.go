package domain

import "fmt"

// TokenKind identifies a credential category.
type TokenKind string

const (
	KindRefreshToken       TokenKind = "refresh_token"
	KindOneTimeAccessToken TokenKind = "one_time_access_token"
	KindAPIKey             TokenKind = "api_key"
	KindSignupToken        TokenKind = "signup_token"
)

// ParseTokenKind validates a kind received from the outside.
func ParseTokenKind(s string) (TokenKind, error) {
	switch k := TokenKind(s); k {
	case KindRefreshToken, KindOneTimeAccessToken, KindAPIKey, KindSignupToken:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown token kind %q", ErrInvalidInput, s)
}

// TokenStatus is the outcome of validating a credential.
type TokenStatus string

const (
	StatusValid     TokenStatus = "VALID"
	StatusExpired   TokenStatus = "EXPIRED"
	StatusExhausted TokenStatus = "EXHAUSTED"
	StatusRevoked   TokenStatus = "REVOKED"
	StatusNotFound  TokenStatus = "NOT_FOUND"
)

// Err returns the sentinel error matching the status, or nil when valid.
func (s TokenStatus) Err() error {
	switch s {
	case StatusValid:
		return nil
	case StatusExpired:
		return ErrExpired
	case StatusExhausted:
		return ErrExhausted
	case StatusRevoked:
		return ErrRevoked
	default:
		return ErrNotFound
	}
}
