package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims are the claims of an issued access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups,omitempty"`
}

// AccessTokenSigner signs short-lived HS256 access tokens.
type AccessTokenSigner struct {
	issuer string
	key    []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAccessTokenSigner(issuer string, key []byte, ttl time.Duration, now func() time.Time) (*AccessTokenSigner, error) {
	if len(key) < 32 {
		return nil, errors.New("access token key must be at least 32 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &AccessTokenSigner{issuer: issuer, key: key, ttl: ttl, now: now}, nil
}

// TTL is the lifetime of issued tokens.
func (s *AccessTokenSigner) TTL() time.Duration { return s.ttl }

// Sign issues a token for userID with clientID as audience.
func (s *AccessTokenSigner) Sign(userID, clientID string, groups []string) (string, error) {
	now := s.now()
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Groups: groups,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses and checks a token issued by Sign.
func (s *AccessTokenSigner) Verify(token string) (*AccessTokenClaims, error) {
	var claims AccessTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithIssuer(s.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return &claims, nil
}
