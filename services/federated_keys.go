package services

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var federatedSigningMethods = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384", "ES512", "EdDSA"}

// FederatedKeyResolver returns the key that verifies an assertion from
// issuer.
type FederatedKeyResolver interface {
	ResolveKey(ctx context.Context, issuer string, token *jwt.Token) (crypto.PublicKey, error)
}

// StaticKeyResolver serves one configured public key per issuer.
type StaticKeyResolver struct {
	keys map[string]crypto.PublicKey
}

func NewStaticKeyResolver(keys map[string]crypto.PublicKey) *StaticKeyResolver {
	return &StaticKeyResolver{keys: keys}
}

// LoadStaticKeyResolver reads PEM encoded public keys from files, keyed by
// issuer.
func LoadStaticKeyResolver(files map[string]string) (*StaticKeyResolver, error) {
	keys := make(map[string]crypto.PublicKey, len(files))
	for issuer, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key for %s: %w", issuer, err)
		}
		key, err := ParsePublicKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse key for %s: %w", issuer, err)
		}
		keys[issuer] = key
	}
	return NewStaticKeyResolver(keys), nil
}

// ParsePublicKeyPEM accepts RSA, ECDSA and Ed25519 public keys.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	return nil, errors.New("unsupported public key")
}

func (r *StaticKeyResolver) ResolveKey(_ context.Context, issuer string, token *jwt.Token) (crypto.PublicKey, error) {
	key, ok := r.keys[issuer]
	if !ok {
		return nil, fmt.Errorf("no key for issuer %s", issuer)
	}

	switch key.(type) {
	case *rsa.PublicKey:
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return key, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodRSAPSS); ok {
			return key, nil
		}
	case *ecdsa.PublicKey:
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return key, nil
		}
	case ed25519.PublicKey:
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); ok {
			return key, nil
		}
	}
	return nil, fmt.Errorf("signing method %s does not match key for %s", token.Method.Alg(), issuer)
}
