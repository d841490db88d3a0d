package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"go.pilab.hu/idcore/cache"
	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/tracing"
)

// Result is the outcome of a validation. Only Status is always set; the
// other fields describe the credential when it was found.
type Result struct {
	Kind      domain.TokenKind   `json:"kind"`
	Status    domain.TokenStatus `json:"status"`
	UserID    string             `json:"userId,omitempty"`
	ClientID  string             `json:"clientId,omitempty"`
	KeyID     string             `json:"keyId,omitempty"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty"`
	Remaining *int               `json:"remaining,omitempty"`
}

// Valid is a shorthand for Status == StatusValid.
func (r *Result) Valid() bool { return r.Status == domain.StatusValid }

// TokenValidator checks credentials without changing them. The revocation
// list is consulted before the store.
type TokenValidator struct {
	store       domain.RepositoryProvider
	revocations cache.RevocationList
	apiKeys     *cache.APIKeyCache
	opts        Options
}

// NewTokenValidator creates a validator. revocations and apiKeys may be nil.
func NewTokenValidator(store domain.RepositoryProvider, revocations cache.RevocationList, apiKeys *cache.APIKeyCache, opts Options) *TokenValidator {
	return &TokenValidator{
		store:       store,
		revocations: revocations,
		apiKeys:     apiKeys,
		opts:        opts.withDefaults(),
	}
}

// Validate reports the status of token. The error is only set for
// infrastructure failures; unknown tokens report StatusNotFound.
func (v *TokenValidator) Validate(ctx context.Context, kind domain.TokenKind, token string) (*Result, error) {
	ctx, span := tracing.Start(ctx, "TokenValidator.Validate")
	defer span.End()
	span.SetAttributes(attribute.String("token.kind", string(kind)))

	res, err := v.validate(ctx, kind, token)
	if err != nil {
		span.RecordError(err)
		v.opts.Logger.Error(ctx, "Token validation failed", err, log.Fields{"kind": kind})
		return nil, err
	}

	span.SetAttributes(attribute.String("token.status", string(res.Status)))
	v.opts.Metrics.Validated(string(kind), string(res.Status))

	return res, nil
}

func (v *TokenValidator) validate(ctx context.Context, kind domain.TokenKind, token string) (*Result, error) {
	res := &Result{Kind: kind, Status: domain.StatusNotFound}
	if token == "" {
		return res, nil
	}

	if v.isRevoked(ctx, token) {
		res.Status = domain.StatusRevoked
		return res, nil
	}

	now := v.opts.Now()

	switch kind {
	case domain.KindRefreshToken:
		t, err := v.store.RefreshTokenRepository().GetRefreshToken(ctx, token)
		if err != nil {
			return notFound(res, err)
		}
		res.Status = t.Status(now)
		res.UserID, res.ClientID, res.ExpiresAt = t.UserID, t.ClientID, &t.ExpiresAt

	case domain.KindOneTimeAccessToken:
		t, err := v.store.OneTimeAccessTokenRepository().GetOneTimeAccessToken(ctx, token)
		if err != nil {
			return notFound(res, err)
		}
		res.Status = t.Status(now)
		res.UserID, res.ExpiresAt = t.UserID, &t.ExpiresAt

	case domain.KindSignupToken:
		t, err := v.store.SignupTokenRepository().GetSignupToken(ctx, token)
		if err != nil {
			return notFound(res, err)
		}
		remaining := t.Remaining()
		res.Status = t.Status(now)
		res.ExpiresAt, res.Remaining = &t.ExpiresAt, &remaining

	case domain.KindAPIKey:
		k, err := v.lookupAPIKey(ctx, token)
		if err != nil {
			return notFound(res, err)
		}
		res.Status = k.Status(now)
		res.KeyID, res.ExpiresAt = k.ID, k.ExpiresAt

	default:
		_, err := domain.ParseTokenKind(string(kind))
		return nil, err
	}

	return res, nil
}

func notFound(res *Result, err error) (*Result, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return res, nil
	}
	return nil, err
}

// isRevoked fails open: when the list is unreachable the store decides.
func (v *TokenValidator) isRevoked(ctx context.Context, token string) bool {
	if v.revocations == nil {
		return false
	}
	revoked, err := v.revocations.IsRevoked(ctx, auth.HashToken(token))
	if err != nil {
		v.opts.Logger.Warn(ctx, "Revocation list unavailable", log.Fields{"error": err.Error()})
		return false
	}
	return revoked
}

func (v *TokenValidator) lookupAPIKey(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	hash := auth.HashToken(plaintext)
	if v.apiKeys != nil {
		if k, ok := v.apiKeys.Get(hash); ok {
			return k, nil
		}
	}

	k, err := v.store.APIKeyRepository().GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if v.apiKeys != nil && k.Status(v.opts.Now()) == domain.StatusValid {
		v.apiKeys.Set(k)
	}
	return k, nil
}

// ValidateAPIKey validates a plaintext API key and returns the stored key
// when it is usable.
func (v *TokenValidator) ValidateAPIKey(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	res, err := v.Validate(ctx, domain.KindAPIKey, plaintext)
	if err != nil {
		return nil, err
	}
	if err := res.Status.Err(); err != nil {
		return nil, err
	}
	return v.lookupAPIKey(ctx, plaintext)
}
