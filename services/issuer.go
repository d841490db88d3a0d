package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/validation"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/tracing"
)

// maxIssueAttempts bounds how often a colliding token value is regenerated.
const maxIssueAttempts = 3

// TokenIssuer mints every credential kind. Token values come from crypto/rand
// and collisions reported by the store as ErrConflict are retried.
type TokenIssuer struct {
	store domain.RepositoryProvider
	opts  Options

	random func(length int) (string, error)
}

func NewTokenIssuer(store domain.RepositoryProvider, opts Options) *TokenIssuer {
	return &TokenIssuer{
		store:  store,
		opts:   opts.withDefaults(),
		random: auth.GenerateRandomAlphanumericString,
	}
}

// withUniqueToken calls create with fresh token values until it stops
// reporting a conflict.
func withUniqueToken(ctx context.Context, logger log.Logger, random func(int) (string, error), length int, create func(value string) error) error {
	var err error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		var value string
		if value, err = random(length); err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		if err = create(value); !errors.Is(err, domain.ErrConflict) {
			return err
		}
		logger.Warn(ctx, "Token value collision, retrying", log.Fields{"attempt": attempt})
	}
	return err
}

func (s *TokenIssuer) finish(ctx context.Context, kind domain.TokenKind, actor, target string, err error) {
	s.opts.Audit.Record(audit.ActionIssue, string(kind), actor, target, err)
	if err != nil {
		s.opts.Logger.Error(ctx, "Failed to issue credential", err, log.Fields{"kind": kind})
		return
	}
	s.opts.Metrics.Issued(string(kind))
}

// IssueRefreshToken creates a refresh token bound to an existing user and
// client.
func (s *TokenIssuer) IssueRefreshToken(ctx context.Context, userID, clientID string, ttl time.Duration) (_ *domain.RefreshToken, err error) {
	ctx, span := tracing.Start(ctx, "TokenIssuer.IssueRefreshToken")
	defer span.End()
	defer func() { s.finish(ctx, domain.KindRefreshToken, clientID, userID, err) }()

	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	if _, err := s.store.UserRepository().GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.ClientRepository().GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	token := &domain.RefreshToken{
		ClientID:  clientID,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	err = withUniqueToken(ctx, s.opts.Logger, s.random, auth.RefreshTokenLength, func(value string) error {
		token.Token = value
		return s.store.RefreshTokenRepository().CreateRefreshToken(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// IssueOneTimeAccessToken creates a single-use login token for a user.
func (s *TokenIssuer) IssueOneTimeAccessToken(ctx context.Context, userID string, ttl time.Duration) (_ *domain.OneTimeAccessToken, err error) {
	ctx, span := tracing.Start(ctx, "TokenIssuer.IssueOneTimeAccessToken")
	defer span.End()
	defer func() { s.finish(ctx, domain.KindOneTimeAccessToken, "", userID, err) }()

	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	if _, err := s.store.UserRepository().GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	token := &domain.OneTimeAccessToken{
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	err = withUniqueToken(ctx, s.opts.Logger, s.random, auth.OneTimeAccessTokenLength, func(value string) error {
		token.Token = value
		return s.store.OneTimeAccessTokenRepository().CreateOneTimeAccessToken(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// IssueSignupToken creates an invitation valid for ttl and usageLimit
// signups.
func (s *TokenIssuer) IssueSignupToken(ctx context.Context, ttl time.Duration, usageLimit int) (_ *domain.SignupToken, err error) {
	ctx, span := tracing.Start(ctx, "TokenIssuer.IssueSignupToken")
	defer span.End()

	token := &domain.SignupToken{ID: uuid.NewString()}
	defer func() { s.finish(ctx, domain.KindSignupToken, "", token.ID, err) }()

	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	if usageLimit < 1 {
		return nil, fmt.Errorf("%w: usage limit must be at least 1", domain.ErrInvalidInput)
	}

	now := s.opts.Now()
	token.ExpiresAt = now.Add(ttl)
	token.UsageLimit = usageLimit
	token.CreatedAt = now

	err = withUniqueToken(ctx, s.opts.Logger, s.random, auth.SignupTokenLength, func(value string) error {
		token.Token = value
		return s.store.SignupTokenRepository().CreateSignupToken(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// CreateAPIKey stores a new key and returns it with its plaintext value,
// which is never available again.
func (s *TokenIssuer) CreateAPIKey(ctx context.Context, name string, expiresAt *time.Time) (_ *domain.APIKey, _ string, err error) {
	ctx, span := tracing.Start(ctx, "TokenIssuer.CreateAPIKey")
	defer span.End()

	key := &domain.APIKey{ID: uuid.NewString(), Name: name, ExpiresAt: expiresAt}
	defer func() { s.finish(ctx, domain.KindAPIKey, "", key.ID, err) }()

	if err := validation.Struct(key); err != nil {
		return nil, "", err
	}

	now := s.opts.Now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, "", fmt.Errorf("%w: expiry must be in the future", domain.ErrInvalidInput)
	}
	key.CreatedAt = now

	var plaintext string
	err = withUniqueToken(ctx, s.opts.Logger, s.random, auth.APIKeyLength, func(value string) error {
		plaintext = auth.APIKeyPrefix + value
		key.KeyHash = auth.HashToken(plaintext)
		return s.store.APIKeyRepository().CreateAPIKey(ctx, key)
	})
	if err != nil {
		return nil, "", err
	}
	return key, plaintext, nil
}
