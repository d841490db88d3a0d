package services

import (
	"context"
	"time"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/tracing"
)

// OneTimeAccessService hands out and consumes single-use login tokens.
type OneTimeAccessService struct {
	store  domain.RepositoryProvider
	issuer *TokenIssuer
	ttl    time.Duration
	opts   Options
}

func NewOneTimeAccessService(store domain.RepositoryProvider, issuer *TokenIssuer, ttl time.Duration, opts Options) *OneTimeAccessService {
	return &OneTimeAccessService{store: store, issuer: issuer, ttl: ttl, opts: opts.withDefaults()}
}

// Issue creates a token for userID using the configured lifetime.
func (s *OneTimeAccessService) Issue(ctx context.Context, userID string) (*domain.OneTimeAccessToken, error) {
	return s.issuer.IssueOneTimeAccessToken(ctx, userID, s.ttl)
}

// Consume marks the token used and returns its user. A second call with the
// same token fails with ErrExpired.
func (s *OneTimeAccessService) Consume(ctx context.Context, token string) (_ *domain.User, err error) {
	ctx, span := tracing.Start(ctx, "OneTimeAccessService.Consume")
	defer span.End()

	var userID string
	defer func() {
		s.opts.Audit.Record(audit.ActionConsume, string(domain.KindOneTimeAccessToken), userID, "", err)
	}()

	t, err := s.store.OneTimeAccessTokenRepository().ConsumeOneTimeAccessToken(ctx, token, s.opts.Now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	userID = t.UserID

	return s.store.UserRepository().GetUserByID(ctx, t.UserID)
}
