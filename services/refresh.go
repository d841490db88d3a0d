package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/tracing"
)

// TokenResponse is the token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshService implements the refresh_token grant with rotation.
type RefreshService struct {
	store      domain.RepositoryProvider
	clients    *ClientService
	validator  *TokenValidator
	issuer     *TokenIssuer
	signer     *AccessTokenSigner
	refreshTTL time.Duration
	opts       Options
}

func NewRefreshService(
	store domain.RepositoryProvider,
	clients *ClientService,
	validator *TokenValidator,
	issuer *TokenIssuer,
	signer *AccessTokenSigner,
	refreshTTL time.Duration,
	opts Options,
) *RefreshService {
	return &RefreshService{
		store:      store,
		clients:    clients,
		validator:  validator,
		issuer:     issuer,
		signer:     signer,
		refreshTTL: refreshTTL,
		opts:       opts.withDefaults(),
	}
}

// Exchange authenticates the client, retires refreshToken and returns a new
// token pair. A refresh token can be exchanged once.
func (s *RefreshService) Exchange(ctx context.Context, creds ClientCredentials, refreshToken string) (_ *TokenResponse, err error) {
	ctx, span := tracing.Start(ctx, "RefreshService.Exchange")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	client, err := s.clients.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	res, err := s.validator.Validate(ctx, domain.KindRefreshToken, refreshToken)
	if err != nil {
		return nil, err
	}
	if !res.Valid() {
		return nil, fmt.Errorf("%w: refresh token %s", ErrInvalidGrant, res.Status)
	}
	if res.ClientID != client.ID {
		return nil, fmt.Errorf("%w: refresh token was issued to another client", ErrInvalidGrant)
	}

	err = s.store.RefreshTokenRepository().ExpireRefreshToken(ctx, refreshToken)
	s.opts.Audit.Record(audit.ActionRotate, string(domain.KindRefreshToken), client.ID, res.UserID, err)
	if errors.Is(err, domain.ErrExpired) || errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	} else if err != nil {
		return nil, err
	}

	next, err := s.issuer.IssueRefreshToken(ctx, res.UserID, client.ID, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.GroupRepository().ListUserGroups(ctx, res.UserID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}

	access, err := s.signer.Sign(res.UserID, client.ID, names)
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.Issued("access_token")
	s.opts.Logger.Debug(ctx, "Refresh token rotated", log.Fields{"clientID": client.ID, "userID": res.UserID})

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.signer.TTL().Seconds()),
		RefreshToken: next.Token,
	}, nil
}
