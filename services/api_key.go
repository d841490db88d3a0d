package services

import (
	"context"
	"time"

	"go.pilab.hu/idcore/cache"
	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/tracing"
)

// APIKeyService manages admin API keys.
type APIKeyService struct {
	store       domain.RepositoryProvider
	issuer      *TokenIssuer
	validator   *TokenValidator
	revocations cache.RevocationList
	cache       *cache.APIKeyCache
	opts        Options
}

// NewAPIKeyService creates the service. revocations and keyCache may be nil
// and should be the same instances the validator uses.
func NewAPIKeyService(
	store domain.RepositoryProvider,
	issuer *TokenIssuer,
	validator *TokenValidator,
	revocations cache.RevocationList,
	keyCache *cache.APIKeyCache,
	opts Options,
) *APIKeyService {
	return &APIKeyService{
		store:       store,
		issuer:      issuer,
		validator:   validator,
		revocations: revocations,
		cache:       keyCache,
		opts:        opts.withDefaults(),
	}
}

// Create stores a new key and returns its plaintext once.
func (s *APIKeyService) Create(ctx context.Context, name string, expiresAt *time.Time) (*domain.APIKey, string, error) {
	return s.issuer.CreateAPIKey(ctx, name, expiresAt)
}

// Revoke marks the key revoked and removes it from the caches so the change
// is visible immediately.
func (s *APIKeyService) Revoke(ctx context.Context, id string) (_ *domain.APIKey, err error) {
	ctx, span := tracing.Start(ctx, "APIKeyService.Revoke")
	defer span.End()

	actor := ""
	if k, ok := domain.APIKeyFromContext(ctx); ok {
		actor = k.ID
	}
	defer func() { s.opts.Audit.Record(audit.ActionRevoke, string(domain.KindAPIKey), actor, id, err) }()

	key, err := s.store.APIKeyRepository().RevokeAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Delete(key.KeyHash)
	}
	if s.revocations != nil {
		ttl := cache.DefaultRevocationTTL
		if key.ExpiresAt != nil {
			ttl = time.Until(*key.ExpiresAt)
		}
		if ttl > 0 {
			if err := s.revocations.Revoke(ctx, key.KeyHash, ttl); err != nil {
				s.opts.Logger.Warn(ctx, "Failed to add key to revocation list", log.Fields{"keyID": id, "error": err.Error()})
			}
		}
	}
	s.opts.Metrics.Revoked(string(domain.KindAPIKey))

	return key, nil
}

// Authenticate validates a presented key and records its use.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	key, err := s.validator.ValidateAPIKey(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	if err := s.store.APIKeyRepository().TouchAPIKey(ctx, key.ID, s.opts.Now()); err != nil {
		s.opts.Logger.Warn(ctx, "Failed to record api key use", log.Fields{"keyID": key.ID, "error": err.Error()})
	}
	return key, nil
}
