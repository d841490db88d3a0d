package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"go.pilab.hu/idcore/domain"
)

// RepositoryProvider implements domain.RepositoryProvider on one MongoDB
// database.
type RepositoryProvider struct {
	client *mongo.Client
	db     *mongo.Database

	users         *UserRepository
	groups        *GroupRepository
	clients       *ClientRepository
	refreshTokens *RefreshTokenRepository
	oneTimeTokens *OneTimeAccessTokenRepository
	apiKeys       *APIKeyRepository
	signupTokens  *SignupTokenRepository
}

// NewRepositoryProvider connects to uri, prepares indexes on dbName and
// returns the provider. Close disconnects the client.
func NewRepositoryProvider(ctx context.Context, uri, dbName string) (*RepositoryProvider, error) {
	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}

	p, err := NewRepositoryProviderFromDB(ctx, client.Database(dbName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info().Str("db", dbName).Msg("Using MongoDB database")

	return p, nil
}

// NewRepositoryProviderFromDB wraps an already connected database.
func NewRepositoryProviderFromDB(ctx context.Context, db *mongo.Database) (*RepositoryProvider, error) {
	if err := EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}

	return &RepositoryProvider{
		client:        db.Client(),
		db:            db,
		users:         NewUserRepository(db),
		groups:        NewGroupRepository(db),
		clients:       NewClientRepository(db),
		refreshTokens: NewRefreshTokenRepository(db),
		oneTimeTokens: NewOneTimeAccessTokenRepository(db),
		apiKeys:       NewAPIKeyRepository(db),
		signupTokens:  NewSignupTokenRepository(db),
	}, nil
}

func (p *RepositoryProvider) UserRepository() domain.UserRepository     { return p.users }
func (p *RepositoryProvider) GroupRepository() domain.GroupRepository   { return p.groups }
func (p *RepositoryProvider) ClientRepository() domain.ClientRepository { return p.clients }
func (p *RepositoryProvider) APIKeyRepository() domain.APIKeyRepository { return p.apiKeys }

func (p *RepositoryProvider) RefreshTokenRepository() domain.RefreshTokenRepository {
	return p.refreshTokens
}

func (p *RepositoryProvider) OneTimeAccessTokenRepository() domain.OneTimeAccessTokenRepository {
	return p.oneTimeTokens
}

func (p *RepositoryProvider) SignupTokenRepository() domain.SignupTokenRepository {
	return p.signupTokens
}

// Ping is used by the health check.
func (p *RepositoryProvider) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.client.Ping(pingCtx, readpref.Primary())
}

func (p *RepositoryProvider) Close(ctx context.Context) error {
	log.Info().Msg("Closing MongoDB connection.")
	if err := p.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

var _ domain.RepositoryProvider = (*RepositoryProvider)(nil)
