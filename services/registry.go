package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/validation"
	"go.pilab.hu/idcore/log"
)

// RegistryService creates users, groups and clients after validating them.
type RegistryService struct {
	store  domain.RepositoryProvider
	hasher auth.SecretHasher
	opts   Options
}

func NewRegistryService(store domain.RepositoryProvider, hasher auth.SecretHasher, opts Options) *RegistryService {
	return &RegistryService{store: store, hasher: hasher, opts: opts.withDefaults()}
}

// CreateUser assigns an id when missing and stores the user.
func (s *RegistryService) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := validation.Struct(user); err != nil {
		return err
	}
	user.CreatedAt = s.opts.Now()
	return s.store.UserRepository().CreateUser(ctx, user)
}

// DeleteUser expires the user's refresh tokens and removes the user.
func (s *RegistryService) DeleteUser(ctx context.Context, id string) error {
	n, err := s.store.RefreshTokenRepository().ExpireUserRefreshTokens(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		s.opts.Metrics.Revoked(string(domain.KindRefreshToken))
		s.opts.Logger.Info(ctx, "Expired refresh tokens of deleted user", log.Fields{"userID": id, "count": n})
	}

	return s.store.UserRepository().DeleteUser(ctx, id)
}

func (s *RegistryService) CreateGroup(ctx context.Context, group *domain.UserGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if err := validation.Struct(group); err != nil {
		return err
	}
	group.CreatedAt = s.opts.Now()
	return s.store.GroupRepository().CreateGroup(ctx, group)
}

func (s *RegistryService) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return s.store.GroupRepository().AddGroupMember(ctx, groupID, userID)
}

// UserGroupNames returns the names of the user's groups, sorted.
func (s *RegistryService) UserGroupNames(ctx context.Context, userID string) ([]string, error) {
	groups, err := s.store.GroupRepository().ListUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names, nil
}

// CreateClientRequest registers a client. When GenerateSecret is set a
// random secret is created, hashed and returned once.
type CreateClientRequest struct {
	Client         domain.OIDCClient
	GenerateSecret bool
}

// CreateClient stores a client and returns the plaintext secret, if any.
func (s *RegistryService) CreateClient(ctx context.Context, req CreateClientRequest) (*domain.OIDCClient, string, error) {
	client := req.Client
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if err := validation.Struct(&client); err != nil {
		return nil, "", err
	}

	var secret string
	if req.GenerateSecret {
		var err error
		if secret, err = auth.GenerateRandomAlphanumericString(auth.ClientSecretLength); err != nil {
			return nil, "", fmt.Errorf("generate client secret: %w", err)
		}
		if client.SecretHash, err = s.hasher.Hash(secret); err != nil {
			return nil, "", err
		}
	}
	client.CreatedAt = s.opts.Now()

	if err := s.store.ClientRepository().CreateClient(ctx, &client); err != nil {
		return nil, "", err
	}
	return &client, secret, nil
}

func (s *RegistryService) GetClient(ctx context.Context, id string) (*domain.OIDCClient, error) {
	return s.store.ClientRepository().GetClient(ctx, id)
}
