package domain

import (
	"context"
	"time"
)

// UserRepository stores users. Create fails with ErrConflict when the id,
// email or username is taken.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}

// GroupRepository stores user groups and their memberships.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group *UserGroup) error
	GetGroupByName(ctx context.Context, name string) (*UserGroup, error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
	ListUserGroups(ctx context.Context, userID string) ([]*UserGroup, error)
}

// ClientRepository stores OIDC client registrations.
type ClientRepository interface {
	CreateClient(ctx context.Context, client *OIDCClient) error
	GetClient(ctx context.Context, id string) (*OIDCClient, error)
}

// RefreshTokenRepository stores refresh tokens.
type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// ExpireRefreshToken flips the expired flag from false to true. It
	// returns ErrExpired if the token was already expired, so only one caller
	// can ever rotate a given token.
	ExpireRefreshToken(ctx context.Context, token string) error
	ExpireUserRefreshTokens(ctx context.Context, userID string) (int64, error)
}

// OneTimeAccessTokenRepository stores one-time access tokens.
type OneTimeAccessTokenRepository interface {
	CreateOneTimeAccessToken(ctx context.Context, token *OneTimeAccessToken) error
	GetOneTimeAccessToken(ctx context.Context, token string) (*OneTimeAccessToken, error)
	// ConsumeOneTimeAccessToken atomically marks a usable token as expired
	// and returns it in its consumed state.
	ConsumeOneTimeAccessToken(ctx context.Context, token string, now time.Time) (*OneTimeAccessToken, error)
}

// APIKeyRepository stores API keys by the hash of the key.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKey(ctx context.Context, id string) (*APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// SignupTokenRepository stores signup tokens.
type SignupTokenRepository interface {
	CreateSignupToken(ctx context.Context, token *SignupToken) error
	GetSignupToken(ctx context.Context, token string) (*SignupToken, error)
	ListSignupTokens(ctx context.Context) ([]*SignupToken, error)
	DeleteSignupToken(ctx context.Context, id string) error
	// IncrementSignupTokenUsage adds one use if and only if the token is not
	// expired at now and has uses left. On refusal it returns ErrExpired,
	// ErrExhausted or ErrNotFound.
	IncrementSignupTokenUsage(ctx context.Context, token string, now time.Time) (*SignupToken, error)
}

// RepositoryProvider gives access to every repository of one backend.
type RepositoryProvider interface {
	UserRepository() UserRepository
	GroupRepository() GroupRepository
	ClientRepository() ClientRepository
	RefreshTokenRepository() RefreshTokenRepository
	OneTimeAccessTokenRepository() OneTimeAccessTokenRepository
	APIKeyRepository() APIKeyRepository
	SignupTokenRepository() SignupTokenRepository

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// SignupRejection classifies why an increment was refused, based on a fresh
// read of the token. A token that reads as valid lost a race against a
// concurrent redemption and is reported as exhausted.
func SignupRejection(t *SignupToken, now time.Time) error {
	if t == nil {
		return ErrNotFound
	}
	if err := t.Status(now).Err(); err != nil {
		return err
	}
	return ErrExhausted
}
